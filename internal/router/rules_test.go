package router

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func rulesLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadRules_MissingDirIsEmpty(t *testing.T) {
	rs, err := LoadRules(filepath.Join(t.TempDir(), "nope"), rulesLogger())
	if err != nil {
		t.Fatalf("missing dir must not error: %v", err)
	}
	if len(rs.Personal) != 0 || len(rs.General) != 0 {
		t.Errorf("got %+v, want empty rule set", rs)
	}
}

func TestLoadRules_MergesFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("spa.yaml", "personal:\n  - мой абонемент\ngeneral:\n  - хаммам\n")
	write("transfers.yml", "general:\n  - трансфер\n")
	write("notes.txt", "not rules at all")

	rs, err := LoadRules(dir, rulesLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rs.Personal) != 1 || rs.Personal[0] != "мой абонемент" {
		t.Errorf("personal = %v", rs.Personal)
	}
	if len(rs.General) != 2 {
		t.Errorf("general = %v, want both files merged", rs.General)
	}
}

func TestLoadRules_SkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("{не yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "good.yaml"), []byte("general:\n  - сауна\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rs, err := LoadRules(dir, rulesLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rs.General) != 1 || rs.General[0] != "сауна" {
		t.Errorf("general = %v, malformed file must not poison the rest", rs.General)
	}
}
