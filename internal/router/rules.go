package router

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet is a deployment-specific extension of the auto-save indicator
// tables, loaded from YAML files next to the config.
type RuleSet struct {
	Personal []string `yaml:"personal"`
	General  []string `yaml:"general"`
}

// LoadRules reads every .yaml/.yml file in dir and merges their indicator
// lists. A missing directory is not an error; unreadable or malformed files
// are skipped with a warning.
func LoadRules(dir string, logger *slog.Logger) (RuleSet, error) {
	var merged RuleSet

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("rules directory does not exist, skipping", "dir", dir)
		return merged, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return merged, fmt.Errorf("read rules dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read rules file", "path", path, "err", err)
			continue
		}

		var rs RuleSet
		if err := yaml.Unmarshal(data, &rs); err != nil {
			logger.Warn("cannot parse rules file", "path", path, "err", err)
			continue
		}

		merged.Personal = append(merged.Personal, rs.Personal...)
		merged.General = append(merged.General, rs.General...)
		logger.Info("loaded classifier rules", "path", path,
			"personal", len(rs.Personal), "general", len(rs.General))
	}

	return merged, nil
}
