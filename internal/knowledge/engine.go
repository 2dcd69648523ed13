package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"guestdesk/internal/domain"
)

const (
	// DefaultThreshold is the minimum score for a knowledge match.
	DefaultThreshold = 0.5
	// prefixLen is the shared-prefix length for the fuzzy extension.
	prefixLen = 4
)

// Engine matches guest questions against the learned Q&A entries with a full
// linear scan per query. Acceptable while the knowledge base stays small.
type Engine struct {
	store     domain.Store
	threshold float64
	logger    *slog.Logger
}

type EngineConfig struct {
	Store     domain.Store
	Threshold float64 // 0 means DefaultThreshold
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Engine{
		store:     cfg.Store,
		threshold: cfg.Threshold,
		logger:    cfg.Logger,
	}
}

// Search returns the best-matching active entry for the question, or nil when
// nothing reaches the threshold. A hit increments the entry's usage counter.
func (e *Engine) Search(ctx context.Context, question string) (*domain.KnowledgeEntry, error) {
	questionStems := Normalize(question)
	if len(questionStems) == 0 {
		return nil, nil
	}

	entries, err := e.store.ListActiveKnowledgeEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list knowledge entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var best *domain.KnowledgeEntry
	var bestScore float64

	for i := range entries {
		entry := &entries[i]
		if entry.Keywords == "" {
			continue
		}
		// Re-normalize the stored keyword string: both sides must go through
		// the same normalization for the scores to be comparable.
		entryStems := Normalize(entry.Keywords)
		if len(entryStems) == 0 {
			continue
		}

		score := Score(entryStems, questionStems)
		// Strictly greater: the first entry to reach a maximum wins ties.
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}

	if best == nil || bestScore < e.threshold {
		return nil, nil
	}

	e.logger.Info("knowledge match",
		"entry_id", best.ID,
		"score", fmt.Sprintf("%.2f", bestScore),
	)
	if err := e.store.IncrementKnowledgeUsage(ctx, best.ID); err != nil {
		e.logger.Warn("cannot increment knowledge usage", "entry_id", best.ID, "err", err)
	}
	best.TimesUsed++
	return best, nil
}

// Score computes |common| / max(|entry|, |question|) where common is the
// exact stem intersection extended by prefix-fuzzy pairs: an unmatched entry
// stem and question stem that are both at least 4 runes long and share their
// first 4 runes count as common on both sides.
func Score(entryStems, questionStems []string) float64 {
	if len(entryStems) == 0 || len(questionStems) == 0 {
		return 0
	}

	questionSet := make(map[string]struct{}, len(questionStems))
	for _, q := range questionStems {
		questionSet[q] = struct{}{}
	}

	common := make(map[string]struct{})
	for _, e := range entryStems {
		if _, ok := questionSet[e]; ok {
			common[e] = struct{}{}
		}
	}

	for _, e := range entryStems {
		if _, matched := common[e]; matched {
			continue
		}
		for _, q := range questionStems {
			if _, matched := common[q]; matched {
				continue
			}
			if sharePrefix(e, q) {
				common[e] = struct{}{}
				common[q] = struct{}{}
				break
			}
		}
	}

	max := len(entryStems)
	if len(questionStems) > max {
		max = len(questionStems)
	}
	return float64(len(common)) / float64(max)
}

func sharePrefix(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	if len(ar) < prefixLen || len(br) < prefixLen {
		return false
	}
	return string(ar[:prefixLen]) == string(br[:prefixLen])
}
