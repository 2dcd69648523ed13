package router

import (
	"strings"

	"guestdesk/internal/domain"
)

// markerRules is the ordered control-marker table. Evaluation is
// first-match-wins and the escalate rule is checked before resolved, so a
// reply carrying both markers escalates.
var markerRules = []struct {
	marker string
	status domain.ConversationStatus
}{
	{domain.MarkerEscalate, domain.StatusNeedsOperator},
	{domain.MarkerResolved, domain.StatusBotCompleted},
}

// detectMarker inspects generated text for control markers and returns the
// status transition it requests, if any. Matching is case-insensitive.
func detectMarker(text string) (domain.ConversationStatus, bool) {
	lower := strings.ToLower(text)
	for _, rule := range markerRules {
		if strings.Contains(lower, strings.ToLower(rule.marker)) {
			return rule.status, true
		}
	}
	return "", false
}

// stripMarkers removes every control-marker occurrence (any case) and trims
// the leftover whitespace so the guest never sees them.
func stripMarkers(text string) string {
	for _, rule := range markerRules {
		for {
			idx := strings.Index(strings.ToLower(text), strings.ToLower(rule.marker))
			if idx < 0 {
				break
			}
			text = text[:idx] + text[idx+len(rule.marker):]
		}
	}
	return strings.TrimSpace(text)
}
