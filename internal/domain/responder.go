package domain

import "context"

// Control markers the responder may embed in generated text. The router acts
// on them and strips them before the guest sees the reply.
const (
	MarkerEscalate = "[NEED_OPERATOR]"
	MarkerResolved = "[RESOLVED]"
)

// Responder generates a reply from recent conversation history (chronological
// order). The returned text may carry control markers consumed by the router.
type Responder interface {
	Generate(ctx context.Context, history []Message) (string, error)
	Name() string
	Healthy(ctx context.Context) error
}
