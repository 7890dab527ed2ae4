package providers

import "context"

// Message is one turn of a chat exchange.
type Message struct {
	Role    string
	Content string
}

// Provider is the combined chat plus embedding capability the pipeline
// consumes. Implementations wrap one external model host.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Name() string
}
