package strategy

import "context"

// ChatClient is the text completion collaborator. Implementations block until
// the provider answers or ctx ends.
type ChatClient interface {
	Chat(ctx context.Context, system string, user string) (string, error)
	Provider() string
	Model() string
}
