package ports

import "context"

// EventPublisher notifies other instances about session lifecycle changes.
type EventPublisher interface {
	PublishLogin(ctx context.Context, userID, method string) error
	PublishLogout(ctx context.Context, userID, tokenID string) error
}
