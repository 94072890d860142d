package application

import "context"

// Notifier pushes the outcome of a processed command (transfer settled,
// transfer failed, balance read) to the user out of band.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}
