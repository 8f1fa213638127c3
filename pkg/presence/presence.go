package presence

import (
	"context"
	"fmt"
	"log"
)

// StatusSetter sends the online-status signal
type StatusSetter interface {
	SetOnline(ctx context.Context, online bool) error
}

// Announcer broadcasts the user's online status. Online and Offline are
// fire-and-forget; OfflineNow blocks and is meant for program exit.
type Announcer struct {
	status StatusSetter
	runner Runner
	logger *log.Logger
}

// NewAnnouncer creates an announcer. logger may be nil.
func NewAnnouncer(status StatusSetter, runner Runner, logger *log.Logger) *Announcer {
	return &Announcer{status: status, runner: runner, logger: logger}
}

// Online announces the user as online
func (a *Announcer) Online() { a.announce(true) }

// Offline announces the user as offline
func (a *Announcer) Offline() { a.announce(false) }

func (a *Announcer) announce(online bool) {
	a.runner.Run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), SignalTimeout)
		defer cancel()
		if err := a.status.SetOnline(ctx, online); err != nil && a.logger != nil {
			a.logger.Printf("presence: announce online=%v failed: %v", online, err)
		}
	})
}

// OfflineNow announces the user as offline and waits for the result
func (a *Announcer) OfflineNow(ctx context.Context) error {
	if err := a.status.SetOnline(ctx, false); err != nil {
		return fmt.Errorf("announce offline: %w", err)
	}
	return nil
}
