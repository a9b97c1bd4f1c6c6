// Package notify fans call events out to Slack and Pulsar.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/sourcegraph/conc/pool"
)

type Sink interface {
	Name() string
	Send(ctx context.Context, event emergency.CallEvent) error
}

type Notifier struct {
	sinks   []Sink
	timeout time.Duration
}

func NewNotifier(timeout time.Duration, sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, timeout: timeout}
}

func (n *Notifier) Enabled() bool {
	return len(n.sinks) > 0
}

// Notify delivers event to every sink concurrently and waits for them.
// Failures are logged only. The caller's cancellation does not cut
// delivery short, NOTIFY_TIMEOUT does.
func (n *Notifier) Notify(ctx context.Context, event emergency.CallEvent) {
	if !n.Enabled() {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	p := pool.New().WithContext(ctx)
	for _, sink := range n.sinks {
		p.Go(func(ctx context.Context) error {
			if err := sink.Send(ctx, event); err != nil {
				slog.Error("failed to deliver call event",
					slog.String("error", err.Error()),
					slog.String("sink", sink.Name()),
					slog.String("call_id", event.CallID),
					slog.String("status", event.Status),
				)
				return err
			}
			slog.Debug("delivered call event", slog.String("sink", sink.Name()), slog.String("call_id", event.CallID), slog.String("status", event.Status))
			return nil
		})
	}
	_ = p.Wait()
}
