// Package dispatcher fans one notification payload out to a set of device
// tokens, one APNs push per token, with bounded concurrency.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/magnolialogic/go-apns-server/pkg/dispatch"
)

// Dispatcher drives a Sender across many targets. One failed delivery never
// aborts the rest; every target gets exactly one attempt, no retries.
type Dispatcher struct {
	sender      dispatch.Sender
	concurrency int
	logger      *slog.Logger
}

func New(sender dispatch.Sender, concurrency int, logger *slog.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		sender:      sender,
		concurrency: concurrency,
		logger:      logger.With("component", "Dispatcher"),
	}
}

// Report collects the per-target results of one dispatch run.
type Report struct {
	RunID   string
	Results []dispatch.Result
}

// Summary renders the run receipt.
func (r Report) Summary() string {
	var success, invalid, failed int
	for _, res := range r.Results {
		switch {
		case res.Outcome == dispatch.OutcomeAccepted:
			success++
		case res.Invalid:
			invalid++
			failed++
		default:
			failed++
		}
	}
	return fmt.Sprintf("success:%d invalid:%d total_fail:%d", success, invalid, failed)
}

// InvalidTokens returns the tokens APNs reported as dead, for cleanup.
func (r Report) InvalidTokens() []string {
	var tokens []string
	for _, res := range r.Results {
		if res.Invalid {
			tokens = append(tokens, res.Token)
		}
	}
	return tokens
}

// Failed reports whether any delivery did not reach accepted.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome != dispatch.OutcomeAccepted {
			return true
		}
	}
	return false
}

// Dispatch pushes the payload to every target. Results keep the order of the
// targets slice regardless of completion order.
func (d *Dispatcher) Dispatch(ctx context.Context, p dispatch.Payload, targets []string) (Report, error) {
	if len(targets) == 0 {
		return Report{}, dispatch.ErrNoTargets
	}

	report := Report{
		RunID:   uuid.NewString(),
		Results: make([]dispatch.Result, len(targets)),
	}
	runLogger := d.logger.With("run_id", report.RunID)
	runLogger.Info("Dispatching", "targets", len(targets), "payload", p.String())

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(d.concurrency)
	for i, target := range targets {
		group.Go(func() error {
			report.Results[i] = d.sender.Send(ctx, target, p)
			return nil
		})
	}
	// Workers report failures through their Result, never through the group.
	_ = group.Wait()

	runLogger.Info("Dispatch complete", "receipt", report.Summary())
	return report, nil
}
