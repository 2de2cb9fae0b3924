package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultSendTimeout = 5 * time.Second
	sendAttempts       = 3

	// Discord allows short bursts per channel but throttles sustained
	// output; one message a second with a burst of five stays under it.
	defaultSendRate  = rate.Limit(1)
	defaultSendBurst = 5
)

// sendBudget is the per-message delivery bound.
func (w *Worker) sendBudget() time.Duration {
	if w.sendBound > 0 {
		return w.sendBound
	}
	return defaultSendTimeout
}

// send delivers one message within the send budget. Each attempt waits
// for the worker's pacing limiter; transient failures retry until the
// budget runs out.
func (w *Worker) send(ctx context.Context, channelID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, w.sendBudget())
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return fmt.Errorf("send to %s: %w", channelID, lastErr)
			}
			return err
		}
		if err := w.post(channelID, text); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("send to %s: %w", channelID, lastErr)
}
