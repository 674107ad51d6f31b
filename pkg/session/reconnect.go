package session

import (
	"context"
	"fmt"
	"time"
)

// Reconnect polls open with the configured attempt count and interval,
// swapping in the first Transport it successfully returns. Executing FDL1
// replaces the USB device identity, so the caller's open func must perform
// a fresh enumeration rather than reuse any prior handle.
func (s *Session) Reconnect(ctx context.Context, open func(context.Context) (Transport, error)) error {
	var lastErr error
	for i := 0; i < s.cfg.ReenumAttempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReenumInterval):
		}
		tr, err := open(ctx)
		if err == nil {
			s.SetTransport(tr)
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("session: device did not re-enumerate after %d attempts: %w", s.cfg.ReenumAttempts, lastErr)
}
