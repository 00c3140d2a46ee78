package capture

import (
	"context"
	"fmt"
	"time"
)

// Calibrator is a converter that must finish self-calibration before the
// first pass is captured.
type Calibrator interface {
	Calibrate() error
	Done() bool
}

// WaitCalibrated starts calibration and polls until it reports done.
func WaitCalibrated(ctx context.Context, c Calibrator, poll time.Duration) error {
	if err := c.Calibrate(); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	if c.Done() {
		return nil
	}
	if poll <= 0 {
		poll = time.Millisecond
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("calibrate: %w", ctx.Err())
		case <-ticker.C:
			if c.Done() {
				return nil
			}
		}
	}
}
