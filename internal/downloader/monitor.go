package downloader

import (
	"context"
	"time"

	"solarimager/internal/models"
)

// DefaultMonitorInterval is how often Monitor checks for today's image.
const DefaultMonitorInterval = 5 * time.Minute

// Monitor downloads today's image for filter immediately and then every
// interval until ctx is done. Each cycle's summary is passed to onCycle
// when it is non-nil. Only an invalid request stops the loop early.
func (w *Workflow) Monitor(ctx context.Context, filter string, resolution int, interval time.Duration, onCycle func(*Summary)) error {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	w.log.Info("monitor started", map[string]interface{}{"filter": filter, "interval": interval.String()})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		today := models.TruncateDay(w.opts.Now())
		s, err := w.Run(ctx, Request{Start: today, End: today, Filter: filter, Resolution: resolution})
		if err != nil {
			return err
		}
		if onCycle != nil {
			onCycle(s)
		}
		if s.Cancelled && ctx.Err() == nil {
			w.log.Info("monitor cancelled")
			return nil
		}

		select {
		case <-ctx.Done():
			w.log.Info("monitor stopped")
			return nil
		case <-ticker.C:
			if w.cancelled.Load() {
				w.log.Info("monitor cancelled")
				return nil
			}
		}
	}
}
