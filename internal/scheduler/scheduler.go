package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

// Warmer is the report entry point kept warm by the scheduler.
type Warmer interface {
	BuildTrendReport(ctx context.Context) (*trend.TrendReport, error)
}

// Run warms the report immediately, then on the cron schedule so an expired
// report is rebuilt before a viewer asks for it. It blocks until ctx is
// cancelled.
func Run(ctx context.Context, w Warmer, schedule string) error {
	if schedule == "" {
		schedule = "*/10 * * * *"
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		warm(ctx, w)
	})
	if err != nil {
		return err
	}

	logger.Log.Info("Warming trend report...")
	warm(ctx, w)

	c.Start()
	logger.Log.Infof("Scheduler started with schedule: %s", schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func warm(ctx context.Context, w Warmer) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	r, err := w.BuildTrendReport(ctx)
	if err != nil {
		logger.Log.Errorf("Warm report: %v", err)
		return
	}
	logger.Log.Debugf("Report warm: %d themes, generated %s (%s)",
		len(r.Themes), r.GeneratedAt.Format(time.RFC3339), time.Since(start).Round(time.Millisecond))
}
