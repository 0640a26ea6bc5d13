package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/store"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

const (
	listenerTimeout     = 30 * time.Second
	defaultRetryBackoff = 30 * time.Second
)

// State is the lifecycle of the cache slot.
type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Builder produces a complete report.
type Builder interface {
	Run(ctx context.Context) (*trend.TrendReport, error)
}

// BuildRecorder persists build outcomes.
type BuildRecorder interface {
	RecordBuild(ctx context.Context, r store.BuildRecord) error
}

// Listener is told about every newly installed report.
type Listener interface {
	ReportBuilt(ctx context.Context, r *trend.TrendReport) error
}

type CacheOptions struct {
	FreshnessWindow time.Duration
	BuildTimeout    time.Duration
	// RetryBackoff is how long a stale report is served without rebuilding
	// after a failed rebuild. Capped at FreshnessWindow.
	RetryBackoff time.Duration
	Recorder     BuildRecorder
	Listeners    []Listener
}

// call is one in-flight build. Late callers wait on done.
type call struct {
	done   chan struct{}
	report *trend.TrendReport
	err    error
}

// Cache holds the process-wide report slot. Transitions happen under mu,
// and no I/O is done while holding it.
type Cache struct {
	builder Builder
	opts    CacheOptions
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	report   *trend.TrendReport
	builtAt  time.Time
	retryAt  time.Time
	inflight *call
}

func NewCache(builder Builder, opts CacheOptions) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		builder: builder,
		opts:    opts,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// BuildTrendReport returns the cached report while it is fresh, otherwise
// joins or starts a build. Builds run on the cache's own context, so a
// caller that gives up does not cancel the build for others. A failed
// rebuild yields the previous report; with no previous report the error
// wraps trend.ErrReportUnavailable.
func (c *Cache) BuildTrendReport(ctx context.Context) (*trend.TrendReport, error) {
	c.mu.Lock()
	if now := c.now(); c.state == StateReady && (now.Sub(c.builtAt) < c.opts.FreshnessWindow || now.Before(c.retryAt)) {
		r := c.report
		c.mu.Unlock()
		return r, nil
	}
	cl := c.inflight
	if cl == nil {
		cl = &call{done: make(chan struct{})}
		c.inflight = cl
		c.state = StateBuilding
		c.wg.Add(1)
		go c.build(cl)
	}
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.report, cl.err
	case <-ctx.Done():
		c.mu.Lock()
		stale := c.report
		c.mu.Unlock()
		if stale != nil {
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %w", trend.ErrReportUnavailable, ctx.Err())
	}
}

func (c *Cache) build(cl *call) {
	defer c.wg.Done()

	started := c.now()
	ctx, cancel := context.WithTimeout(c.ctx, c.buildTimeout())
	r, err := c.builder.Run(ctx)
	cancel()
	if err == nil && r == nil {
		err = errors.New("builder returned no report")
	}

	c.mu.Lock()
	if err == nil {
		c.report = r
		c.builtAt = c.now()
		c.retryAt = time.Time{}
		c.state = StateReady
		cl.report = r
	} else if c.report != nil {
		// The old timestamp stays; callers get the stale report until retryAt.
		c.retryAt = c.now().Add(c.retryBackoff())
		c.state = StateReady
		cl.report = c.report
	} else {
		c.state = StateEmpty
		cl.err = fmt.Errorf("%w: %w", trend.ErrReportUnavailable, err)
	}
	c.inflight = nil
	stale := err != nil && c.report != nil
	c.mu.Unlock()
	close(cl.done)

	elapsed := c.now().Sub(started)
	log := logger.Log.WithField("duration", elapsed.Round(time.Millisecond))
	switch {
	case err == nil:
		log.WithField("themes", len(r.Themes)).Info("Trend report built")
	case stale:
		log.Warnf("Rebuild failed, serving previous report: %v", err)
	default:
		log.Errorf("Build failed: %v", err)
	}

	c.record(started, elapsed, r, err)
	if err == nil {
		c.notify(r)
	}
}

func (c *Cache) buildTimeout() time.Duration {
	if c.opts.BuildTimeout > 0 {
		return c.opts.BuildTimeout
	}
	return 3 * time.Minute
}

func (c *Cache) retryBackoff() time.Duration {
	d := c.opts.RetryBackoff
	if d <= 0 {
		d = defaultRetryBackoff
	}
	if c.opts.FreshnessWindow > 0 && d > c.opts.FreshnessWindow {
		d = c.opts.FreshnessWindow
	}
	return d
}

func (c *Cache) record(started time.Time, elapsed time.Duration, r *trend.TrendReport, err error) {
	if c.opts.Recorder == nil {
		return
	}
	rec := store.BuildRecord{StartedAt: started, Duration: elapsed}
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Themes = len(r.Themes)
		rec.Items = r.ItemCount()
	}
	if err := c.opts.Recorder.RecordBuild(context.WithoutCancel(c.ctx), rec); err != nil {
		logger.Log.Warnf("record build: %v", err)
	}
}

// notify runs after the report is installed. Close does not interrupt it;
// each listener is bounded by listenerTimeout instead.
func (c *Cache) notify(r *trend.TrendReport) {
	for _, l := range c.opts.Listeners {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), listenerTimeout)
		if err := l.ReportBuilt(ctx, r); err != nil {
			logger.Log.WithFields(logrus.Fields{"listener": fmt.Sprintf("%T", l)}).Warnf("notify: %v", err)
		}
		cancel()
	}
}

// State reports the current slot state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the installed report, fresh or not, without building.
func (c *Cache) Current() (*trend.TrendReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report, c.report != nil
}

// Close cancels any in-flight build and waits for it to finish. A cancelled
// build installs nothing.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}
