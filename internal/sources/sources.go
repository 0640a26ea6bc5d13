// Package sources fetches supporting content from the configured publication
// feeds, community boards and search instances.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chyiyaqing/trendbot/internal/config"
	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/store"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultConcurrency = 10
	defaultMaxItems    = 25
	maxBodyBytes       = 10 << 20
	defaultUserAgent   = "trendbot/1.0 (+https://github.com/chyiyaqing/trendbot)"
)

type Options struct {
	// Timeout bounds each source independently.
	Timeout        time.Duration
	MaxConcurrency int
	// MaxItems applies to sources without their own limit.
	MaxItems       int
	EnrichExcerpts bool
	UserAgent      string
}

// Recorder persists per-source fetch outcomes.
type Recorder interface {
	RecordFetch(ctx context.Context, r store.FetchRecord) error
}

// FetchResult is the merged output of one fan-out. Items keep the configured
// source order.
type FetchResult struct {
	Items     []trend.SupportingContentItem
	Failures  []*trend.SourceFetchError
	Succeeded int
}

type Fetcher struct {
	client   *http.Client
	opts     Options
	recorder Recorder
	enrich   Enricher
}

func New(opts Options, recorder Recorder) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultConcurrency
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = defaultMaxItems
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Fetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		recorder: recorder,
		enrich:   ReadabilityExcerpt,
	}
}

// SetEnricher replaces the excerpt enricher used when EnrichExcerpts is on.
func (f *Fetcher) SetEnricher(e Enricher) {
	f.enrich = e
}

// FetchAll fetches every source concurrently and waits for all of them. A
// failing source contributes no items and never aborts the others.
func (f *Fetcher) FetchAll(ctx context.Context, srcs []config.Source) FetchResult {
	type outcome struct {
		items []trend.SupportingContentItem
		err   *trend.SourceFetchError
	}
	outcomes := make([]outcome, len(srcs))

	sem := make(chan struct{}, f.opts.MaxConcurrency)
	var wg sync.WaitGroup

	for i, src := range srcs {
		wg.Add(1)
		go func(i int, s config.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			started := time.Now()
			items, err := f.Fetch(ctx, s)
			f.record(ctx, s, started, len(items), err)

			log := logger.Log.WithFields(logrus.Fields{"source": s.Name, "kind": s.Kind})
			if err != nil {
				log.Warnf("source skipped: %v", err)
				var fe *trend.SourceFetchError
				if !errors.As(err, &fe) {
					fe = &trend.SourceFetchError{Source: s.Name, Err: err}
				}
				outcomes[i] = outcome{err: fe}
				return
			}
			log.Infof("Fetched %d items in %s", len(items), time.Since(started).Round(time.Millisecond))
			outcomes[i] = outcome{items: items}
		}(i, src)
	}

	wg.Wait()

	var res FetchResult
	for _, o := range outcomes {
		if o.err != nil {
			res.Failures = append(res.Failures, o.err)
			continue
		}
		res.Succeeded++
		res.Items = append(res.Items, o.items...)
	}
	return res
}

// Fetch retrieves one source under its own deadline. Every error is a
// *trend.SourceFetchError.
func (f *Fetcher) Fetch(ctx context.Context, src config.Source) ([]trend.SupportingContentItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	limit := src.Limit
	if limit <= 0 {
		limit = f.opts.MaxItems
	}

	var (
		items []trend.SupportingContentItem
		err   error
	)
	switch src.Kind {
	case config.KindRSS:
		items, err = f.fetchRSS(ctx, src, limit)
	case config.KindReddit:
		items, err = f.fetchReddit(ctx, src, limit)
	case config.KindSearXNG:
		items, err = f.fetchSearXNG(ctx, src, limit)
	default:
		err = fmt.Errorf("unknown source kind %q", src.Kind)
	}
	if err != nil {
		return nil, &trend.SourceFetchError{Source: src.Name, Err: err}
	}

	if f.opts.EnrichExcerpts && f.enrich != nil {
		f.enrichExcerpts(ctx, src.Name, items)
	}
	return items, nil
}

// enrichExcerpts fills empty excerpts from the article page. It stops at the
// source deadline and keeps whatever it has by then.
func (f *Fetcher) enrichExcerpts(ctx context.Context, name string, items []trend.SupportingContentItem) {
	for i := range items {
		if items[i].Excerpt != "" {
			continue
		}
		deadline, ok := ctx.Deadline()
		if ctx.Err() != nil || (ok && time.Until(deadline) <= 0) {
			return
		}
		remaining := f.opts.Timeout
		if ok {
			remaining = time.Until(deadline)
		}
		text, err := f.enrich(ctx, items[i].URL, remaining)
		if err != nil {
			logger.Log.WithField("source", name).Debugf("enrich %s: %v", items[i].URL, err)
			continue
		}
		items[i].Excerpt = cleanExcerpt(text)
	}
}

func (f *Fetcher) record(ctx context.Context, src config.Source, started time.Time, n int, err error) {
	if f.recorder == nil {
		return
	}
	rec := store.FetchRecord{
		Source:    src.Name,
		Kind:      src.Kind,
		StartedAt: started,
		Duration:  time.Since(started),
		Items:     n,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// A cancelled build still gets its fetch log.
	if err := f.recorder.RecordFetch(context.WithoutCancel(ctx), rec); err != nil {
		logger.Log.WithField("source", src.Name).Warnf("record fetch: %v", err)
	}
}

// get issues a GET with the source's credentials and returns the body of a
// 200 response.
func (f *Fetcher) get(ctx context.Context, src config.Source, target string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	applyAuth(req, src.Auth)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// applyAuth sets a token header (Authorization: Bearer by default) or basic
// auth credentials.
func applyAuth(req *http.Request, a config.Auth) {
	switch {
	case a.Token != "":
		header := a.Header
		if header == "" {
			header = "Authorization"
		}
		value := a.Token
		if strings.EqualFold(header, "Authorization") && !strings.Contains(value, " ") {
			value = "Bearer " + value
		}
		req.Header.Set(header, value)
	case a.Username != "":
		req.SetBasicAuth(a.Username, a.Password)
	}
}
