// Package report assembles trend reports and serves them through a
// single-slot cache with freshness and in-flight build sharing.
package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chyiyaqing/trendbot/internal/cluster"
	"github.com/chyiyaqing/trendbot/internal/config"
	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/normalize"
	"github.com/chyiyaqing/trendbot/internal/sources"
	"github.com/chyiyaqing/trendbot/internal/synth"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

const synthesisReserve = 10

type Fetcher interface {
	FetchAll(ctx context.Context, srcs []config.Source) sources.FetchResult
}

type Clusterer interface {
	Cluster(items []trend.SupportingContentItem) []cluster.Cluster
}

type Synthesizer interface {
	Synthesize(ctx context.Context, c cluster.Cluster) synth.Synthesis
}

// Pipeline runs one full build: fetch, normalize, cluster, synthesize.
type Pipeline struct {
	fetcher   Fetcher
	clusterer Clusterer
	synth     Synthesizer
	sources   []config.Source
	priority  map[string]int
	maxThemes int
	now       func() time.Time
}

func NewPipeline(f Fetcher, c Clusterer, s Synthesizer, srcs []config.Source, maxThemes int) *Pipeline {
	priority := make(map[string]int, len(srcs))
	for i, src := range srcs {
		p := src.Priority
		if p == 0 {
			p = i + 1
		}
		priority[src.Name] = p
	}
	return &Pipeline{
		fetcher:   f,
		clusterer: c,
		synth:     s,
		sources:   srcs,
		priority:  priority,
		maxThemes: maxThemes,
		now:       time.Now,
	}
}

// Run builds a complete report or returns an error; it never returns a
// partially assembled report.
func (p *Pipeline) Run(ctx context.Context) (*trend.TrendReport, error) {
	res := p.fetcher.FetchAll(ctx, p.sources)
	if len(p.sources) > 0 && res.Succeeded == 0 {
		return nil, fmt.Errorf("%w: %w", trend.ErrClusteringEmpty, trend.ErrAllSourcesFailed)
	}

	items := normalize.Normalize(res.Items, p.priority)
	clusters := p.clusterer.Cluster(items)
	if len(clusters) == 0 {
		return nil, fmt.Errorf("%w (%d items from %d sources)", trend.ErrClusteringEmpty, len(items), res.Succeeded)
	}
	// Clusters arrive largest first.
	if p.maxThemes > 0 && len(clusters) > p.maxThemes {
		clusters = clusters[:p.maxThemes]
	}

	logger.Log.WithFields(logrus.Fields{
		"items":    len(items),
		"themes":   len(clusters),
		"failures": len(res.Failures),
	}).Info("Synthesizing themes")

	synthCtx, cancel := synthesisContext(ctx)
	defer cancel()

	themes := make([]trend.TrendTheme, len(clusters))
	var wg sync.WaitGroup
	for i, c := range clusters {
		wg.Add(1)
		go func(i int, c cluster.Cluster) {
			defer wg.Done()
			s := p.synth.Synthesize(synthCtx, c)
			themes[i] = trend.TrendTheme{
				Name:              c.Name,
				Keywords:          c.Keywords,
				Summary:           s.Summary,
				SocialPosts:       s.SocialPosts,
				PosterConcepts:    s.PosterConcepts,
				SupportingContent: c.Items,
			}
		}(i, c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build interrupted: %w", err)
	}
	return &trend.TrendReport{
		GeneratedAt: p.now().UTC(),
		Themes:      themes,
	}, nil
}

// synthesisContext ends synthesis ahead of the build deadline, leaving a
// tenth of the remaining time for placeholders and assembly.
func synthesisContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := time.Until(deadline) / synthesisReserve
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}
