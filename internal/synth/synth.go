// Package synth turns a theme cluster into a summary, social-post drafts and
// poster concepts. Generation is delegated to a Provider; this package owns
// prompt construction, response validation and fallbacks.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/chyiyaqing/trendbot/internal/cluster"
	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

const (
	StageCopy     = "copy"
	StageConcepts = "concepts"

	maxAttempts    = 2
	defaultTimeout = 60 * time.Second
)

// PromptContext is everything a provider needs for one generation call.
type PromptContext struct {
	Theme     string
	Keywords  []string
	Items     []trend.SupportingContentItem
	Platforms []string
	System    string
	Prompt    string
	Attempt   int
}

// ConceptDraft is the structured output of the concepts stage.
type ConceptDraft struct {
	PosterConcepts []trend.PosterConcept `json:"posterConcepts"`
}

// Provider is the generation back-end. GenerateCopy returns the raw copy
// response text (a JSON object with summary and socialPosts).
type Provider interface {
	GenerateCopy(ctx context.Context, pc PromptContext) (string, error)
	GenerateConcepts(ctx context.Context, pc PromptContext) (*ConceptDraft, error)
}

type Options struct {
	Platforms []string
	// Timeout bounds each provider call.
	Timeout time.Duration
	// RPM and Burst pace provider calls across all themes. RPM <= 0 disables pacing.
	RPM   int
	Burst int
}

// Synthesis is the generated part of a theme.
type Synthesis struct {
	Summary        string
	SocialPosts    []trend.SocialPost
	PosterConcepts []trend.PosterConcept
}

type Synthesizer struct {
	provider  Provider
	opts      Options
	limiter   *rate.Limiter
	platforms []string
	allowed   map[string]bool
}

func New(provider Provider, opts Options) *Synthesizer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPM > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RPM)/60.0), burst)
	}

	s := &Synthesizer{
		provider: provider,
		opts:     opts,
		limiter:  limiter,
		allowed:  make(map[string]bool, len(opts.Platforms)),
	}
	for _, p := range opts.Platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || s.allowed[p] {
			continue
		}
		s.allowed[p] = true
		s.platforms = append(s.platforms, p)
	}
	return s
}

// Synthesize always returns a usable result. A stage whose output fails
// validation twice is replaced by a placeholder built from the keywords.
// When ctx has a deadline, each stage gets an equal share of what is left,
// so both placeholders are reached before it.
func (s *Synthesizer) Synthesize(ctx context.Context, c cluster.Cluster) Synthesis {
	base := PromptContext{
		Theme:     c.Name,
		Keywords:  c.Keywords,
		Items:     promptItems(c.Items),
		Platforms: s.platforms,
	}

	var out Synthesis
	copyCtx, cancel := stageContext(ctx, 2)
	summary, posts, err := s.generateCopy(copyCtx, base)
	cancel()
	if err != nil {
		s.logFailure(err)
		out.Summary, out.SocialPosts = fallbackCopy(c, s.platforms)
	} else {
		out.Summary, out.SocialPosts = summary, posts
	}

	if posters, err := s.generateConcepts(ctx, base); err != nil {
		s.logFailure(err)
		out.PosterConcepts = fallbackConcepts(c)
	} else {
		out.PosterConcepts = posters
	}
	return out
}

type copyDraft struct {
	Summary     string             `json:"summary"`
	SocialPosts []trend.SocialPost `json:"socialPosts"`
}

func (s *Synthesizer) generateCopy(ctx context.Context, base PromptContext) (string, []trend.SocialPost, error) {
	pc := base
	pc.System = copySystemPrompt
	pc.Prompt = buildCopyPrompt(base)

	var (
		summary string
		posts   []trend.SocialPost
	)
	err := s.attempt(ctx, base.Theme, StageCopy, pc, func(callCtx context.Context, pc PromptContext) error {
		text, err := s.provider.GenerateCopy(callCtx, pc)
		if err != nil {
			return err
		}
		var d copyDraft
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return fmt.Errorf("decode copy: %w", err)
		}
		summary, posts, err = s.validateCopy(d)
		return err
	})
	return summary, posts, err
}

func (s *Synthesizer) generateConcepts(ctx context.Context, base PromptContext) ([]trend.PosterConcept, error) {
	pc := base
	pc.System = conceptsSystemPrompt
	pc.Prompt = buildConceptsPrompt(base)

	var posters []trend.PosterConcept
	err := s.attempt(ctx, base.Theme, StageConcepts, pc, func(callCtx context.Context, pc PromptContext) error {
		draft, err := s.provider.GenerateConcepts(callCtx, pc)
		if err != nil {
			return err
		}
		if draft == nil {
			return errors.New("empty concept draft")
		}
		posters, err = validateConcepts(draft.PosterConcepts)
		return err
	})
	return posters, err
}

// attempt runs call up to maxAttempts times, each paced by the limiter and
// bounded by its own timeout. The last failure is returned as a
// *trend.SynthesisError.
func (s *Synthesizer) attempt(ctx context.Context, theme, stage string, pc PromptContext, call func(context.Context, PromptContext) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			lastErr = fmt.Errorf("wait for provider slot: %w", err)
			break
		}

		pc.Attempt = attempt
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		err := call(callCtx, pc)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = fmt.Errorf("attempt %d: %w", attempt, err)
		logger.Log.WithFields(logrus.Fields{"theme": theme, "stage": stage}).
			Debugf("Synthesis retry %d/%d: %v", attempt, maxAttempts, err)
		if ctx.Err() != nil {
			break
		}
	}
	return &trend.SynthesisError{Theme: theme, Stage: stage, Err: lastErr}
}

// stageContext bounds the next of remaining stages to its share of the time
// left before ctx's deadline.
func stageContext(ctx context.Context, remaining int) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || remaining <= 1 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Until(deadline)/time.Duration(remaining))
}

func (s *Synthesizer) logFailure(err error) {
	var se *trend.SynthesisError
	if errors.As(err, &se) {
		logger.Log.WithFields(logrus.Fields{"theme": se.Theme, "stage": se.Stage}).
			Warnf("Using placeholder %s: %v", se.Stage, se.Err)
		return
	}
	logger.Log.Warnf("Using placeholder: %v", err)
}
