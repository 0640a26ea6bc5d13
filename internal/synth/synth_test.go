package synth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chyiyaqing/trendbot/internal/cluster"
	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

func init() {
	logger.Silence()
}

const goodCopy = `{"summary":"Warm minimalism pairs pared-back rooms with soft oak.","socialPosts":[
 {"platform":"Instagram","hook":"Less, but warmer","body":"Oak, plaster and linen.","cta":"Save for later","assets":["oak.jpg"," "]},
 {"platform":"pinterest","hook":"Pin the palette","body":"Cream and walnut.","cta":"Pin it"},
 {"platform":"instagram","hook":"Second try","body":"Dropped.","cta":"Ignored"}]}`

var goodConcepts = &ConceptDraft{PosterConcepts: []trend.PosterConcept{{
	Title:        "Quiet Warmth",
	Mood:         "soft, tactile",
	Layout:       "Centered vignette",
	Palette:      []string{"#f4efe6", "#A68A64", "#fff"},
	CallToAction: "See the edit",
}}}

// stubProvider replays queued responses per stage.
type stubProvider struct {
	mu           sync.Mutex
	copies       []stubCopy
	concepts     []stubConcepts
	copyCalls    []PromptContext
	conceptCalls []PromptContext
	block        bool
}

type stubCopy struct {
	text string
	err  error
}

type stubConcepts struct {
	draft *ConceptDraft
	err   error
}

func (p *stubProvider) GenerateCopy(ctx context.Context, pc PromptContext) (string, error) {
	p.mu.Lock()
	p.copyCalls = append(p.copyCalls, pc)
	var r stubCopy
	if len(p.copies) > 0 {
		r, p.copies = p.copies[0], p.copies[1:]
	} else {
		r = stubCopy{err: errors.New("no response queued")}
	}
	block := p.block
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func (p *stubProvider) GenerateConcepts(ctx context.Context, pc PromptContext) (*ConceptDraft, error) {
	p.mu.Lock()
	p.conceptCalls = append(p.conceptCalls, pc)
	var r stubConcepts
	if len(p.concepts) > 0 {
		r, p.concepts = p.concepts[0], p.concepts[1:]
	} else {
		r = stubConcepts{err: errors.New("no response queued")}
	}
	block := p.block
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.draft, r.err
}

func testCluster() cluster.Cluster {
	return cluster.Cluster{
		Name:     "warm minimalism",
		Keywords: []string{"minimalism", "warm", "oak", "plaster"},
		Items: []trend.SupportingContentItem{
			{ID: "1", Source: "dezeen", URL: "https://a.example/1", Title: "Warm minimalism in Oslo", Excerpt: "Oak floors."},
			{ID: "2", Source: "reddit", URL: "https://a.example/2", Title: "Warm minimalism bedroom"},
		},
	}
}

func newTestSynth(p Provider) *Synthesizer {
	return New(p, Options{
		Platforms: []string{"instagram", "Pinterest", "tiktok"},
		Timeout:   time.Second,
	})
}

func TestSynthesize_ValidResponses(t *testing.T) {
	p := &stubProvider{
		copies:   []stubCopy{{text: goodCopy}},
		concepts: []stubConcepts{{draft: goodConcepts}},
	}
	out := newTestSynth(p).Synthesize(context.Background(), testCluster())

	if out.Summary != "Warm minimalism pairs pared-back rooms with soft oak." {
		t.Errorf("Summary = %q", out.Summary)
	}
	if len(out.SocialPosts) != 2 {
		t.Fatalf("got %d posts, want 2 (duplicate platform dropped)", len(out.SocialPosts))
	}
	first := out.SocialPosts[0]
	if first.Platform != "instagram" || first.Hook != "Less, but warmer" {
		t.Errorf("first post = %+v, want the first instagram post lowercased", first)
	}
	if len(first.Assets) != 1 || first.Assets[0] != "oak.jpg" {
		t.Errorf("Assets = %v, want blank entries removed", first.Assets)
	}
	if out.SocialPosts[1].Assets == nil {
		t.Error("missing assets should be an empty list")
	}
	if len(out.PosterConcepts) != 1 || out.PosterConcepts[0].Palette[0] != "#F4EFE6" {
		t.Errorf("PosterConcepts = %+v", out.PosterConcepts)
	}

	if len(p.copyCalls) != 1 || len(p.conceptCalls) != 1 {
		t.Fatalf("calls = %d copy, %d concepts; want 1 each", len(p.copyCalls), len(p.conceptCalls))
	}
	pc := p.copyCalls[0]
	if pc.Theme != "warm minimalism" || pc.Attempt != 1 {
		t.Errorf("prompt context = %+v", pc)
	}
	if !strings.Contains(pc.Prompt, "instagram, pinterest, tiktok") || !strings.Contains(pc.Prompt, "Warm minimalism in Oslo") {
		t.Errorf("copy prompt missing platforms or articles:\n%s", pc.Prompt)
	}
	if pc.System == p.conceptCalls[0].System {
		t.Error("copy and concepts stages should use different system prompts")
	}
}

func TestSynthesize_RetriesOnceThenSucceeds(t *testing.T) {
	p := &stubProvider{
		copies: []stubCopy{
			{text: `{"summary":"x","socialPosts":[{"platform":"myspace","hook":"h","body":"b","cta":"c"}]}`},
			{text: goodCopy},
		},
		concepts: []stubConcepts{
			{draft: &ConceptDraft{PosterConcepts: []trend.PosterConcept{{Title: "t", Mood: "m", Layout: "l", CallToAction: "c", Palette: []string{"beige"}}}}},
			{draft: goodConcepts},
		},
	}
	out := newTestSynth(p).Synthesize(context.Background(), testCluster())

	if len(p.copyCalls) != 2 || p.copyCalls[1].Attempt != 2 {
		t.Errorf("copy calls = %d, want a second attempt", len(p.copyCalls))
	}
	if out.Summary != "Warm minimalism pairs pared-back rooms with soft oak." {
		t.Errorf("Summary = %q, want retried response", out.Summary)
	}
	if out.PosterConcepts[0].Title != "Quiet Warmth" {
		t.Errorf("Poster = %+v, want retried response", out.PosterConcepts[0])
	}
}

func TestSynthesize_FallsBackAfterTwoFailures(t *testing.T) {
	p := &stubProvider{
		copies: []stubCopy{{text: "not json"}, {err: errors.New("provider down")}},
		concepts: []stubConcepts{
			{draft: &ConceptDraft{}},
			{err: errors.New("provider down")},
		},
	}
	s := newTestSynth(p)
	out := s.Synthesize(context.Background(), testCluster())

	if len(p.copyCalls) != 2 || len(p.conceptCalls) != 2 {
		t.Errorf("calls = %d copy, %d concepts; want exactly 2 each", len(p.copyCalls), len(p.conceptCalls))
	}
	if !strings.Contains(out.Summary, "minimalism, warm, oak") {
		t.Errorf("fallback summary = %q, want top keywords", out.Summary)
	}
	if len(out.SocialPosts) != 3 {
		t.Fatalf("fallback posts = %d, want one per platform", len(out.SocialPosts))
	}
	for _, post := range out.SocialPosts {
		if !s.allowed[post.Platform] || post.Hook == "" || post.Body == "" || post.CTA == "" {
			t.Errorf("fallback post invalid: %+v", post)
		}
	}
	if _, err := validateConcepts(out.PosterConcepts); err != nil {
		t.Errorf("fallback concepts do not validate: %v", err)
	}

	again := newTestSynth(&stubProvider{}).Synthesize(context.Background(), testCluster())
	if again.Summary != out.Summary || again.PosterConcepts[0].Title != out.PosterConcepts[0].Title {
		t.Error("fallback is not deterministic")
	}
}

func TestSynthesize_TimeoutFallsBack(t *testing.T) {
	p := &stubProvider{block: true}
	s := New(p, Options{Platforms: []string{"instagram"}, Timeout: 20 * time.Millisecond})

	start := time.Now()
	out := s.Synthesize(context.Background(), testCluster())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Synthesize took %s, per-call timeout not applied", elapsed)
	}
	if out.Summary == "" || len(out.SocialPosts) != 1 || len(out.PosterConcepts) != 1 {
		t.Errorf("timeout result = %+v, want placeholder", out)
	}
}

func TestSynthesize_HungProviderFitsDeadline(t *testing.T) {
	p := &stubProvider{block: true}
	// Four calls at the per-call timeout would overrun the deadline.
	s := New(p, Options{Platforms: []string{"instagram"}, Timeout: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	out := s.Synthesize(ctx, testCluster())

	if elapsed := time.Since(start); elapsed > 350*time.Millisecond {
		t.Errorf("Synthesize took %s, want it bounded by the 200ms deadline", elapsed)
	}
	if !strings.HasPrefix(out.SocialPosts[0].Hook, "Trend watch:") || len(out.PosterConcepts) != 1 {
		t.Errorf("result = %+v, want placeholders", out)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conceptCalls) == 0 {
		t.Error("concepts stage never ran; copy stage used the whole budget")
	}
}

func TestAttempt_ReturnsSynthesisError(t *testing.T) {
	s := newTestSynth(&stubProvider{})
	err := s.attempt(context.Background(), "boucle", StageCopy, PromptContext{}, func(context.Context, PromptContext) error {
		return errors.New("bad json")
	})
	var se *trend.SynthesisError
	if !errors.As(err, &se) || se.Theme != "boucle" || se.Stage != StageCopy {
		t.Fatalf("err = %v, want SynthesisError for boucle/copy", err)
	}
}

func TestValidateConcepts(t *testing.T) {
	base := trend.PosterConcept{Title: "t", Mood: "m", Layout: "l", CallToAction: "c"}
	tests := []struct {
		name    string
		palette []string
		wantErr bool
	}{
		{"six digit", []string{"#a1b2c3"}, false},
		{"three digit", []string{"#abc"}, false},
		{"empty palette", nil, true},
		{"no hash", []string{"a1b2c3"}, true},
		{"four digit", []string{"#abcd"}, true},
		{"named color", []string{"#fff", "sage"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Palette = tt.palette
			_, err := validateConcepts([]trend.PosterConcept{c})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	missing := base
	missing.Palette = []string{"#fff"}
	missing.Mood = "  "
	if _, err := validateConcepts([]trend.PosterConcept{missing}); err == nil {
		t.Error("expected error for blank mood")
	}
}

func TestValidateCopy_RequiresFields(t *testing.T) {
	s := newTestSynth(&stubProvider{})
	tests := []struct {
		name string
		d    copyDraft
	}{
		{"empty summary", copyDraft{SocialPosts: []trend.SocialPost{{Platform: "instagram", Hook: "h", Body: "b", CTA: "c"}}}},
		{"no posts", copyDraft{Summary: "s"}},
		{"blank cta", copyDraft{Summary: "s", SocialPosts: []trend.SocialPost{{Platform: "tiktok", Hook: "h", Body: "b"}}}},
		{"unknown platform", copyDraft{Summary: "s", SocialPosts: []trend.SocialPost{{Platform: "linkedin", Hook: "h", Body: "b", CTA: "c"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := s.validateCopy(tt.d); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
