package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chyiyaqing/trendbot/internal/config"
	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/store"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

func init() {
	logger.Silence()
}

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Design Weekly</title>
  <item>
    <title>Warm minimalism   takes over</title>
    <link>https://design.example/warm-minimalism</link>
    <description>&lt;p&gt;Soft &lt;b&gt;oak&lt;/b&gt; and plaster.&lt;/p&gt;</description>
    <pubDate>Mon, 05 Oct 2026 10:00:00 +0200</pubDate>
  </item>
  <item>
    <title>Limewash walls</title>
    <link>https://design.example/limewash</link>
  </item>
  <item>
    <title>Third story</title>
    <link>https://design.example/third</link>
  </item>
</channel>
</rss>`

const redditListingJSON = `{
  "kind": "Listing",
  "data": {
    "children": [
      {"kind": "t3", "data": {"title": "Pinned rules", "permalink": "/r/x/comments/0/rules/", "stickied": true}},
      {"kind": "t3", "data": {"title": "My warm minimalism living room", "url": "https://i.redd.it/abc.jpg", "permalink": "/r/x/comments/1/living/", "created_utc": 1791194400, "selftext": ""}},
      {"kind": "t3", "data": {"title": "Article on limewash", "url": "https://mag.example/limewash?utm_source=reddit", "permalink": "/r/x/comments/2/limewash/", "created_utc": 1791198000}}
    ]
  }
}`

const searxngJSON = `{
  "query": "interior design trends",
  "results": [
    {"title": "Japandi is back", "url": "https://news.example/japandi", "content": "Calm rooms.", "publishedDate": "2026-10-04T08:30:00"},
    {"title": "", "url": "https://news.example/empty"},
    {"title": "Curved sofas", "url": "https://news.example/curves", "content": "Soft lines.", "publishedDate": null}
  ]
}`

type recorder struct {
	mu      sync.Mutex
	records []store.FetchRecord
}

func (r *recorder) RecordFetch(_ context.Context, rec store.FetchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func TestFetch_RSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFeed))
	}))
	defer srv.Close()

	f := New(Options{Timeout: 2 * time.Second}, nil)
	items, err := f.Fetch(context.Background(), config.Source{Name: "weekly", Kind: config.KindRSS, Endpoint: srv.URL, Limit: 2})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (limit)", len(items))
	}

	first := items[0]
	if first.Title != "Warm minimalism takes over" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Excerpt != "Soft oak and plaster." {
		t.Errorf("Excerpt = %q", first.Excerpt)
	}
	if first.Source != "weekly" {
		t.Errorf("Source = %q", first.Source)
	}
	want := time.Date(2026, 10, 5, 8, 0, 0, 0, time.UTC)
	if first.PublishedAt == nil || !first.PublishedAt.Equal(want) || first.PublishedAt.Location() != time.UTC {
		t.Errorf("PublishedAt = %v, want %v UTC", first.PublishedAt, want)
	}
	if items[1].PublishedAt != nil {
		t.Errorf("item without date got PublishedAt %v", items[1].PublishedAt)
	}
}

func TestFetch_Reddit(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(redditListingJSON))
	}))
	defer srv.Close()

	f := New(Options{Timeout: 2 * time.Second, MaxItems: 10}, nil)
	items, err := f.Fetch(context.Background(), config.Source{Name: "r/x", Kind: config.KindReddit, Endpoint: srv.URL + "/r/x/top.json?t=week"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotLimit != "10" {
		t.Errorf("limit query = %q, want 10", gotLimit)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (stickied skipped)", len(items))
	}
	if items[0].URL != srv.URL+"/r/x/comments/1/living/" {
		t.Errorf("image post URL = %q, want permalink", items[0].URL)
	}
	if items[1].URL != "https://mag.example/limewash?utm_source=reddit" {
		t.Errorf("link post URL = %q, want external link", items[1].URL)
	}
	if items[0].PublishedAt == nil || items[0].PublishedAt.Unix() != 1791194400 {
		t.Errorf("PublishedAt = %v", items[0].PublishedAt)
	}
}

func TestFetch_SearXNG(t *testing.T) {
	var gotPath, gotQuery, gotFormat, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(searxngJSON))
	}))
	defer srv.Close()

	f := New(Options{Timeout: 2 * time.Second}, nil)
	items, err := f.Fetch(context.Background(), config.Source{
		Name:     "search",
		Kind:     config.KindSearXNG,
		Endpoint: srv.URL,
		Query:    "interior design trends",
		Auth:     config.Auth{Token: "secret"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/search" || gotQuery != "interior design trends" || gotFormat != "json" {
		t.Errorf("request = %s q=%q format=%q", gotPath, gotQuery, gotFormat)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (untitled skipped)", len(items))
	}
	want := time.Date(2026, 10, 4, 8, 30, 0, 0, time.UTC)
	if items[0].PublishedAt == nil || !items[0].PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", items[0].PublishedAt, want)
	}
	if items[1].PublishedAt != nil {
		t.Errorf("null date parsed as %v", items[1].PublishedAt)
	}
}

func TestFetch_ErrorsAreSourceScoped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		default:
			w.Write([]byte("{not json"))
		}
	}))
	defer srv.Close()

	f := New(Options{Timeout: 2 * time.Second}, nil)
	cases := []config.Source{
		{Name: "down", Kind: config.KindRSS, Endpoint: srv.URL + "/down"},
		{Name: "garbled", Kind: config.KindReddit, Endpoint: srv.URL + "/garbled"},
		{Name: "odd", Kind: "gopher", Endpoint: srv.URL},
	}
	for _, src := range cases {
		t.Run(src.Name, func(t *testing.T) {
			items, err := f.Fetch(context.Background(), src)
			if items != nil {
				t.Errorf("items = %v, want nil", items)
			}
			var fe *trend.SourceFetchError
			if !errors.As(err, &fe) || fe.Source != src.Name {
				t.Fatalf("err = %v, want SourceFetchError for %s", err, src.Name)
			}
		})
	}
}

func TestFetchAll_IsolatesFailuresAndTimeouts(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			select {
			case <-release:
			case <-r.Context().Done():
			}
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(rssFeed))
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &recorder{}
	f := New(Options{Timeout: 200 * time.Millisecond, MaxConcurrency: 2}, rec)
	srcs := []config.Source{
		{Name: "slow", Kind: config.KindRSS, Endpoint: srv.URL + "/slow"},
		{Name: "good", Kind: config.KindRSS, Endpoint: srv.URL + "/feed"},
		{Name: "broken", Kind: config.KindRSS, Endpoint: srv.URL + "/broken"},
	}

	start := time.Now()
	res := f.FetchAll(context.Background(), srcs)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("FetchAll took %s, slow source was not bounded", elapsed)
	}

	if res.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", res.Succeeded)
	}
	if len(res.Items) != 3 {
		t.Errorf("got %d items, want 3 from the good source", len(res.Items))
	}
	if len(res.Failures) != 2 || res.Failures[0].Source != "slow" || res.Failures[1].Source != "broken" {
		t.Errorf("Failures = %v, want slow then broken", res.Failures)
	}
	if len(rec.records) != 3 {
		t.Fatalf("recorded %d fetches, want 3", len(rec.records))
	}
	for _, r := range rec.records {
		if (r.Source == "good") != (r.Error == "") {
			t.Errorf("record %+v has unexpected error state", r)
		}
	}
}

func TestFetch_EnrichesEmptyExcerpts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFeed))
	}))
	defer srv.Close()

	var calls []string
	f := New(Options{Timeout: 2 * time.Second, EnrichExcerpts: true}, nil)
	f.SetEnricher(func(_ context.Context, url string, timeout time.Duration) (string, error) {
		calls = append(calls, url)
		if timeout <= 0 {
			t.Errorf("enricher got non-positive timeout %s", timeout)
		}
		if strings.HasSuffix(url, "/third") {
			return "", errors.New("paywall")
		}
		return "  Chalky   <em>limewash</em> texture. ", nil
	})

	items, err := f.Fetch(context.Background(), config.Source{Name: "weekly", Kind: config.KindRSS, Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("enricher called %d times, want 2 (only empty excerpts)", len(calls))
	}
	if items[1].Excerpt != "Chalky limewash texture." {
		t.Errorf("enriched excerpt = %q", items[1].Excerpt)
	}
	if items[2].Excerpt != "" {
		t.Errorf("failed enrichment should leave excerpt empty, got %q", items[2].Excerpt)
	}
}

func TestCleanExcerpt(t *testing.T) {
	long := strings.Repeat("é", maxExcerptRunes+10)
	got := cleanExcerpt(long)
	if n := len([]rune(got)); n != maxExcerptRunes+3 {
		t.Errorf("truncated length = %d runes, want %d", n, maxExcerptRunes+3)
	}
	if got := cleanExcerpt("<script>x()</script><p>Hello &amp; welcome</p>"); got != "Hello & welcome" {
		t.Errorf("cleanExcerpt = %q", got)
	}
	if got := cleanExcerpt("plain\n\ttext"); got != "plain text" {
		t.Errorf("cleanExcerpt = %q", got)
	}
}
