package server

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/report"
	"github.com/chyiyaqing/trendbot/internal/store"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

var tmpl = template.Must(template.New("trends").Funcs(template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"fmtTime": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	},
	"css": func(s string) template.CSS { return template.CSS(s) },
}).Parse(trendsHTML))

const trendsHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Trendbot - Interior Trends</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f7f4ef; color: #333; }
  .container { max-width: 960px; margin: 0 auto; padding: 20px; }
  h1 { margin-bottom: 4px; font-size: 24px; }
  .generated { font-size: 13px; color: #999; margin-bottom: 24px; }
  .card {
    background: #fff; border-radius: 8px; padding: 16px 20px; margin-bottom: 16px;
    box-shadow: 0 1px 3px rgba(0,0,0,0.08);
  }
  .card-header { display: flex; align-items: baseline; gap: 12px; margin-bottom: 8px; }
  .rank { font-size: 18px; font-weight: 700; color: #8a6d4b; min-width: 28px; }
  .name { font-size: 18px; font-weight: 600; text-transform: capitalize; }
  .keyword { font-size: 12px; background: #efe7dc; color: #6b5641; padding: 2px 8px; border-radius: 4px; margin-right: 4px; }
  .summary { font-size: 14px; line-height: 1.6; margin: 10px 0; }
  h3 { font-size: 13px; text-transform: uppercase; color: #999; margin: 12px 0 6px; }
  .post { font-size: 13px; margin-bottom: 8px; line-height: 1.5; }
  .platform { font-weight: 600; text-transform: capitalize; }
  .swatch { display: inline-block; width: 22px; height: 22px; border-radius: 4px; margin-right: 4px; vertical-align: middle; border: 1px solid #ddd; }
  .poster { font-size: 13px; margin-bottom: 8px; }
  .source a { font-size: 13px; color: #1a1a1a; text-decoration: none; }
  .source a:hover { color: #8a6d4b; text-decoration: underline; }
  .meta { font-size: 12px; color: #aaa; }
  .excerpt { font-size: 12px; color: #666; line-height: 1.5; margin: 2px 0 6px; }
  .asset { font-size: 12px; color: #8a6d4b; margin-left: 6px; }
  .empty { text-align: center; padding: 60px 20px; color: #999; }
</style>
</head>
<body>
<div class="container">
  <h1>Interior Trends</h1>
  {{if .Error}}
  <div class="empty">{{.Error}}</div>
  {{else}}
  <div class="generated">Generated {{fmtTime .GeneratedAt}} UTC</div>
  {{range $i, $t := .Report.Themes}}
  <div class="card">
    <div class="card-header">
      <span class="rank">#{{add $i 1}}</span>
      <span class="name">{{$t.Name}}</span>
    </div>
    <div>{{range $j, $k := $t.Keywords}}{{if lt $j 4}}<span class="keyword">{{$k}}</span>{{end}}{{end}}</div>
    <div class="summary">{{$t.Summary}}</div>
    {{if $t.SocialPosts}}<h3>Social posts</h3>{{end}}
    {{range $t.SocialPosts}}
    <div class="post"><span class="platform">{{.Platform}}</span>: <b>{{.Hook}}</b> {{.Body}} <i>{{.CTA}}</i>
      {{range .Assets}}<a class="asset" href="{{.}}" target="_blank" rel="noopener">asset</a>{{end}}</div>
    {{end}}
    {{if $t.PosterConcepts}}<h3>Poster concepts</h3>{{end}}
    {{range $t.PosterConcepts}}
    <div class="poster">
      {{range .Palette}}<span class="swatch" style="background: {{css .}}"></span>{{end}}
      <b>{{.Title}}</b> &middot; {{.Mood}} &middot; {{.Layout}} &middot; <i>{{.CallToAction}}</i>
    </div>
    {{end}}
    <h3>Sources</h3>
    {{range $j, $it := $t.SupportingContent}}{{if lt $j 6}}
    <div class="source"><a href="{{$it.URL}}" target="_blank" rel="noopener">{{$it.Title}}</a> <span class="meta">{{$it.Source}} &middot; {{fmtTime $it.PublishedAt}}</span>
      {{if $it.Excerpt}}<div class="excerpt">{{$it.Excerpt}}</div>{{end}}</div>
    {{end}}{{end}}
    {{if gt (len $t.SupportingContent) 6}}<div class="meta">and {{add (len $t.SupportingContent) -6}} more</div>{{end}}
  </div>
  {{else}}
  <div class="empty">No trends yet.</div>
  {{end}}
  {{end}}
</div>
</body>
</html>`

type pageData struct {
	Error       string
	GeneratedAt *time.Time
	Report      *trend.TrendReport
}

// Reports is the trend report entry point.
type Reports interface {
	BuildTrendReport(ctx context.Context) (*trend.TrendReport, error)
	State() report.State
}

// OpsLog is the read side of the fetch/build log.
type OpsLog interface {
	SourceHealthByWindow(ctx context.Context, window string) ([]store.SourceHealth, error)
	RecentBuilds(ctx context.Context, limit int) ([]store.BuildRecord, error)
}

type Options struct {
	Addr string
	// Cache-Control directives for /api/trends.
	CacheMaxAge          time.Duration
	StaleWhileRevalidate time.Duration
	// RequestTimeout bounds how long a request waits for a report.
	RequestTimeout time.Duration
}

type Server struct {
	reports Reports
	ops     OpsLog
	opts    Options
	srv     *http.Server
}

func New(reports Reports, ops OpsLog, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}
	s := &Server{reports: reports, ops: ops, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/trends", s.handleAPITrends)
		r.Get("/sources", s.handleAPISources)
		r.Get("/builds", s.handleAPIBuilds)
	})

	s.srv = &http.Server{
		Addr:    opts.Addr,
		Handler: r,
	}
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	logger.Log.Infof("HTTP server listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	if err := s.srv.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.srv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	data := pageData{}
	rep, err := s.reports.BuildTrendReport(ctx)
	if err != nil {
		logger.Log.WithField("request_id", middleware.GetReqID(r.Context())).Errorf("render trends: %v", err)
		data.Error = reportErrorMessage
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		data.Report = rep
		data.GeneratedAt = &rep.GeneratedAt
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}

	if err := tmpl.Execute(w, data); err != nil {
		logger.Log.Errorf("render template: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"report": s.reports.State().String(),
	})
}

// requestLogger logs one line per request through logrus.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).Round(time.Millisecond),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
