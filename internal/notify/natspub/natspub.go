// Package natspub announces new trend reports on a NATS subject.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Event is the payload published to "<subject>.built".
type Event struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	ThemeCount  int          `json:"themeCount"`
	ItemCount   int          `json:"itemCount"`
	Themes      []ThemeBrief `json:"themes"`
}

type ThemeBrief struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Items    int      `json:"items"`
}

type Publisher struct {
	conn    Conn
	subject string
}

func New(conn Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Connect dials the server with reconnect logging.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("trendbot"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

func (p *Publisher) ReportBuilt(ctx context.Context, r *trend.TrendReport) error {
	ev := Event{
		GeneratedAt: r.GeneratedAt,
		ThemeCount:  len(r.Themes),
		ItemCount:   r.ItemCount(),
		Themes:      make([]ThemeBrief, 0, len(r.Themes)),
	}
	for _, th := range r.Themes {
		ev.Themes = append(ev.Themes, ThemeBrief{
			Name:     th.Name,
			Keywords: th.Keywords,
			Items:    len(th.SupportingContent),
		})
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.subject + ".built"
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return p.conn.FlushWithContext(ctx)
}
