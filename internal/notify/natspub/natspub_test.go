package natspub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/chyiyaqing/trendbot/internal/trend"
)

type fakeConn struct {
	subject string
	data    []byte
	flushed bool
	err     error
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.subject, c.data = subj, data
	return c.err
}

func (c *fakeConn) FlushWithContext(context.Context) error {
	c.flushed = true
	return nil
}

func TestReportBuilt(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "trends.report")
	r := &trend.TrendReport{
		GeneratedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		Themes: []trend.TrendTheme{{
			Name:              "warm minimalism",
			Keywords:          []string{"minimalism", "warm"},
			SupportingContent: []trend.SupportingContentItem{{ID: "1"}, {ID: "2"}},
		}},
	}

	if err := p.ReportBuilt(context.Background(), r); err != nil {
		t.Fatalf("ReportBuilt: %v", err)
	}
	if conn.subject != "trends.report.built" || !conn.flushed {
		t.Errorf("subject = %q flushed = %v", conn.subject, conn.flushed)
	}

	var ev Event
	if err := json.Unmarshal(conn.data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.ThemeCount != 1 || ev.ItemCount != 2 || ev.Themes[0].Name != "warm minimalism" || ev.Themes[0].Items != 2 {
		t.Errorf("event = %+v", ev)
	}
	if !ev.GeneratedAt.Equal(r.GeneratedAt) {
		t.Errorf("GeneratedAt = %v", ev.GeneratedAt)
	}
}

func TestReportBuilt_PublishError(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	if err := New(conn, "trends").ReportBuilt(context.Background(), &trend.TrendReport{}); err == nil {
		t.Error("expected publish error")
	}
	if conn.flushed {
		t.Error("flushed after failed publish")
	}
}
