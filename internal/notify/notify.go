package notify

import (
	"context"

	"github.com/chyiyaqing/trendbot/internal/trend"
)

// Notifier delivers a digest as an ordered list of messages.
type Notifier interface {
	Send(ctx context.Context, messages []string) error
}

// Formatter renders a report as messages: a header, then one per theme.
type Formatter func(r *trend.TrendReport) []string

// ReportListener sends every new report through a Notifier.
type ReportListener struct {
	notifier Notifier
	format   Formatter
}

func NewReportListener(n Notifier, format Formatter) *ReportListener {
	return &ReportListener{notifier: n, format: format}
}

func (l *ReportListener) ReportBuilt(ctx context.Context, r *trend.TrendReport) error {
	if len(r.Themes) == 0 {
		return nil
	}
	return l.notifier.Send(ctx, l.format(r))
}
