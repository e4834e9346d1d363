package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
)

// Notifier delivers terminal-state summaries
type Notifier interface {
	// Notify sends the summary to destination; failures are *model.NotifyError
	Notify(ctx context.Context, destination string, summary Summary) error
	Close() error
}

// New creates the notifier selected by cfg.Driver
func New(cfg config.NotifierConfig, logger *slog.Logger) (Notifier, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "amqp":
		return NewAMQPNotifier(cfg.AMQP, logger)
	default:
		return nil, fmt.Errorf("unknown notifier driver %q", cfg.Driver)
	}
}

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that writes summaries to the log
func NewLogNotifier(logger *slog.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(ctx context.Context, destination string, summary Summary) error {
	if destination == "" {
		return &model.NotifyError{Destination: destination, Err: fmt.Errorf("empty destination")}
	}

	n.logger.Info("job summary",
		slog.String("destination", destination),
		slog.String("job_id", summary.JobID),
		slog.String("subject", summary.Subject()),
		slog.String("state", string(summary.State)),
		slog.Int("results", summary.ResultCount),
	)
	return nil
}

func (n *logNotifier) Close() error {
	return nil
}
