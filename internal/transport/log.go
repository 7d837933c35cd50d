package transport

import (
	"context"

	logx "smsrelay/pkg/logx"
)

// Log is a dry-run driver: it records the send and reports success.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log { return &Log{log: log} }

func (l *Log) Deliver(ctx context.Context, destination, body string) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Destination: destination, Err: err}
	}
	l.log.Info("dry-run delivery", logx.String("to", destination), logx.Int("len", len(body)))
	l.log.Debug("dry-run body", logx.String("to", destination), logx.String("body", body))
	return nil
}
