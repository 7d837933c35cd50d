package trigger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	rtsup "smsrelay/internal/runtime/supervisor"
	logx "smsrelay/pkg/logx"
)

const commitTimeout = 5 * time.Second

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10e6
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 500 * time.Millisecond
	}
	return c
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(cfg KafkaConfig) (*kafka.Reader, error) {
	cfg = cfg.withDefaults()
	var brokers []string
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" || strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka: brokers, topic and group_id are required")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	}), nil
}

// Consumer feeds Kafka records into an Ingestor. Each record is dispatched
// and then committed; undecodable records are committed and skipped.
type Consumer struct {
	in  *Ingestor
	r   Reader
	log logx.Logger

	mu  sync.Mutex
	sup *rtsup.Supervisor
}

func NewConsumer(in *Ingestor, r Reader, log logx.Logger) *Consumer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Consumer{in: in, r: r, log: log.With(logx.String("comp", "trigger.kafka"))}
}

func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sup != nil {
		return
	}
	c.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(c.log), rtsup.WithCancelOnError(false))
	c.sup.GoRestart("trigger.kafka", c.run,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithPublishFirstError(true),
	)
	c.log.Info("kafka consumer started")
}

// Stop cancels the fetch loop, waits for it and closes the reader.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	sup := c.sup
	c.sup = nil
	c.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	if cerr := c.r.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (c *Consumer) run(ctx context.Context) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handle(ctx, m)
		if err := c.commit(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// commit still runs after Stop canceled ctx, so a record that was already
// dispatched is not redelivered.
func (c *Consumer) commit(ctx context.Context, m kafka.Message) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	return c.r.CommitMessages(cctx, m)
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	at := m.Time
	if at.IsZero() {
		at = c.in.now()
	}
	req, err := Decode(m.Value, at)
	if err != nil {
		c.log.Warn("bad kafka record", logx.Int("partition", m.Partition), logx.Int64("offset", m.Offset), logx.Err(err))
		return
	}
	res := c.in.Handle(ctx, req)
	c.log.Debug("kafka record dispatched",
		logx.Int64("offset", m.Offset),
		logx.String("state", string(res.State)),
		logx.String("cid", res.CorrelationID),
	)
}
