package redissink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	obslogger "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	DefaultPrefix = "lifecyclesim"

	keyStream        = "%s:%s:%s"
	unknownPartition = "unknown"
	pipelineSize     = 1000
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Sink appends every record to a Redis stream per dataset and event date:
// <prefix>:<dataset>:<YYYY-MM-DD>.
type Sink struct {
	client redis.Cmdable
	prefix string
	log    *zap.Logger
}

func New(opts Options, log *zap.Logger) (*Sink, *redis.Client, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, nil, errors.New("redis sink addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(opts.Password),
		DB:       opts.DB,
	})
	return NewWithClient(client, opts.Prefix, log), client, nil
}

func NewWithClient(client redis.Cmdable, prefix string, log *zap.Logger) *Sink {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{client: client, prefix: prefix, log: log.Named("sink.redis")}
}

// StreamKey names the stream a record of dataset dated date lands in.
func (s *Sink) StreamKey(dataset, date string) string {
	return fmt.Sprintf(keyStream, s.prefix, dataset, date)
}

// Messages renders batch as XADD arguments in batch order.
func (s *Sink) Messages(ctx context.Context, batch event.Batch, dataset, tsField string) ([]*redis.XAddArgs, error) {
	runID := obslogger.RunIDFromContext(ctx)
	era := obslogger.EraFromContext(ctx)

	out := make([]*redis.XAddArgs, 0, len(batch))
	for _, r := range batch {
		payload, err := json.Marshal(event.Encode(r))
		if err != nil {
			return nil, fmt.Errorf("encode %s record: %w", dataset, err)
		}
		date, ok := event.EventDate(r, tsField)
		if !ok {
			date = unknownPartition
		}
		out = append(out, &redis.XAddArgs{
			Stream: s.StreamKey(dataset, date),
			Values: map[string]any{
				"run_id":  runID,
				"era":     era,
				"dataset": dataset,
				"payload": string(payload),
			},
		})
	}
	return out, nil
}

func (s *Sink) Write(ctx context.Context, batch event.Batch, dataset, tsField string) error {
	if len(batch) == 0 {
		return nil
	}
	msgs, err := s.Messages(ctx, batch, dataset, tsField)
	if err != nil {
		return err
	}

	for start := 0; start < len(msgs); start += pipelineSize {
		end := start + pipelineSize
		if end > len(msgs) {
			end = len(msgs)
		}
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, msg := range msgs[start:end] {
				pipe.XAdd(ctx, msg)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	obslogger.WithContext(ctx, s.log).Debug("sink.redis.written",
		zap.String("dataset", dataset),
		zap.Int("records", len(msgs)),
	)
	return nil
}
