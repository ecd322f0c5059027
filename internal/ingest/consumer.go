// Package ingest feeds machine signals from Kafka into the activity tracker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"machine_monitor"
	"machine_monitor/internal/logger"
	"machine_monitor/internal/service"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

const (
	fetchRetryDelay   = time.Second
	processRetryDelay = time.Second
)

// Reader is the part of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SignalProcessor records one decoded signal.
type SignalProcessor interface {
	ProcessSignal(ctx context.Context, sig machine_monitor.Signal) error
}

var messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "machine_monitor",
	Subsystem: "ingest",
	Name:      "messages_total",
	Help:      "Signal messages consumed from Kafka, labeled by result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(messagesCounter)
}

type Consumer struct {
	reader     Reader
	processor  SignalProcessor
	retryDelay time.Duration
	log        *logger.Logger
}

func NewConsumer(reader Reader, processor SignalProcessor, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, processor: processor, retryDelay: processRetryDelay, log: log.Named("ingest")}
}

// NewKafkaReader builds a consumer-group reader for the signals topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// Run consumes until ctx is canceled or the reader is closed.
// Malformed messages and signals for unknown machines are committed and skipped.
// Other processing failures are retried in place, so the partition does not
// advance past a signal that was never recorded.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Warnw("signal_fetch_failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		sig, err := decodeSignal(msg.Value)
		if err != nil {
			c.log.Warnw("signal_decode_failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
			messagesCounter.WithLabelValues("malformed").Inc()
			c.commit(ctx, msg)
			continue
		}

		if !c.process(ctx, msg, sig) {
			return nil
		}
		c.commit(ctx, msg)
	}
}

// process returns false when ctx ends before the signal is handled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, sig machine_monitor.Signal) bool {
	for attempt := 1; ; attempt++ {
		err := c.processor.ProcessSignal(ctx, sig)
		switch {
		case err == nil:
			messagesCounter.WithLabelValues("processed").Inc()
			return true
		case errors.Is(err, service.ErrUnknownMachine):
			c.log.Warnw("signal_unknown_machine", "machine", sig.Machine, "offset", msg.Offset)
			messagesCounter.WithLabelValues("unknown_machine").Inc()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.Errorw("signal_process_failed", "machine", sig.Machine, "offset", msg.Offset, "attempt", attempt, "err", err)
		messagesCounter.WithLabelValues("failed").Inc()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.log.Warnw("signal_commit_failed", "offset", msg.Offset, "err", err)
	}
}

func decodeSignal(raw []byte) (machine_monitor.Signal, error) {
	var sig machine_monitor.Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return sig, fmt.Errorf("decode signal: %w", err)
	}
	if strings.TrimSpace(sig.Machine) == "" {
		return sig, errors.New("decode signal: machine is required")
	}
	return sig, nil
}
