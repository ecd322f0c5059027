package ingest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"machine_monitor"
	"machine_monitor/internal/logger"
	"machine_monitor/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

// sliceReader serves queued messages and then reports io.EOF.
type sliceReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error { return nil }

// recordingProcessor returns the queued errors for a machine one call at a time.
type recordingProcessor struct {
	signals []machine_monitor.Signal
	errFor  map[string][]error
}

func (p *recordingProcessor) ProcessSignal(_ context.Context, sig machine_monitor.Signal) error {
	p.signals = append(p.signals, sig)
	errs := p.errFor[sig.Machine]
	if len(errs) == 0 {
		return nil
	}
	p.errFor[sig.Machine] = errs[1:]
	return errs[0]
}

// failingProcessor always fails and cancels the run on its first call.
type failingProcessor struct {
	calls  int
	cancel context.CancelFunc
}

func (p *failingProcessor) ProcessSignal(context.Context, machine_monitor.Signal) error {
	p.calls++
	p.cancel()
	return service.ErrPersist
}

func newTestConsumer(reader Reader, proc SignalProcessor) *Consumer {
	c := NewConsumer(reader, proc, logger.Nop())
	c.retryDelay = time.Millisecond
	return c
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "machine-signals", Offset: offset, Value: []byte(value)}
}

func TestConsumer_Run(t *testing.T) {
	reader := &sliceReader{queue: []kafka.Message{
		message(1, `{"machine":"press-1","bits":1,"timestamp":"2024-01-06T08:00:00Z","source":"plc"}`),
		message(2, `not json`),
		message(3, `{"type":"fault"}`),
		message(4, `{"machine":"ghost","type":"idle"}`),
		message(5, `{"machine":"press-2","type":"fault","reason":"material_shortage"}`),
	}}
	proc := &recordingProcessor{errFor: map[string][]error{
		"ghost":   {fmt.Errorf("%w: %q", service.ErrUnknownMachine, "ghost")},
		"press-2": {service.ErrPersist, service.ErrPersist},
	}}

	err := newTestConsumer(reader, proc).Run(context.Background())
	require.NoError(t, err)

	// press-2 fails twice and succeeds on the third attempt
	require.Len(t, proc.signals, 5)
	require.NotNil(t, proc.signals[0].Bits)
	require.Equal(t, uint32(1), *proc.signals[0].Bits)
	require.Equal(t, time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC), proc.signals[0].Timestamp.UTC())
	require.Equal(t, "material_shortage", proc.signals[2].Reason)

	require.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committed)
}

func TestConsumer_FailedSignalBlocksLaterCommits(t *testing.T) {
	reader := &sliceReader{queue: []kafka.Message{
		message(1, `{"machine":"press-1","type":"idle"}`),
		message(2, `{"machine":"press-2","type":"idle"}`),
	}}
	proc := &recordingProcessor{errFor: map[string][]error{
		"press-1": {service.ErrPersist},
	}}

	err := newTestConsumer(reader, proc).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"press-1", "press-1", "press-2"},
		[]string{proc.signals[0].Machine, proc.signals[1].Machine, proc.signals[2].Machine})
	require.Equal(t, []int64{1, 2}, reader.committed)
}

func TestConsumer_CancelDuringRetryLeavesMessageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &sliceReader{queue: []kafka.Message{
		message(1, `{"machine":"press-1","type":"idle"}`),
		message(2, `{"machine":"press-2","type":"idle"}`),
	}}
	proc := &failingProcessor{cancel: cancel}

	err := newTestConsumer(reader, proc).Run(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, proc.calls)
	require.Empty(t, reader.committed)
	require.Len(t, reader.queue, 1)
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestConsumer(&sliceReader{}, &recordingProcessor{}).Run(ctx)
	require.NoError(t, err)
}

func TestDecodeSignal(t *testing.T) {
	_, err := decodeSignal([]byte(`{"machine":"  "}`))
	require.Error(t, err)

	sig, err := decodeSignal([]byte(`{"machine":"m-1","job_id":"j-1"}`))
	require.NoError(t, err)
	require.Equal(t, "j-1", sig.JobID)
	require.Nil(t, sig.Bits)
}
