package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cap-alert-service/internal/observability"
	"github.com/couchcryptid/cap-alert-service/internal/render"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.FixedZone("NZDT", 13*3600))
	out := render.Output{
		RunID:    "run-1",
		Message:  "HEAVY RAIN WARNING",
		Image:    []byte{0x89, 'P', 'N', 'G'},
		Format:   render.FormatMap,
		AlertIDs: []string{"a", "b"},
	}

	msg, err := serializeToMessage(out, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("run-1"), msg.Key)
	assert.JSONEq(t, `{
		"run_id": "run-1",
		"message": "HEAVY RAIN WARNING",
		"image": "iVBORw==",
		"format": "map",
		"alert_ids": ["a", "b"]
	}`, string(msg.Value))
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "format", msg.Headers[0].Key)
	assert.Equal(t, []byte("map"), msg.Headers[0].Value)
	assert.Equal(t, []byte("2"), msg.Headers[1].Value)
	assert.Equal(t, []byte("2026-10-13T20:30:00Z"), msg.Headers[2].Value)
}

func TestSerializeToMessage_TextOnly(t *testing.T) {
	msg, err := serializeToMessage(render.Output{RunID: "r", Message: "hi", Format: render.FormatText}, time.Now())
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(msg.Value, &p))
	assert.Nil(t, p.Image)
	assert.Empty(t, p.AlertIDs)
	assert.NotContains(t, string(msg.Value), `"image"`)
	assert.Contains(t, string(msg.Value), `"alert_ids":[]`)
}

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	metrics := observability.NewMetricsForTesting()
	p := newPublisher(w, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, p.Publish(context.Background(), render.Output{RunID: "run-1", Format: render.FormatText}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("run-1"), w.msgs[0].Key)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MessagesPublished.WithLabelValues("kafka")), 0)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	metrics := observability.NewMetricsForTesting()
	p := newPublisher(w, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := p.Publish(context.Background(), render.Output{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.MessagesPublished.WithLabelValues("kafka")), 0)
}
