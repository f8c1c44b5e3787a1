package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	for _, in := range []string{"", "fail-fast", "FailFast", " failfast "} {
		p, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, "fail-fast", p.Name(), in)
	}

	p, err := ParsePolicy("Collect")
	require.NoError(t, err)
	assert.Equal(t, "collect", p.Name())

	_, err = ParsePolicy("retry")
	assert.Error(t, err)
}

func TestFailFast_FirstErrorCancelsSiblings(t *testing.T) {
	boom := errors.New("boom")
	var cancelled atomic.Bool

	err := FailFast{}.Run(context.Background(), []Task{
		func(context.Context) error { return boom },
		func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				cancelled.Store(true)
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	})

	require.ErrorIs(t, err, boom)
	assert.True(t, cancelled.Load())
}

func TestFailFast_NoTasks(t *testing.T) {
	assert.NoError(t, FailFast{}.Run(context.Background(), nil))
}

func TestCollectErrors_RunsEverything(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	var ran atomic.Int32

	err := CollectErrors{}.Run(context.Background(), []Task{
		func(context.Context) error { ran.Add(1); return first },
		func(context.Context) error { ran.Add(1); return nil },
		func(context.Context) error { ran.Add(1); return second },
	})

	assert.Equal(t, int32(3), ran.Load())
	var pe *PartialError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Errs, 2)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Contains(t, err.Error(), "2 failures")
}

func TestCollectErrors_FlattensNested(t *testing.T) {
	leaf := errors.New("leaf")
	err := CollectErrors{}.Run(context.Background(), []Task{
		func(context.Context) error { return &PartialError{Errs: []error{leaf, leaf}} },
		func(context.Context) error { return leaf },
	})

	var pe *PartialError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Errs, 3)
}

func TestCollectErrors_AllSucceed(t *testing.T) {
	err := CollectErrors{}.Run(context.Background(), []Task{
		func(context.Context) error { return nil },
	})
	assert.NoError(t, err)
}

func TestPartialError_Single(t *testing.T) {
	err := &PartialError{Errs: []error{errors.New("only")}}
	assert.Equal(t, "only", err.Error())
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, time.Minute))
	assert.Equal(t, time.Second, nextBackoff(800*time.Millisecond, time.Second))
	assert.Equal(t, time.Second, nextBackoff(time.Second, time.Second))
}
