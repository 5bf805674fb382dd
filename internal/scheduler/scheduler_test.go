package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(context.Context) (*models.RunReport, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &models.RunReport{}, nil
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(context.Background(), &countingRunner{}, "every tuesday")
	assert.Error(t, err)
}

func TestNew_Descriptor(t *testing.T) {
	s, err := New(context.Background(), &countingRunner{}, "@daily")
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRunOnce(t *testing.T) {
	for _, runErr := range []error{nil, services.ErrRunInProgress, errors.New("boom")} {
		r := &countingRunner{err: runErr}
		s, err := New(context.Background(), r, "30 17 * * 1-5")
		require.NoError(t, err)

		s.runOnce()
		assert.Equal(t, int32(1), r.calls.Load())
	}
}

func TestRunOnce_SkipsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &countingRunner{}
	s, err := New(ctx, r, "@hourly")
	require.NoError(t, err)

	s.runOnce()
	assert.Zero(t, r.calls.Load())
}
