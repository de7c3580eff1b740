package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"thumbq/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stub struct {
	calls int
	err   error
}

func (s *stub) NotifyTaskOutcome(context.Context, domain.TaskOutcome) error {
	s.calls++
	return s.err
}

func (s *stub) NotifyBatchCompletion(context.Context, domain.BatchCompletion) error {
	s.calls++
	return s.err
}

func TestMultiDeliversToAll(t *testing.T) {
	errDown := errors.New("down")
	a, b, c := &stub{}, &stub{err: errDown}, &stub{}
	m := Multi{a, b, c}

	err := m.NotifyTaskOutcome(context.Background(), domain.TaskOutcome{TaskID: "t"})
	assert.ErrorIs(t, err, errDown)
	require.NoError(t, Multi{a, c}.NotifyBatchCompletion(context.Background(), domain.BatchCompletion{}))

	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 2, c.calls)
}

func TestLogWritesToContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	require.NoError(t, Log{}.NotifyBatchCompletion(ctx, domain.BatchCompletion{BatchID: "b1", Subject: "All 2 thumbnails are ready!"}))
	assert.Contains(t, buf.String(), `"batch_id":"b1"`)
	assert.Contains(t, buf.String(), "All 2 thumbnails are ready!")

	buf.Reset()
	require.NoError(t, Log{}.NotifyTaskOutcome(ctx, domain.TaskOutcome{TaskID: "t1", Status: domain.StatusFailed}))
	assert.Contains(t, buf.String(), `"status":"failed"`)
}
