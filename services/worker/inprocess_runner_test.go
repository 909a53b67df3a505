package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
)

type echoArgs struct {
	Text string `json:"text"`
}

func testRegistry() *Registry {
	return NewRegistry().
		Register(enum.WorkerActionProviderList, func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args echoArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			return echoArgs{Text: strings.ToUpper(args.Text)}, nil
		}).
		Register(enum.WorkerActionProviderFetch, func(ctx context.Context, raw json.RawMessage) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return echoArgs{}, nil
			}
		}).
		Register(enum.WorkerActionLinguisticBatch, func(ctx context.Context, raw json.RawMessage) (any, error) {
			panic("analyzer exploded")
		})
}

func TestInProcessRunner_Success(t *testing.T) {
	runner := NewInProcessRunner(testWorkerConfig(), testRegistry(), logger.NewNopLogger())
	task, err := NewTask(context.Background(), enum.WorkerActionProviderList, echoArgs{Text: "hello"})
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), task, time.Second)
	require.NoError(t, err)

	out, err := DecodeResult[echoArgs](result)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out.Text)
	assert.Equal(t, enum.WorkerOutcomeSuccess, result.Handle.Outcome)
}

func TestInProcessRunner_Timeout(t *testing.T) {
	runner := NewInProcessRunner(testWorkerConfig(), testRegistry(), logger.NewNopLogger())
	task, err := NewTask(context.Background(), enum.WorkerActionProviderFetch, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = runner.Run(context.Background(), task, 50*time.Millisecond)
	assert.ErrorIs(t, err, apperrors.ErrWorkerTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInProcessRunner_PanicIsCrash(t *testing.T) {
	runner := NewInProcessRunner(testWorkerConfig(), testRegistry(), logger.NewNopLogger())
	task, err := NewTask(context.Background(), enum.WorkerActionLinguisticBatch, nil)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), task, time.Second)
	require.ErrorIs(t, err, apperrors.ErrWorkerCrashed)

	var workerErr *apperrors.WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Contains(t, workerErr.Stderr, "analyzer exploded")
}

func TestInProcessRunner_UnknownActionIsPermanentTaskFailure(t *testing.T) {
	runner := NewInProcessRunner(testWorkerConfig(), NewRegistry(), logger.NewNopLogger())
	task, err := NewTask(context.Background(), enum.WorkerActionProviderList, nil)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), task, time.Second)
	require.ErrorIs(t, err, apperrors.ErrTaskFailed)
	assert.False(t, apperrors.IsRetriable(err))
}

func TestInProcessRunner_IgnoresCallerCancellation(t *testing.T) {
	runner := NewInProcessRunner(testWorkerConfig(), testRegistry(), logger.NewNopLogger())
	task, err := NewTask(context.Background(), enum.WorkerActionProviderList, echoArgs{Text: "still here"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.Run(ctx, task, time.Second)
	require.NoError(t, err)
	out, err := DecodeResult[echoArgs](result)
	require.NoError(t, err)
	assert.Equal(t, "STILL HERE", out.Text)
}

func TestServe_WritesSingleResponseLine(t *testing.T) {
	task, err := NewTask(context.Background(), enum.WorkerActionProviderList, echoArgs{Text: "abc"})
	require.NoError(t, err)
	payload, err := json.Marshal(task)
	require.NoError(t, err)

	var out bytes.Buffer
	err = Serve(context.Background(), bytes.NewReader(payload), &out, testRegistry(), logger.NewNopLogger())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 1)

	var response dto.WorkerResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &response))
	assert.True(t, response.OK)
	assert.Equal(t, task.ID, response.TaskID)
	assert.JSONEq(t, `{"text":"ABC"}`, string(response.Result))
}

func TestServe_RejectsGarbageInput(t *testing.T) {
	var out bytes.Buffer
	err := Serve(context.Background(), strings.NewReader("not json"), &out, testRegistry(), logger.NewNopLogger())
	assert.Error(t, err)
	assert.Zero(t, out.Len())
}

func TestInterpretResponse_RequiresResultOnSuccess(t *testing.T) {
	task := dto.WorkerTask{ID: "task_1"}
	_, outcome, err := interpretResponse(task, []byte(`{"taskId":"task_1","ok":true}`))
	assert.Error(t, err)
	assert.Equal(t, enum.WorkerOutcomeProtocolError, outcome)
}
