package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/tracing"
)

// Serve is the child side of the protocol: it reads one task from in, runs its handler and writes
// exactly one response line to out. Nothing else may be written to out.
func Serve(ctx context.Context, in io.Reader, out io.Writer, registry *Registry, log logger.Logger) error {
	var task dto.WorkerTask
	if err := json.NewDecoder(in).Decode(&task); err != nil {
		return errors.Wrap(err, "decode worker task")
	}

	ctx, span := tracing.StartWorkerTaskSpan(ctx, "Worker."+task.Action.String(), task.Trace)
	defer span.Finish()
	tracing.SetDefaultWorkerSpanTags(ctx, span)
	tracing.TagEntity(span, task.ID)

	log.Debugf("Worker task %s received, action %s", task.ID, task.Action)
	response := dispatch(ctx, registry, task)
	if !response.OK {
		log.Warnf("Worker task %s failed: %s", task.ID, response.Error.Message)
	}

	if err := json.NewEncoder(out).Encode(response); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "write worker response")
	}
	return nil
}

func dispatch(ctx context.Context, registry *Registry, task dto.WorkerTask) (response dto.WorkerResponse) {
	response.TaskID = task.ID

	handler, ok := registry.Handler(task.Action)
	if !ok {
		response.Error = &dto.WorkerTaskError{Message: fmt.Sprintf("%s: %s", apperrors.ErrUnknownAction, task.Action)}
		return response
	}

	result, err := handler(ctx, task.Args)
	if err != nil {
		response.Error = &dto.WorkerTaskError{Message: err.Error(), Retriable: isRetriableTaskErr(err)}
		return response
	}

	raw, err := json.Marshal(result)
	if err != nil {
		response.Error = &dto.WorkerTaskError{Message: errors.Wrap(err, "marshal result").Error()}
		return response
	}

	response.OK = true
	response.Result = raw
	return response
}

// dispatchRecovered turns a handler panic into a crash report for the in-process runner.
func dispatchRecovered(ctx context.Context, registry *Registry, task dto.WorkerTask) (response dto.WorkerResponse, panicked string) {
	defer func() {
		if r := recover(); r != nil {
			panicked = fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return dispatch(ctx, registry, task), ""
}

func isRetriableTaskErr(err error) bool {
	var taskErr *apperrors.TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Retriable
	}
	return false
}

// interpretResponse validates one response line against the task that produced it.
func interpretResponse(task dto.WorkerTask, line []byte) (json.RawMessage, enum.WorkerOutcome, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, enum.WorkerOutcomeCrashed, errors.New("no response on stdout")
	}
	if !json.Valid(line) {
		return nil, enum.WorkerOutcomeCrashed, errors.Errorf("non-JSON output: %q", truncate(line, 200))
	}

	var response dto.WorkerResponse
	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&response); err != nil {
		return nil, enum.WorkerOutcomeProtocolError, errors.Wrap(err, "response does not match schema")
	}
	if response.TaskID != task.ID {
		return nil, enum.WorkerOutcomeProtocolError, errors.Errorf("response for task %q, expected %q", response.TaskID, task.ID)
	}
	if !response.OK {
		if response.Error == nil {
			return nil, enum.WorkerOutcomeProtocolError, errors.New("failed response without error")
		}
		return nil, enum.WorkerOutcomeTaskFailed, &apperrors.TaskError{Message: response.Error.Message, Retriable: response.Error.Retriable}
	}
	if len(response.Result) == 0 {
		return nil, enum.WorkerOutcomeProtocolError, errors.New("successful response without result")
	}
	return response.Result, enum.WorkerOutcomeSuccess, nil
}

func truncate(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	return b[:max]
}
