package worker

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

type inProcessRunner struct {
	cfg      *config.WorkerConfig
	registry *Registry
	log      logger.Logger
}

// NewInProcessRunner runs handlers in a goroutine of the current process. Responses still go through
// JSON so handlers behave exactly as they do in a child. A handler that overruns its deadline is
// abandoned with its context cancelled.
func NewInProcessRunner(cfg *config.WorkerConfig, registry *Registry, log logger.Logger) interfaces.WorkerRunner {
	return &inProcessRunner{cfg: cfg, registry: registry, log: log}
}

func (r *inProcessRunner) Run(ctx context.Context, task dto.WorkerTask, timeout time.Duration) (*models.WorkerResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "InProcessRunner.Run")
	defer span.Finish()
	tracing.SetDefaultWorkerSpanTags(ctx, span)
	tracing.TagEntity(span, task.ID)
	span.LogKV("action", task.Action.String())

	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	handle := models.WorkerHandle{
		ID:        task.ID,
		PID:       os.Getpid(),
		Action:    task.Action,
		SpawnedAt: utils.Now(),
	}
	handle.Deadline = handle.SpawnedAt.Add(timeout)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	type outcome struct {
		line     []byte
		panicked string
	}
	done := make(chan outcome, 1)
	go func() {
		response, panicked := dispatchRecovered(runCtx, r.registry, task)
		line, _ := json.Marshal(response)
		done <- outcome{line: line, panicked: panicked}
	}()

	var result outcome
	timedOut := false
	select {
	case result = <-done:
		// A handler that gave up because of the deadline still counts as a timeout.
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
	case <-runCtx.Done():
		timedOut = true
	}

	if timedOut {
		handle.FinishedAt = utils.Now()
		handle.Outcome = enum.WorkerOutcomeTimeout
		handle.ExitCode = -1
		err := &apperrors.WorkerError{Kind: apperrors.ErrWorkerTimeout, TaskID: task.ID, Action: task.Action.String(), PID: handle.PID, ExitCode: -1,
			Cause: errors.Errorf("deadline of %s exceeded", timeout)}
		r.log.Warnf("In-process task %s (%s) timed out after %s", task.ID, task.Action, timeout)
		tracing.TraceErr(span, err)
		return nil, err
	}

	handle.FinishedAt = utils.Now()
	if result.panicked != "" {
		handle.Outcome = enum.WorkerOutcomeCrashed
		handle.ExitCode = 2
		err := &apperrors.WorkerError{Kind: apperrors.ErrWorkerCrashed, TaskID: task.ID, Action: task.Action.String(), PID: handle.PID, ExitCode: 2,
			Stderr: result.panicked, Cause: errors.New("handler panicked")}
		r.log.Errorf("In-process task %s (%s) panicked: %s", task.ID, task.Action, result.panicked)
		tracing.TraceErr(span, err)
		return nil, err
	}

	output, outcomeKind, err := interpretResponse(task, result.line)
	handle.Outcome = outcomeKind
	if err != nil {
		tracing.TraceErr(span, err)
		if outcomeKind == enum.WorkerOutcomeTaskFailed {
			return nil, err
		}
		kind := apperrors.ErrWorkerProtocol
		if outcomeKind == enum.WorkerOutcomeCrashed {
			kind = apperrors.ErrWorkerCrashed
		}
		return nil, &apperrors.WorkerError{Kind: kind, TaskID: task.ID, Action: task.Action.String(), PID: handle.PID, Cause: err}
	}

	r.log.Debugf("In-process task %s (%s) finished in %s", task.ID, task.Action, handle.Duration())
	return &models.WorkerResult{Handle: handle, Output: output}, nil
}
