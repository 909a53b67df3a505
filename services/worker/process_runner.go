package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

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

const (
	// EnvWorkerChild is set in every child's environment.
	EnvWorkerChild = "BEACON_WORKER"

	maxResponseBytes = 64 << 20
)

type processRunner struct {
	cfg     *config.WorkerConfig
	log     logger.Logger
	binary  string
	args    []string
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

type ProcessOption func(*processRunner)

// WithCommand replaces the child command line. By default the runner re-executes its own binary with
// the "worker" subcommand.
func WithCommand(binary string, args ...string) ProcessOption {
	return func(r *processRunner) {
		r.binary = binary
		r.args = args
	}
}

func NewProcessRunner(cfg *config.WorkerConfig, log logger.Logger, opts ...ProcessOption) (interfaces.WorkerRunner, error) {
	r := &processRunner{
		cfg:  cfg,
		log:  log,
		args: []string{"worker"},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.binary == "" {
		r.binary = cfg.Binary
	}
	if r.binary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "resolve worker binary")
		}
		r.binary = self
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	r.sem = semaphore.NewWeighted(int64(maxConcurrent))

	limit := rate.Inf
	if cfg.SpawnRate > 0 {
		limit = rate.Limit(cfg.SpawnRate)
	}
	burst := cfg.SpawnBurst
	if burst <= 0 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(limit, burst)

	return r, nil
}

// Run spawns one child for task and returns only after the child is gone. Cancelling ctx aborts a task
// that is still waiting for a slot; once spawned, the child is bounded by timeout alone.
func (r *processRunner) Run(ctx context.Context, task dto.WorkerTask, timeout time.Duration) (*models.WorkerResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProcessRunner.Run")
	defer span.Finish()
	tracing.SetDefaultWorkerSpanTags(ctx, span)
	tracing.TagEntity(span, task.ID)
	span.LogKV("action", task.Action.String())

	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "waiting for worker slot")
	}
	defer r.sem.Release(1)
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for worker spawn")
	}

	result, err := r.run(context.WithoutCancel(ctx), task, timeout)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return result, err
}

func (r *processRunner) run(ctx context.Context, task dto.WorkerTask, timeout time.Duration) (*models.WorkerResult, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, errors.Wrap(err, "marshal worker task")
	}

	stdout := newResponseWriter(maxResponseBytes)
	stderr := newBoundedBuffer(r.stderrLimit())

	cmd := exec.Command(r.binary, r.args...)
	cmd.Env = append(os.Environ(), EnvWorkerChild+"=1")
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Bounds Wait when a grandchild keeps the pipes open after the child is gone.
	cmd.WaitDelay = r.cfg.KillTimeout

	handle := models.WorkerHandle{
		ID:        task.ID,
		Action:    task.Action,
		SpawnedAt: utils.Now(),
	}
	handle.Deadline = handle.SpawnedAt.Add(timeout)

	if err := cmd.Start(); err != nil {
		handle.FinishedAt = utils.Now()
		handle.Outcome = enum.WorkerOutcomeCrashed
		r.logFinished(handle, err)
		return nil, &apperrors.WorkerError{Kind: apperrors.ErrWorkerCrashed, TaskID: task.ID, Action: task.Action.String(), Cause: errors.Wrap(err, "start worker")}
	}
	handle.PID = cmd.Process.Pid
	r.log.Logger().Info("worker started",
		zap.String("task_id", task.ID),
		zap.String("action", task.Action.String()),
		zap.Int("pid", handle.PID),
		zap.Duration("timeout", timeout),
	)

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var waitErr error
	exited, timedOut, signaled := false, false, false
	select {
	case waitErr = <-waitCh:
		exited = true
	case <-stdout.Ready():
	case <-deadline.C:
		timedOut = true
	}

	if !exited {
		signaled, waitErr = r.terminate(cmd, waitCh, !timedOut)
	}

	handle.FinishedAt = utils.Now()
	handle.ExitCode = cmd.ProcessState.ExitCode()
	handle.PeakRSSKB = peakRSSKB(cmd.ProcessState)

	workerErr := func(kind error, cause error) *apperrors.WorkerError {
		return &apperrors.WorkerError{
			Kind:     kind,
			TaskID:   task.ID,
			Action:   task.Action.String(),
			PID:      handle.PID,
			ExitCode: handle.ExitCode,
			Stderr:   stderr.String(),
			Cause:    cause,
		}
	}

	if timedOut {
		handle.Outcome = enum.WorkerOutcomeTimeout
		err := workerErr(apperrors.ErrWorkerTimeout, errors.Errorf("deadline of %s exceeded", timeout))
		r.logFinished(handle, err)
		return nil, err
	}

	line, overflow := stdout.FirstLine()
	if overflow {
		handle.Outcome = enum.WorkerOutcomeCrashed
		err := workerErr(apperrors.ErrWorkerCrashed, errors.Errorf("response exceeds %d bytes", maxResponseBytes))
		r.logFinished(handle, err)
		return nil, err
	}

	output, outcome, err := interpretResponse(task, line)
	if err == nil && !signaled && handle.ExitCode != 0 {
		outcome, err = enum.WorkerOutcomeCrashed, errors.Wrapf(waitErr, "exit code %d after response", handle.ExitCode)
	}
	handle.Outcome = outcome

	switch outcome {
	case enum.WorkerOutcomeSuccess:
		r.logFinished(handle, nil)
		return &models.WorkerResult{Handle: handle, Output: output}, nil
	case enum.WorkerOutcomeTaskFailed:
		r.logFinished(handle, err)
		return nil, err
	case enum.WorkerOutcomeProtocolError:
		wrapped := workerErr(apperrors.ErrWorkerProtocol, err)
		r.logFinished(handle, wrapped)
		return nil, wrapped
	default:
		if waitErr != nil && len(line) == 0 {
			err = errors.Wrap(waitErr, err.Error())
		}
		wrapped := workerErr(apperrors.ErrWorkerCrashed, err)
		r.logFinished(handle, wrapped)
		return nil, wrapped
	}
}

// terminate stops a child that has not exited yet: an optional grace period, then SIGINT, then SIGKILL.
// It reports whether a signal had to be sent, and the Wait result.
func (r *processRunner) terminate(cmd *exec.Cmd, waitCh <-chan error, grace bool) (bool, error) {
	if grace && r.cfg.GracePeriod > 0 {
		select {
		case err := <-waitCh:
			return false, err
		case <-time.After(r.cfg.GracePeriod):
		}
	}

	if err := cmd.Process.Signal(os.Interrupt); err == nil {
		select {
		case err := <-waitCh:
			return true, err
		case <-time.After(r.cfg.KillTimeout):
		}
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.log.Errorf("Failed to kill worker pid %d: %v", cmd.Process.Pid, err)
	}
	return true, <-waitCh
}

func (r *processRunner) stderrLimit() int {
	if r.cfg.StderrLimit > 0 {
		return r.cfg.StderrLimit
	}
	return 64 << 10
}

func (r *processRunner) logFinished(handle models.WorkerHandle, err error) {
	fields := []zap.Field{
		zap.String("task_id", handle.ID),
		zap.String("action", handle.Action.String()),
		zap.Int("pid", handle.PID),
		zap.String("outcome", string(handle.Outcome)),
		zap.Int("exit_code", handle.ExitCode),
		zap.Duration("duration", handle.Duration()),
		zap.Int64("peak_rss_kb", handle.PeakRSSKB),
	}
	if err != nil {
		r.log.Logger().Warn("worker finished", append(fields, zap.Error(err))...)
		return
	}
	r.log.Logger().Info("worker finished", fields...)
}
