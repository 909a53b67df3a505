package worker

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

// NewTask builds a task envelope carrying the caller's trace context.
func NewTask(ctx context.Context, action enum.WorkerAction, args any) (dto.WorkerTask, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return dto.WorkerTask{}, errors.Wrap(err, "marshal worker args")
	}
	return dto.WorkerTask{
		ID:     utils.GenerateNanoIDWithPrefix("task", 16),
		Action: action,
		Args:   raw,
		Trace:  tracing.CarrierFromContext(ctx),
	}, nil
}

// DecodeResult unmarshals the output of a successful task. A result that does not fit T is a protocol
// violation.
func DecodeResult[T any](result *models.WorkerResult) (T, error) {
	var out T
	if result == nil {
		return out, errors.Wrap(apperrors.ErrWorkerProtocol, "empty worker result")
	}
	if err := json.Unmarshal(result.Output, &out); err != nil {
		return out, &apperrors.WorkerError{
			Kind:   apperrors.ErrWorkerProtocol,
			TaskID: result.Handle.ID,
			Action: result.Handle.Action.String(),
			PID:    result.Handle.PID,
			Cause:  errors.Wrap(err, "decode worker result"),
		}
	}
	return out, nil
}
