package interfaces

import "github.com/asergian/beacon-sub001/internal/models"

type QuotaGovernor interface {
	TryAcquire(credential string, cost int) (*models.Permit, error)
	Release(permit *models.Permit)
	Snapshot(credential string) models.QuotaState
}
