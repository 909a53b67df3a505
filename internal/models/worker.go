package models

import (
	"encoding/json"
	"time"

	"github.com/asergian/beacon-sub001/internal/enum"
)

// WorkerHandle is the manager-side record of one child process invocation.
type WorkerHandle struct {
	ID         string             `json:"id"`
	PID        int                `json:"pid"`
	Action     enum.WorkerAction  `json:"action"`
	SpawnedAt  time.Time          `json:"spawnedAt"`
	Deadline   time.Time          `json:"deadline"`
	FinishedAt time.Time          `json:"finishedAt"`
	Outcome    enum.WorkerOutcome `json:"outcome"`
	ExitCode   int                `json:"exitCode"`
	PeakRSSKB  int64              `json:"peakRssKb"`
}

func (h WorkerHandle) Duration() time.Duration {
	if h.FinishedAt.IsZero() {
		return 0
	}
	return h.FinishedAt.Sub(h.SpawnedAt)
}

// WorkerResult is the decoded outcome of a successful invocation.
type WorkerResult struct {
	Handle WorkerHandle
	Output json.RawMessage
}
