package models

import "time"

// QuotaState is a read-only snapshot of one credential's counters.
type QuotaState struct {
	Credential    string    `json:"credential"`
	WindowUsed    int       `json:"windowUsed"`
	WindowCeiling int       `json:"windowCeiling"`
	DayUsed       int       `json:"dayUsed"`
	DayCeiling    int       `json:"dayCeiling"`
	DayStart      time.Time `json:"dayStart"`
	SnapshotAt    time.Time `json:"snapshotAt"`
}

// Permit is proof that cost units were reserved for one provider call.
type Permit struct {
	ID         string    `json:"id"`
	Credential string    `json:"credential"`
	Cost       int       `json:"cost"`
	IssuedAt   time.Time `json:"issuedAt"`
}
