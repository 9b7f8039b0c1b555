// internal/models/sync_run.go
package models

import (
	"time"
)

type SyncRun struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	VendorSlug   string     `json:"vendor_slug" gorm:"size:50;not null;index:idx_sync_runs_vendor_started,priority:1"`
	TenantID     string     `json:"tenant_id,omitempty" gorm:"size:64"`
	Mode         SyncMode   `json:"mode" gorm:"type:varchar(20);not null"`
	Status       SyncStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	Unchanged    int        `json:"unchanged"`
	ErrorKind    ErrorKind  `json:"error_kind,omitempty" gorm:"type:varchar(20)"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	StartedAt    time.Time  `json:"started_at" gorm:"not null;index:idx_sync_runs_vendor_started,priority:2"`
	FinishedAt   *time.Time `json:"finished_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Processed is the number of candidates that reached a terminal outcome.
func (r *SyncRun) Processed() int {
	return r.Created + r.Updated + r.Skipped + r.Failed + r.Unchanged
}

func (r *SyncRun) IsStale(now time.Time, threshold time.Duration) bool {
	return r.Status == SyncStatusInProgress && now.Sub(r.StartedAt) > threshold
}
