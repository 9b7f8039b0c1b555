// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}

	if len(bytes) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// StringList is stored as a PostgreSQL text[] and as array literal text elsewhere.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

func (l *StringList) Scan(value interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(value); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

func (StringList) GormDataType() string {
	return "text"
}

func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Contains reports whether v is present in the list.
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// Enums
type ImageQuality string

const (
	ImageQualityNone ImageQuality = ""
	ImageQualityLow  ImageQuality = "low"
	ImageQualityHigh ImageQuality = "high"
)

// Rank orders tiers so that an upgrade is a strictly greater rank.
func (q ImageQuality) Rank() int {
	switch q {
	case ImageQualityHigh:
		return 2
	case ImageQualityLow:
		return 1
	default:
		return 0
	}
}

func (q ImageQuality) Valid() bool {
	return q == ImageQualityHigh || q == ImageQualityLow
}

type FeedType string

const (
	FeedTypeREST   FeedType = "rest"
	FeedTypeSOAP   FeedType = "soap"
	FeedTypeFTPCSV FeedType = "ftp_csv"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"
)

type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
)

func (m SyncMode) Valid() bool {
	return m == SyncModeFull || m == SyncModeIncremental
}

type SyncStatus string

const (
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusError      SyncStatus = "error"
)

// ErrorKind classifies why a sync pass ended in error.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindMalformed ErrorKind = "malformed"
	ErrorKindConfig    ErrorKind = "config"
	ErrorKindStale     ErrorKind = "stale"
	ErrorKindInternal  ErrorKind = "internal"
)
