// Package vendors turns vendor feeds (REST/JSON, SOAP/XML, FTP/CSV) into
// normalized candidate records.
package vendors

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAuth          = errors.New("vendor rejected credentials")
	ErrTransient     = errors.New("vendor feed unavailable")
	ErrMalformedFeed = errors.New("malformed vendor feed")
	ErrFeedConfig    = errors.New("vendor feed misconfigured")
	ErrSkipRecord    = errors.New("record excluded by vendor rule")
	ErrInvalidRecord = errors.New("invalid vendor record")
	ErrNoMapping     = errors.New("no field mapping for vendor")
)

// RawRecord is one feed row with nested keys flattened to dotted paths.
type RawRecord map[string]string

// Credentials are supplied by the credential store before a feed is opened.
type Credentials struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	APIKey    string `json:"api_key"`
	AccountID string `json:"account_id"`
}

func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

type FetchRequest struct {
	Credentials Credentials
	TenantID    string
	// Since limits the fetch to records changed after it; nil is a full read.
	Since *time.Time
}

// Adapter reads one vendor's feed. Every network call an adapter makes is a
// suspension point; callers wrap Fetch and TestConnection in the request queue.
type Adapter interface {
	Fetch(ctx context.Context, req FetchRequest) ([]RawRecord, error)
	TestConnection(ctx context.Context, creds Credentials) error
}
