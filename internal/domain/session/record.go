package session

import (
	"context"
	"errors"
	"strconv"
)

// RecordKey is the fixed storage key of the persisted session record.
const RecordKey = "leaddesk.auth"

// ErrRecordNotFound is returned by Storage.Load when nothing is persisted.
var ErrRecordNotFound = errors.New("session record not found")

// ErrRecordCorrupted is returned by Storage.Load when the stored bytes cannot be decoded.
var ErrRecordCorrupted = errors.New("session record corrupted")

// Record is the only persisted part of a session.
type Record struct {
	Authenticated bool      `json:"authenticated"`
	Credential    *string   `json:"credential"`
	Identity      *Identity `json:"identity"`
}

// Legacy returns the individually mirrored values older code read
// synchronously, keyed by their historical names.
func (r Record) Legacy() map[string]string {
	out := map[string]string{}
	if r.Identity == nil {
		return out
	}
	id := r.Identity
	out["name"] = id.Name
	out["userType"] = strconv.Itoa(int(id.Role))
	out["email"] = id.Email
	out["mobile"] = id.Mobile
	out["city"] = id.City
	out["state"] = id.State
	out["id"] = strconv.FormatInt(id.ID, 10)
	out["photo"] = id.PhotoURL
	return out
}

// Storage persists one Record per console session.
type Storage interface {
	Load(ctx context.Context, sessionID string) (*Record, error)
	Save(ctx context.Context, sessionID string, record Record) error
	Clear(ctx context.Context, sessionID string) error
	Close() error
}
