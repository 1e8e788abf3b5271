// Package sessions provides the persisted session record drivers: sqlite
// and libsql through database/sql, redis, and an in-process map.
package sessions

import (
	"encoding/json"
	"fmt"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
)

func encodeRecord(record session.Record) ([]byte, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session record: %w", err)
	}
	return payload, nil
}

// decodeRecord rejects payloads that do not parse or that claim an
// authenticated session without a credential and identity.
func decodeRecord(payload []byte) (*session.Record, error) {
	var record session.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrRecordCorrupted, err)
	}
	if record.Authenticated && (record.Credential == nil || *record.Credential == "" || record.Identity == nil) {
		return nil, fmt.Errorf("%w: authenticated record without credential or identity", session.ErrRecordCorrupted)
	}
	return &record, nil
}
