package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
)

var ErrMetadataDecode = errors.New("metadata_decode_error")

// Metadata is an arbitrary JSON object stored as text and decoded on read.
type Metadata datatypes.JSONMap

// GormDataType keeps the blob a plain text column on every backend.
func (Metadata) GormDataType() string { return "text" }

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return datatypes.JSONMap(m).Value()
}

// Scan decodes stored text. Text that is not a JSON object is reported as
// ErrMetadataDecode rather than silently dropped.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var decoded datatypes.JSONMap
	if err := decoded.Scan(src); err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataDecode, err)
	}
	*m = Metadata(decoded)
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataDecode, err)
	}
	*m = decoded
	return nil
}
