package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// OperationID is a value object identifying a single edit operation.
// It is globally unique and immutable once assigned.
type OperationID struct {
	value string
}

// NewOperationID creates a new random OperationID.
func NewOperationID() OperationID {
	return OperationID{value: uuid.New().String()}
}

// NewOperationIDFromString creates an OperationID from an existing string.
func NewOperationIDFromString(id string) (OperationID, error) {
	if id == "" {
		return OperationID{}, errors.New("operation ID cannot be empty")
	}
	return OperationID{value: id}, nil
}

// String returns the string representation of the OperationID.
func (id OperationID) String() string {
	return id.value
}

// Equals checks if two OperationIDs are equal.
func (id OperationID) Equals(other OperationID) bool {
	return id.value == other.value
}

// IsZero checks if the OperationID is the zero value.
func (id OperationID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler.
func (id OperationID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *OperationID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("OperationID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}
