package types

import (
	"database/sql/driver"
	"fmt"
)

// Operation is the way a managed file is put in place.
// It is a closed set; every switch over it handles all members.
type Operation int

const (
	// OperationLink symlinks the target to the source
	OperationLink Operation = iota + 1
	// OperationCopy copies the source content to the target
	OperationCopy
	// OperationCreate writes literal (optionally templated) content to the target
	OperationCreate
	// OperationGenerate writes content assembled from several modules
	OperationGenerate
)

var operationNames = map[Operation]string{
	OperationLink:     "link",
	OperationCopy:     "copy",
	OperationCreate:   "create",
	OperationGenerate: "generate",
}

// ParseOperation converts a declaration or store value into an Operation
func ParseOperation(s string) (Operation, error) {
	for op, name := range operationNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q (expected link, copy or create)", s)
}

// String returns the stored name of the operation
func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Valid reports whether o is one of the declared operations
func (o Operation) Valid() bool {
	_, ok := operationNames[o]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (o Operation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid operation %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Operation) UnmarshalText(text []byte) error {
	op, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Value implements driver.Valuer so operations are stored by name
func (o Operation) Value() (driver.Value, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid operation %d", int(o))
	}
	return o.String(), nil
}

// Scan implements sql.Scanner
func (o *Operation) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return o.UnmarshalText([]byte(v))
	case []byte:
		return o.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Operation", src)
	}
}
