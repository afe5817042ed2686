package dbinfra

import "github.com/oklog/ulid/v2"

// IDGenerator provides run identifiers for deployment logs.
type IDGenerator interface {
	NewID() string
}

// ULIDGenerator generates lexicographically sortable run IDs.
type ULIDGenerator struct{}

func (ULIDGenerator) NewID() string {
	return ulid.Make().String()
}

// FixedIDGenerator always returns ID. Useful for deterministic output in tests.
type FixedIDGenerator struct {
	ID string
}

func (g FixedIDGenerator) NewID() string {
	return g.ID
}
