package schema

import (
	"fmt"

	"github.com/google/uuid"
)

// Reference is a typed foreign-key value: it names the entity type a lookup
// points at and carries the identifier of the referenced row. Filter
// normalization reduces a Reference to its bare ID before it reaches the
// store, so a Reference can be passed anywhere a raw identifier is expected.
type Reference struct {
	Entity string    `json:"entity"`
	ID     uuid.UUID `json:"id"`
}

// NewReference builds a Reference to the given entity type and identifier.
func NewReference(entity string, id uuid.UUID) Reference {
	return Reference{Entity: entity, ID: id}
}

// IsZero reports whether the reference carries neither an entity name nor an
// identifier.
func (r Reference) IsZero() bool {
	return r.Entity == "" && r.ID == uuid.Nil
}

func (r Reference) String() string {
	return fmt.Sprintf("%s(%s)", r.Entity, r.ID)
}
