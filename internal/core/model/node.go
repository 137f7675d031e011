package model

import (
	"fmt"

	"github.com/google/uuid"
)

// ID identifies every entity in the scene graph. It is always a canonical
// lowercase UUID string.
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID validates s as a UUID and returns its canonical form.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, ErrMalformedRequest)
	}
	return ID(u.String()), nil
}

// NewID returns a fresh random ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// DefaultRootID is the well-known id of the local root group.
const DefaultRootID ID = "e379121f-06c6-4e21-ae9d-ae78ec1986a1"

type Kind int

const (
	KindNode Kind = iota
	KindGroup
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "Node"
	case KindGroup:
		return "Group"
	case KindConnection:
		return "Connection"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps the wire "@graphtype" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "Node":
		return KindNode, nil
	case "Group":
		return KindGroup, nil
	case "Connection":
		return KindConnection, nil
	default:
		return 0, fmt.Errorf("unknown graph type %q: %w", s, ErrMalformedRequest)
	}
}

// SemanticTransform marks a Connection that carries a pose history.
const SemanticTransform = "Transform"

// EntityView is a read-only copy of one entity, safe to hand out of the store.
type EntityView struct {
	ID              ID
	Kind            Kind
	SemanticContext string
	Attributes      Attributes
	Parents         []ID
	Children        []ID
	SourceIDs       []ID
	TargetIDs       []ID
	Interval        Interval
}

func (v EntityView) IsTransform() bool {
	return v.Kind == KindConnection && v.SemanticContext == SemanticTransform
}
