package model

import "errors"

var (
	ErrNotFound          = errors.New("entity not found")
	ErrParentNotFound    = errors.New("parent not found")
	ErrDanglingReference = errors.New("referenced entity does not exist")
	ErrDuplicateID       = errors.New("entity already exists")
	ErrIDErased          = errors.New("id belonged to an erased entity and cannot be reused")
	ErrNoPath            = errors.New("no transform path between entities")
	ErrNoDataAtTime      = errors.New("no transform data at or before requested time")
	ErrMalformedRequest  = errors.New("malformed request")
	ErrNotATransform     = errors.New("entity is not a transform")
	ErrNotAConnection    = errors.New("entity is not a connection")
	ErrNotAGroup         = errors.New("entity is not a group")
	ErrStillReferenced   = errors.New("entity is still referenced by a connection")
	ErrRootImmutable     = errors.New("root node cannot be deleted")
	ErrSingularTransform = errors.New("transform is not invertible")
)
