package entmap

import (
	"errors"

	"github.com/entmap/entmap/schema"
)

var (
	// ErrInvalidRegistry registry carries configuration errors
	ErrInvalidRegistry = errors.New("invalid registry")
	// ErrMissingBackend no backend given to Open
	ErrMissingBackend = errors.New("missing backend")
	// ErrNoSingleID entity used as an operand has no single id field, composite ids are not supported
	ErrNoSingleID = errors.New("no single id field")
	// ErrUnregisteredEntity entity type has no table
	ErrUnregisteredEntity = schema.ErrUnregisteredEntity
	// ErrInvalidField field path can not be resolved
	ErrInvalidField = errors.New("invalid field")
	// ErrInvalidData backend returned an entity of another type
	ErrInvalidData = errors.New("unsupported data")
)
