package services

import "github.com/microblog/microblog/internal/repository"

// Re-exported so callers only need this package to match on errors.
var (
	ErrNotFound             = repository.ErrNotFound
	ErrDuplicateIdentity    = repository.ErrDuplicateIdentity
	ErrSelfFollowNotAllowed = repository.ErrSelfFollowNotAllowed
	ErrConstraintViolation  = repository.ErrConstraintViolation
	ErrInvalidCursor        = repository.ErrInvalidCursor
)
