package store

import (
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

// Sentinel errors. They carry domain codes, so callers may match either these
// or the domainerrors sentinels with errors.Is.
var (
	ErrNotFound      = domainerrors.NotFound("record not found")
	ErrAlreadyExists = domainerrors.Conflict("record already exists")
	ErrInvalidCursor = domainerrors.InvalidInput("invalid cursor")
)
