package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrImmutable is returned when a write would modify a record that is
// already in a terminal state. Terminal runs and DONE ci-fix runs never
// change; corrective work must create new records instead.
var ErrImmutable = errors.New("storage: record is immutable")

// ErrCardExists is returned when a summary card attach targets a run that
// already carries one. Cards are generated exactly once per terminal run.
var ErrCardExists = errors.New("storage: summary card already present")

// ErrNoCard is returned when a learning signal targets a run without a
// summary card: there is no recommendation to reconcile against.
var ErrNoCard = errors.New("storage: run has no summary card")

// ErrBadCursor is returned for a pagination cursor that cannot be decoded.
// A malformed cursor is a client error, not an internal one.
var ErrBadCursor = errors.New("storage: malformed cursor")
