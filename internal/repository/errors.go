// Package repository implements the MySQL persistence layer for users,
// sessions, refresh-token records and recovery codes. Sentinel errors
// let higher layers distinguish failure scenarios without inspecting
// driver-specific errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. Handlers and
// services translate it into a fail-closed denial, never a retry.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert collides with the unique
// email index.
var ErrEmailExists = errors.New("email already exists")
