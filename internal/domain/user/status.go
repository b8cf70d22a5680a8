package user

import (
	"errors"
	"strings"
)

// Status is an account status as stored in `users.status`.
type Status string

const (
	StatusActive          Status = "ACTIVE"
	StatusPendingApproval Status = "PENDING_APPROVAL" // drivers awaiting document review
	StatusSuspended       Status = "SUSPENDED"
)

var ErrInvalidStatus = errors.New("invalid account status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed constants.
func (status Status) Valid() bool {
	switch status {
	case StatusActive, StatusPendingApproval, StatusSuspended:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanGoOnline reports whether an account in this status may hold a live connection.
func (status Status) CanGoOnline() bool {
	return status == StatusActive
}
