package cardsync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadySynced rejects a create for a request that already has a card.
	ErrAlreadySynced = errors.New("design request already has a card")

	// ErrClaimed rejects a create while another caller holds the create claim.
	ErrClaimed = errors.New("card creation already in progress")

	// ErrNoCard rejects an update or comment for a request without a card.
	ErrNoCard = errors.New("design request has no card yet")

	// ErrInvalidInput rejects an unknown operation or an empty payload.
	ErrInvalidInput = errors.New("invalid sync input")

	// errNoLists is recorded when a board has no open list to create into.
	errNoLists = errors.New("board has no open lists")
)

// NotFoundError means the design request does not exist.
type NotFoundError struct {
	RequestID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("design request %d not found", e.RequestID)
}

// ConfigurationError means the client's integration settings cannot be
// used.  It is raised before any ledger write or network call.
type ConfigurationError struct {
	ClientID int64
	Missing  []string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("client %d trello config missing %s", e.ClientID, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("client %d trello config: %v", e.ClientID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PersistenceError wraps a local database failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
