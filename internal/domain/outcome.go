package domain

import (
	"errors"
	"fmt"
)

// ErrStorageFailure marks errors that abort a whole block.
var ErrStorageFailure = errors.New("storage failure")

// OutcomeStatus classifies what happened to one change request.
type OutcomeStatus string

const (
	OutcomeAccepted     OutcomeStatus = "accepted"
	OutcomeRejected     OutcomeStatus = "rejected"
	OutcomeUnauthorized OutcomeStatus = "unauthorized"
	OutcomeMalformed    OutcomeStatus = "malformed"
)

// Outcome is the per-request result reported for a block.
type Outcome struct {
	Index      int           `json:"index"`
	TxHash     string        `json:"tx_hash"`
	TxIndex    int           `json:"tx_index"`
	LogIndex   int           `json:"log_index"`
	EntityType EntityType    `json:"entity_type,omitempty"`
	EntityID   int64         `json:"entity_id"`
	Action     Action        `json:"action,omitempty"`
	Status     OutcomeStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
}

// BlockResult aggregates a processed block.
type BlockResult struct {
	BlockNumber int64     `json:"block_number"`
	BlockHash   string    `json:"block_hash"`
	Accepted    int       `json:"accepted"`
	Outcomes    []Outcome `json:"outcomes"`
}

// Skipped counts requests that were not applied.
func (r BlockResult) Skipped() int {
	return len(r.Outcomes) - r.Accepted
}

// CountByStatus tallies outcomes per status.
func (r BlockResult) CountByStatus() map[OutcomeStatus]int {
	counts := make(map[OutcomeStatus]int)
	for _, outcome := range r.Outcomes {
		counts[outcome.Status]++
	}
	return counts
}

// RejectionError is a business-rule violation. It is an expected outcome and
// never aborts a block.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "rejected: " + e.Reason
}

// Reject builds a RejectionError with a formatted reason.
func Reject(format string, args ...any) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}
