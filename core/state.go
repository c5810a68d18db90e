package core

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a document run.
type Status string

const (
	StatusReceived      Status = "received"
	StatusProcessing    Status = "processing"
	StatusPendingReview Status = "pending_review"
	StatusFinalized     Status = "finalized"
	StatusError         Status = "error"
)

// transitions encodes the allowed status changes. Terminal statuses have no
// outgoing transitions.
var transitions = map[Status][]Status{
	StatusReceived:      {StatusProcessing, StatusError},
	StatusProcessing:    {StatusPendingReview, StatusFinalized, StatusError},
	StatusPendingReview: {StatusPendingReview, StatusFinalized, StatusError},
	StatusFinalized:     {},
	StatusError:         {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether a run in this status can make no further progress.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusError
}

func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

func (s Status) String() string {
	return string(s)
}

// DocumentType is the coarse document classification detected at intake.
type DocumentType string

const (
	DocumentTypeInvoice DocumentType = "invoice"
	DocumentTypeTicket  DocumentType = "ticket"
	DocumentTypeUnknown DocumentType = "unknown"
)

// WorkflowState is the full snapshot of a single document run. It is the unit
// of persistence: every checkpoint stores a complete copy.
type WorkflowState struct {
	// RunID identifies the run across checkpoints and events.
	RunID string `json:"run_id"`

	// DocumentContent is the raw document text as submitted.
	DocumentContent string `json:"document_content"`

	// DocumentType is detected during intake.
	DocumentType DocumentType `json:"document_type"`

	Status Status `json:"status"`

	// ExtractedData holds the structured fields produced by extraction. nil
	// means extraction has not run yet; an "error" key marks a failed
	// extraction attempt.
	ExtractedData map[string]any `json:"extracted_data,omitempty"`

	// ReasonForReview is set when the run is paused for human review.
	ReasonForReview string `json:"reason_for_review,omitempty"`

	// ErrorMessage is set when the run ends in StatusError.
	ErrorMessage string `json:"error_message,omitempty"`

	// History is an append-only log of run milestones.
	History []string `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewWorkflowState(runID, documentContent string, now time.Time) *WorkflowState {
	now = now.UTC()

	return &WorkflowState{
		RunID:           runID,
		DocumentContent: documentContent,
		DocumentType:    DocumentTypeUnknown,
		Status:          StatusReceived,
		History:         []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Transition moves the run to the given status, enforcing the lifecycle state
// machine, and touches UpdatedAt.
func (s *WorkflowState) Transition(next Status, now time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid status transition from %q to %q", s.Status, next)
	}

	s.Status = next
	s.Touch(now)

	return nil
}

// Touch advances UpdatedAt. It never moves UpdatedAt backwards, so timestamps
// stay non-decreasing across a run's checkpoint sequence.
func (s *WorkflowState) Touch(now time.Time) {
	now = now.UTC()
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// AppendHistory adds a milestone entry. History is append-only.
func (s *WorkflowState) AppendHistory(entry string) {
	s.History = append(s.History, entry)
}

// Clone returns a copy that does not alias the receiver's map or slice. Values
// nested inside ExtractedData are shared; callers treat them as read-only.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}

	c := *s
	c.ExtractedData = maps.Clone(s.ExtractedData)
	c.History = slices.Clone(s.History)

	return &c
}
