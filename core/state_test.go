package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"received to processing", StatusReceived, StatusProcessing, true},
		{"received to error", StatusReceived, StatusError, true},
		{"received to finalized", StatusReceived, StatusFinalized, false},
		{"processing to pending_review", StatusProcessing, StatusPendingReview, true},
		{"processing to finalized", StatusProcessing, StatusFinalized, true},
		{"processing to received", StatusProcessing, StatusReceived, false},
		{"pending_review self loop", StatusPendingReview, StatusPendingReview, true},
		{"pending_review to finalized", StatusPendingReview, StatusFinalized, true},
		{"pending_review to error", StatusPendingReview, StatusError, true},
		{"finalized is absorbing", StatusFinalized, StatusProcessing, false},
		{"finalized to error", StatusFinalized, StatusError, false},
		{"error is absorbing", StatusError, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestWorkflowState_Transition(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	s := NewWorkflowState("run-1", "invoice text", now)
	require.Equal(t, StatusReceived, s.Status)

	err := s.Transition(StatusProcessing, now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, s.Status)
	require.Equal(t, now.Add(time.Second), s.UpdatedAt)

	err = s.Transition(StatusReceived, now.Add(2*time.Second))
	require.Error(t, err)
	require.Equal(t, StatusProcessing, s.Status, "failed transition must not change status")
}

func TestWorkflowState_TouchNeverMovesBackwards(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	s := NewWorkflowState("run-1", "doc", now)

	s.Touch(now.Add(-time.Hour))
	require.Equal(t, now, s.UpdatedAt)

	s.Touch(now)
	require.Equal(t, now, s.UpdatedAt)

	s.Touch(now.Add(time.Minute))
	require.Equal(t, now.Add(time.Minute), s.UpdatedAt)
}

func TestWorkflowState_Clone(t *testing.T) {
	now := time.Now().UTC()

	s := NewWorkflowState("run-1", "doc", now)
	s.ExtractedData = map[string]any{"vendor_name": "Acme"}
	s.AppendHistory("Document received")

	c := s.Clone()

	c.ExtractedData["vendor_name"] = "Other"
	c.AppendHistory("changed")
	c.Status = StatusError

	require.Equal(t, "Acme", s.ExtractedData["vendor_name"])
	require.Len(t, s.History, 1)
	require.Equal(t, StatusReceived, s.Status)
}

func TestWorkflowState_CloneNil(t *testing.T) {
	var s *WorkflowState
	require.Nil(t, s.Clone())
}
