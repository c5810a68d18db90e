package client

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/memory"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/engine"
	"github.com/docflowlabs/docflow/extract"
	"github.com/stretchr/testify/require"
)

const (
	cleanInvoiceDoc = "INVOICE #12345\nVendor: Acme Corp\nTotal Amount: $450.00"
	bigInvoiceDoc   = "INVOICE #99001\nVendor: BigSpend Ltd\nTotal Amount: $8,500.00"
)

func testExtractor() extract.Extractor {
	return extract.ExtractorFunc(func(_ context.Context, documentContent string) (map[string]any, error) {
		if strings.Contains(documentContent, "8,500") {
			return map[string]any{
				"vendor_name":  "BigSpend Ltd",
				"invoice_id":   "99001",
				"total_amount": "$8,500.00",
			}, nil
		}

		return map[string]any{
			"vendor_name":  "Acme Corp",
			"invoice_id":   "12345",
			"total_amount": "$450.00",
		}, nil
	})
}

func newTestClient(t *testing.T, extractor extract.Extractor) *Client {
	t.Helper()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := engine.New(memory.NewMemoryStore(), extractor, engine.WithLogger(quiet))
	t.Cleanup(e.Close)

	return New(e, WithLogger(quiet))
}

func Test_Client_SubmitAndWait(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, testExtractor())

	state, suspended, err := c.SubmitAndWait(ctx, SubmitOptions{RunID: "run-1"}, cleanInvoiceDoc)
	require.NoError(t, err)
	require.False(t, suspended)
	require.Equal(t, core.StatusFinalized, state.Status)
	require.Equal(t, "run-1", state.RunID)
}

func Test_Client_SubmitIsAsynchronous(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, testExtractor())

	// A fixed run ID lets us subscribe before submitting.
	sub := c.Subscribe("run-1")
	defer sub.Cancel()

	runID, err := c.Submit(ctx, SubmitOptions{RunID: "run-1"}, cleanInvoiceDoc)
	require.NoError(t, err)
	require.Equal(t, "run-1", runID)

	state, err := c.WaitForRun(ctx, runID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, core.StatusFinalized, state.Status)

	var sawFinished bool
	for evt := range sub.C {
		require.Equal(t, "run-1", evt.RunID)

		if evt.Type == core.EventRunFinished {
			sawFinished = true
		}
	}
	require.True(t, sawFinished, "the subscription sees the whole run, including its end")
}

func Test_Client_SubmitGeneratesRunID(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, testExtractor())

	runID, err := c.Submit(ctx, SubmitOptions{}, cleanInvoiceDoc)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	state, err := c.WaitForRun(ctx, runID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, core.StatusFinalized, state.Status)
}

func Test_Client_SubmitDuplicateRunID(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, testExtractor())

	_, _, err := c.SubmitAndWait(ctx, SubmitOptions{RunID: "run-1"}, cleanInvoiceDoc)
	require.NoError(t, err)

	_, err = c.Submit(ctx, SubmitOptions{RunID: "run-1"}, cleanInvoiceDoc)
	require.ErrorIs(t, err, backend.ErrRunAlreadyExists)
}

func Test_Client_ReviewLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, testExtractor())

	state, suspended, err := c.SubmitAndWait(ctx, SubmitOptions{RunID: "run-1"}, bigInvoiceDoc)
	require.NoError(t, err)
	require.True(t, suspended)
	require.Equal(t, core.StatusPendingReview, state.Status)

	entries, err := c.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "run-1", entries[0].RunID)

	// The extracted data of a suspended run is not a result yet.
	_, err = GetResult[map[string]any](ctx, c, "run-1", time.Second)
	require.ErrorContains(t, err, "settled as pending_review")

	state, suspended, err = c.Resume(ctx, "run-1", map[string]any{"total_amount": "$900.00"})
	require.NoError(t, err)
	require.False(t, suspended)
	require.Equal(t, core.StatusFinalized, state.Status)

	entries, err = c.PendingReviews(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func Test_Client_Reject(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, testExtractor())

	_, suspended, err := c.SubmitAndWait(ctx, SubmitOptions{RunID: "run-1"}, bigInvoiceDoc)
	require.NoError(t, err)
	require.True(t, suspended)

	state, err := c.Reject(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, core.StatusError, state.Status)
	require.Equal(t, "Rejected by human reviewer", state.ErrorMessage)
}

func Test_Client_GetResult(t *testing.T) {
	type invoice struct {
		VendorName  string `json:"vendor_name"`
		InvoiceID   string `json:"invoice_id"`
		TotalAmount string `json:"total_amount"`
	}

	ctx := context.Background()
	c := newTestClient(t, testExtractor())

	runID, err := c.Submit(ctx, SubmitOptions{}, cleanInvoiceDoc)
	require.NoError(t, err)

	result, err := GetResult[invoice](ctx, c, runID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, invoice{
		VendorName:  "Acme Corp",
		InvoiceID:   "12345",
		TotalAmount: "$450.00",
	}, result)
}

func Test_Client_WaitForRunTimeout(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	blocked := extract.ExtractorFunc(func(_ context.Context, _ string) (map[string]any, error) {
		<-release
		return map[string]any{
			"vendor_name":  "Acme Corp",
			"invoice_id":   "12345",
			"total_amount": "$450.00",
		}, nil
	})

	c := newTestClient(t, blocked)

	runID, err := c.Submit(ctx, SubmitOptions{}, cleanInvoiceDoc)
	require.NoError(t, err)

	_, err = c.WaitForRun(ctx, runID, 100*time.Millisecond)
	require.ErrorContains(t, err, "did not settle")

	close(release)

	state, err := c.WaitForRun(ctx, runID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, core.StatusFinalized, state.Status)
}

func Test_Client_StatusAndHistory(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, testExtractor())

	_, err := c.Status(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrRunNotFound)

	_, _, err = c.SubmitAndWait(ctx, SubmitOptions{RunID: "run-1"}, cleanInvoiceDoc)
	require.NoError(t, err)

	state, err := c.Status(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, core.StatusFinalized, state.Status)

	cps, err := c.History(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 4)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Runs)
	require.Equal(t, int64(4), stats.Checkpoints)
}
