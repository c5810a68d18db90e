package main

import (
	"context"
	"log"
	"time"

	"github.com/docflowlabs/docflow/client"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/engine"
	"github.com/docflowlabs/docflow/extract"
	"github.com/docflowlabs/docflow/samples"
	"github.com/google/uuid"
)

func main() {
	ctx := context.Background()

	store := samples.GetStore("review")
	defer store.Close()

	e := engine.New(store, extract.TextScanner{})
	defer e.Close()

	c := client.New(e)

	// Subscribing before submitting catches the run's events from the start.
	runID := uuid.NewString()
	sub := c.Subscribe(runID)

	go func() {
		for evt := range sub.C {
			log.Printf("event %-16s node=%-13s %v", evt.Type, evt.Node, evt.Payload)
		}

		log.Println("event stream closed")
	}()

	if _, err := c.Submit(ctx, client.SubmitOptions{RunID: runID}, samples.ExpensiveInvoice); err != nil {
		panic(err)
	}

	state, err := c.WaitForRun(ctx, runID, time.Second*20)
	if err != nil {
		panic(err)
	}

	if state.Status != core.StatusPendingReview {
		log.Println("Run finished without review:", state.Status)
		return
	}

	log.Println("Run paused for review:", state.ReasonForReview)

	entries, err := c.PendingReviews(ctx)
	if err != nil {
		panic(err)
	}

	for _, entry := range entries {
		log.Printf("queue entry: run=%s priority=%s reason=%q", entry.RunID, entry.Priority, entry.Reason)
	}

	// A reviewer corrects the amount and approves the run.
	state, suspended, err := c.Resume(ctx, runID, map[string]any{
		"total_amount": "$980.00",
	})
	if err != nil {
		panic(err)
	}

	if suspended {
		log.Println("Run suspended again:", state.ReasonForReview)
		return
	}

	log.Println("Run finalized after review")

	for _, entry := range state.History {
		log.Println("  ", entry)
	}

	// Give the stream goroutine a moment to drain before exiting.
	time.Sleep(time.Millisecond * 100)
}
