package main

import (
	"context"
	"fmt"
	"log"

	"github.com/docflowlabs/docflow/client"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/engine"
	"github.com/docflowlabs/docflow/extract"
	"github.com/docflowlabs/docflow/samples"
	"golang.org/x/sync/errgroup"
)

const runs = 25

func main() {
	ctx := context.Background()

	store := samples.GetStore("concurrent")
	defer store.Close()

	e := engine.New(store, extract.TextScanner{})
	defer e.Close()

	c := client.New(e)

	documents := []string{
		samples.CleanInvoice,
		samples.ExpensiveInvoice,
		samples.IrateTicket,
		samples.IncompleteInvoice,
		samples.CalmTicket,
	}

	var g errgroup.Group
	results := make([]*core.WorkflowState, runs)

	for i := 0; i < runs; i++ {
		doc := documents[i%len(documents)]

		g.Go(func() error {
			state, _, err := c.SubmitAndWait(ctx, client.SubmitOptions{
				RunID: fmt.Sprintf("concurrent-%02d", i),
			}, doc)
			if err != nil {
				return err
			}

			results[i] = state

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		panic(err)
	}

	byStatus := map[core.Status]int{}
	for _, state := range results {
		byStatus[state.Status]++
	}

	log.Println("All runs settled:", byStatus)

	stats, err := c.GetStats(ctx)
	if err != nil {
		panic(err)
	}

	log.Printf("store stats: runs=%d checkpoints=%d pending_reviews=%d",
		stats.Runs, stats.Checkpoints, stats.PendingReviews)
}
