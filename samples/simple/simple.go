package main

import (
	"context"
	"log"
	"time"

	"github.com/docflowlabs/docflow/client"
	"github.com/docflowlabs/docflow/engine"
	"github.com/docflowlabs/docflow/extract"
	"github.com/docflowlabs/docflow/samples"
)

func main() {
	ctx := context.Background()

	store := samples.GetStore("simple")
	defer store.Close()

	e := engine.New(store, extract.TextScanner{})
	defer e.Close()

	c := client.New(e)

	runID, err := c.Submit(ctx, client.SubmitOptions{}, samples.CleanInvoice)
	if err != nil {
		panic(err)
	}

	log.Println("Submitted run", runID)

	state, err := c.WaitForRun(ctx, runID, time.Second*20)
	if err != nil {
		panic(err)
	}

	log.Println("Run settled with status:", state.Status)
	log.Println("Extracted data:", state.ExtractedData)

	for _, entry := range state.History {
		log.Println("  ", entry)
	}
}
