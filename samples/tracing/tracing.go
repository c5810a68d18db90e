package main

import (
	"context"
	"log"
	"time"

	"github.com/docflowlabs/docflow/client"
	"github.com/docflowlabs/docflow/engine"
	"github.com/docflowlabs/docflow/extract"
	"github.com/docflowlabs/docflow/samples"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	ctx := context.Background()

	r := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("docflow sample"),
		semconv.ServiceVersionKey.String("v0.1.0"),
		attribute.String("environment", "sample"),
	)

	stdoutexp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		panic(err)
	}

	oclient := otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint("localhost:4318"),
		otlptracehttp.WithInsecure(),
	)
	exp, err := otlptrace.New(ctx, oclient)
	if err != nil {
		panic(err)
	}

	tp := trace.NewTracerProvider(
		trace.WithSyncer(stdoutexp),
		trace.WithBatcher(exp),
		trace.WithResource(r),
	)

	otel.SetTracerProvider(tp)

	store := samples.GetStore("tracing")
	defer store.Close()

	e := engine.New(store, extract.TextScanner{}, engine.WithTracerProvider(tp))
	defer e.Close()

	c := client.New(e)

	state, suspended, err := c.SubmitAndWait(ctx, client.SubmitOptions{}, samples.ExpensiveInvoice)
	if err != nil {
		panic(err)
	}

	if suspended {
		log.Println("Run paused for review:", state.ReasonForReview)

		state, _, err = c.Resume(ctx, state.RunID, map[string]any{"total_amount": "$990.00"})
		if err != nil {
			panic(err)
		}
	}

	log.Println("Run settled with status:", state.Status)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Println("shutting down tracer provider:", err)
	}
}
