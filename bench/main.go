package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/memory"
	"github.com/docflowlabs/docflow/backend/mysql"
	"github.com/docflowlabs/docflow/backend/redis"
	"github.com/docflowlabs/docflow/backend/sqlite"
	"github.com/docflowlabs/docflow/client"
	"github.com/docflowlabs/docflow/engine"
	"github.com/docflowlabs/docflow/extract"
	redisv9 "github.com/redis/go-redis/v9"
)

var b = flag.String("backend", "memory", "Store to use. Supported stores are:\n- memory\n- sqlite\n- mysql\n- redis\n")
var timeout = flag.Duration("timeout", time.Second*30, "Timeout for the benchmark run")
var runs = flag.Int("runs", 100, "Number of document runs to start")
var docSize = flag.Int("docsize", 256, "Bytes of filler appended to each document, to size the checkpoint payloads")
var format = flag.String("format", "text", "Output format. Supported formats are:\n- text\n- csv\n")
var cacheSize = flag.Int("cachesize", 128, "Size of the engine state cache")

func main() {
	flag.Parse()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(*timeout).Add(time.Second*5))
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mm := newMemMetrics()
	st := getStore(*b, backend.WithLogger(logger), backend.WithMetrics(mm))

	e := engine.New(st, extract.TextScanner{},
		engine.WithLogger(logger),
		engine.WithMetrics(mm),
		engine.WithStateCache(*cacheSize, time.Minute*30),
	)
	defer e.Close()

	c := client.New(e)

	doc := genDocument(*docSize)

	start := time.Now()

	wg := sync.WaitGroup{}
	for i := 0; i < *runs; i++ {
		runID := fmt.Sprintf("bench-%d", i)

		if _, err := c.Submit(ctx, client.SubmitOptions{RunID: runID}, doc); err != nil {
			panic(err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			state, err := c.WaitForRun(ctx, runID, *timeout)
			if err != nil {
				panic(fmt.Errorf("run %s did not finish: %w", runID, err))
			}

			if !state.Status.Terminal() {
				panic(fmt.Errorf("run %s settled as %s", runID, state.Status))
			}
		}()
	}

	wg.Wait()

	end := time.Now()

	switch *format {
	case "text":
		log.Println("Ran", *runs, "document runs in", end.Sub(start).Seconds(), "seconds")
		mm.Print()

	case "csv":
		fmt.Printf("%s,%v,%d,%d\n", *b, end.Sub(start).Seconds(), *runs, *docSize)
	}
}

// genDocument produces an invoice that extracts and validates cleanly, padded
// so every checkpoint carries a payload of roughly the requested size.
func genDocument(filler int) string {
	return `INVOICE #2024-001
Vendor: Northwind Traders
Due Date: 2024-04-15
Total Amount: $842.50

Notes: ` + strings.Repeat("x", filler)
}

func getStore(b string, opt ...backend.BackendOption) backend.Store {
	switch b {
	case "memory":
		return memory.NewMemoryStore(opt...)

	case "sqlite":
		os.Remove("bench.sqlite")

		return sqlite.NewSqliteStore("bench.sqlite", opt...)

	case "mysql":
		db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@/?parseTime=true&interpolateParams=true", "root", "root"))
		if err != nil {
			panic(err)
		}

		if _, err := db.Exec("DROP DATABASE IF EXISTS bench"); err != nil {
			panic(fmt.Errorf("dropping database: %w", err))
		}

		if _, err := db.Exec("CREATE DATABASE bench"); err != nil {
			panic(fmt.Errorf("creating database: %w", err))
		}

		if err := db.Close(); err != nil {
			panic(err)
		}

		return mysql.NewMysqlStore("localhost", 3306, "root", "root", "bench", opt...)

	case "redis":
		rclient := redisv9.NewUniversalClient(&redisv9.UniversalOptions{
			Addrs:        []string{"localhost:6379"},
			DB:           0,
			WriteTimeout: time.Second * 30,
			ReadTimeout:  time.Second * 30,
		})

		rclient.FlushAll(context.Background()).Result()

		s, err := redis.NewRedisStore(rclient, redis.WithBackendOptions(opt...))
		if err != nil {
			panic(err)
		}

		return s

	default:
		panic("unknown backend " + b)
	}
}
