package samples

import (
	"flag"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/cassandra"
	"github.com/docflowlabs/docflow/backend/memory"
	"github.com/docflowlabs/docflow/backend/mongo"
	"github.com/docflowlabs/docflow/backend/mysql"
	"github.com/docflowlabs/docflow/backend/postgres"
	redisstore "github.com/docflowlabs/docflow/backend/redis"
	"github.com/docflowlabs/docflow/backend/sqlite"
	redisv9 "github.com/redis/go-redis/v9"
)

// GetStore selects the checkpoint store from the -backend flag so every
// sample can run against any supported store.
func GetStore(name string, opt ...backend.BackendOption) backend.Store {
	b := flag.String("backend", "memory", "store to use: memory, sqlite, sqlitefile, mysql, postgres, redis, mongo, cassandra")
	flag.Parse()

	switch *b {
	case "memory":
		return memory.NewMemoryStore(opt...)

	case "sqlite":
		return sqlite.NewInMemoryStore(opt...)

	case "sqlitefile":
		return sqlite.NewSqliteStore(name+".sqlite", opt...)

	case "mysql":
		return mysql.NewMysqlStore("localhost", 3306, "root", "root", name, opt...)

	case "postgres":
		return postgres.NewPostgresStore("localhost", 5432, "postgres", "postgres", name, postgres.WithBackendOptions(opt...))

	case "redis":
		rclient := redisv9.NewUniversalClient(&redisv9.UniversalOptions{
			Addrs:        []string{"localhost:6379"},
			DB:           0,
			WriteTimeout: time.Second * 30,
			ReadTimeout:  time.Second * 30,
		})

		s, err := redisstore.NewRedisStore(rclient, redisstore.WithBackendOptions(opt...))
		if err != nil {
			panic(err)
		}

		return s

	case "mongo":
		s, err := mongo.NewMongoStore("mongodb://localhost:27017", name, opt...)
		if err != nil {
			panic(err)
		}

		return s

	case "cassandra":
		return cassandra.NewCassandraStore([]string{"localhost:9042"}, name, cassandra.WithBackendOptions(opt...))

	default:
		panic("unknown backend " + *b)
	}
}

// Sample documents for the runnable examples.
const (
	CleanInvoice = `INVOICE #2024-001
Vendor: Northwind Traders
Due Date: 2024-04-15
Total Amount: $842.50

Services rendered in March.`

	ExpensiveInvoice = `INVOICE #2024-002
Vendor: Contoso Ltd
Due Date: 2024-05-01
Total Amount: $12,400.00

Annual infrastructure contract.`

	IrateTicket = `Support Ticket
Customer: John Doe
Email: john.doe@example.com
Subject: Billing error on my last statement

This is the third time I am writing about this. Absolutely unacceptable!`

	IncompleteInvoice = `INVOICE
Due Date: 2024-06-30
Total Amount: $310.00

Consulting hours, June.`

	CalmTicket = `Support Ticket
Customer: Maria Garcia
Email: maria.garcia@example.com
Subject: Question about exporting reports

Could you point me to the documentation for scheduled exports? Thanks!`
)
