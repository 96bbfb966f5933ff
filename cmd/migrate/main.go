package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/repository"
	"visitor-counter/internal/repository/sqlite"
	"visitor-counter/pkg/database"

	"github.com/joho/godotenv"
)

const usage = "Usage: go run ./cmd/migrate [up|drop|seed|status]"

// target is one opened backend with just enough surface for the CLI
type target struct {
	kind   database.Kind
	schema []string
	exec   func(ctx context.Context, query string) error
	count  func(ctx context.Context, query string) (int64, error)
	repos  *repository.Repositories
	close  func()
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "sqlite://visitor_counter.db"
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	command := os.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	t, err := open(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer t.close()

	switch command {
	case "up":
		if err := runAll(ctx, t, t.schema); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Printf("✅ All %s tables created successfully\n", t.kind)

	case "drop":
		if err := runAll(ctx, t, database.DropStatements); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "seed":
		settings, err := t.repos.Settings.GetOrCreate(ctx, domain.DefaultSettings(time.Now().UTC()))
		if err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Printf("✅ Settings ready: base %d in [%d, %d], interval %ds, active=%t\n",
			settings.CurrentBase, settings.MinBase, settings.MaxBase,
			settings.RefreshIntervalSeconds, settings.Enabled)

	case "status":
		if err := printStatus(ctx, t); err != nil {
			log.Fatalf("Failed to read status: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func open(ctx context.Context, dbURL string) (*target, error) {
	kind, dsn := database.ParseURL(dbURL)

	if kind == database.KindPostgres {
		db, err := database.NewPostgresDB(ctx, dsn, "")
		if err != nil {
			return nil, err
		}
		return &target{
			kind:   kind,
			schema: database.PostgresSchema,
			exec: func(ctx context.Context, query string) error {
				_, err := db.Pool.Exec(ctx, query)
				return err
			},
			count: func(ctx context.Context, query string) (int64, error) {
				var n int64
				err := db.Pool.QueryRow(ctx, query).Scan(&n)
				return n, err
			},
			repos: repository.NewPostgresRepositories(db),
			close: db.Close,
		}, nil
	}

	db, err := database.NewSQLiteDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &target{
		kind:   kind,
		schema: database.SQLiteSchema,
		exec: func(ctx context.Context, query string) error {
			_, err := db.DB.ExecContext(ctx, query)
			return err
		},
		count: func(ctx context.Context, query string) (int64, error) {
			var n int64
			err := db.DB.QueryRowContext(ctx, query).Scan(&n)
			return n, err
		},
		repos: sqlite.NewRepositories(db),
		close: func() { db.Close() },
	}, nil
}

func runAll(ctx context.Context, t *target, queries []string) error {
	for _, query := range queries {
		if err := t.exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Executed: %s\n", summarize(query))
	}
	return nil
}

func printStatus(ctx context.Context, t *target) error {
	fmt.Printf("Backend: %s\n", t.kind)
	for _, table := range []string{"visitor_counter_settings", "visitor_sessions", "visitor_stats"} {
		n, err := t.count(ctx, "SELECT COUNT(*) FROM "+table)
		if err != nil {
			fmt.Printf("  %-26s missing (%v)\n", table, err)
			continue
		}
		fmt.Printf("  %-26s %d rows\n", table, n)
	}

	active, err := t.repos.Sessions.CountActiveSince(ctx, time.Now().Add(-domain.ActiveWindow))
	if err != nil {
		return err
	}
	fmt.Printf("  active visitors (last %s): %d\n", domain.ActiveWindow, active)
	return nil
}

func summarize(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
