package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveRun demonstrates persisting and reading a run record.
func ExampleSQLiteStore_SaveRun() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	run := &engine.Run{
		ID:        "run-001",
		Status:    engine.RunStatusRunning,
		Regions:   []string{"us-east-1"},
		StartedAt: time.Now(),
	}

	if err := store.SaveRun(ctx, run); err != nil {
		log.Fatal(err)
	}

	retrieved, err := store.GetRun(ctx, "run-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Run ID: %s, Status: %s\n", retrieved.ID, retrieved.Status)
	// Output: Run ID: run-001, Status: running
}

// ExampleSQLiteStore_SaveEnvelope demonstrates persisting operation results.
func ExampleSQLiteStore_SaveEnvelope() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	run := &engine.Run{
		ID:        "run-002",
		Status:    engine.RunStatusRunning,
		Regions:   []string{"us-east-1"},
		StartedAt: time.Now(),
	}
	_ = store.SaveRun(ctx, run)

	env := &engine.ResultEnvelope{
		Namespace:  "s3",
		Region:     "us-east-1",
		Operation:  "ListBuckets",
		Success:    true,
		Payload:    map[string]any{"Buckets": []any{}},
		ExecutedAt: time.Now(),
	}
	if err := store.SaveEnvelope(ctx, "run-002", env); err != nil {
		log.Fatal(err)
	}

	envelopes, err := store.ListEnvelopes(ctx, "run-002")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Envelopes: %d, Operation: %s\n", len(envelopes), envelopes[0].Operation)
	// Output: Envelopes: 1, Operation: ListBuckets
}

// ExampleSQLiteStore_Publish demonstrates recording task events.
func ExampleSQLiteStore_Publish() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	run := &engine.Run{
		ID:        "run-003",
		Status:    engine.RunStatusRunning,
		Regions:   []string{"us-east-1"},
		StartedAt: time.Now(),
	}
	_ = store.SaveRun(ctx, run)

	event := &engine.Event{
		Type:      engine.EventTypeTaskStarted,
		RunID:     "run-003",
		Namespace: "s3",
		Region:    "us-east-1",
		Message:   "task started",
		Level:     "info",
		Timestamp: time.Now(),
	}
	if err := store.Publish(ctx, event); err != nil {
		log.Fatal(err)
	}

	events, err := store.ListEvents(ctx, "run-003", 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Event count: %d, Message: %s\n", len(events), events[0].Message)
	// Output: Event count: 1, Message: task started
}
