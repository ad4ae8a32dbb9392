package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/tdre/pkg/stores"
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

// ExampleSQLiteStore_PutManifest demonstrates storing manifest revisions.
func ExampleSQLiteStore_PutManifest() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	for _, content := range []string{
		"name: billing\nversion: \"1.0\"\n",
		"name: billing\nversion: \"1.0\"\n",
		"name: billing\nversion: \"1.1\"\n",
	} {
		rec, err := store.PutManifest(ctx, &stores.ManifestRecord{
			Name:    "billing",
			Format:  "yaml",
			Source:  "billing.yaml",
			Content: []byte(content),
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("revision %d\n", rec.Revision)
	}

	latest, _ := store.LatestManifest(ctx, "billing")
	fmt.Printf("latest: %s", latest.Content)
	// Output:
	// revision 1
	// revision 1
	// revision 2
	// latest: name: billing
	// version: "1.1"
}

// ExampleSQLiteStore_RecordReload demonstrates keeping a reload history.
func ExampleSQLiteStore_RecordReload() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	_ = store.RecordReload(ctx, &stores.ReloadRecord{
		Path:       "billing.yaml",
		SnapshotID: "3f1c",
		Status:     stores.ReloadStatusSuccess,
		Duration:   12 * time.Millisecond,
	})

	reloads, _ := store.ListReloads(ctx, 10, 0)
	for _, r := range reloads {
		fmt.Printf("%s %s %s %v\n", r.Path, r.SnapshotID, r.Status, r.Duration)
	}
	// Output: billing.yaml 3f1c success 12ms
}
