//go:build integration

package remote

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/types"
)

// TestRemoteStore_AgainstRealDolt exercises the store against an actual
// Dolt sql-server speaking the MySQL wire protocol, the same way the
// teacher's dolt package reaches for a real dolt binary in server_integration_test.go
// rather than trusting a mocked driver. Run with -tags=integration; it pulls
// and starts a container, so it's excluded from the default test run.
func TestRemoteStore_AgainstRealDolt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := dolt.Run(ctx, "dolthub/dolt-sql-server:latest",
		dolt.WithDatabase("tmcore_test"),
	)
	if err != nil {
		t.Fatalf("starting dolt container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("warning: failed to terminate dolt container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := Open(ctx, Config{DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("opening remote store: %v", err)
	}
	defer store.db.Close()

	repos := store.Repositories()
	if repos.Mode != storage.ModeRemoteAuthoritative {
		t.Fatalf("expected remote authoritative mode, got %s", repos.Mode)
	}

	platform, err := repos.Platforms.Create(ctx, &types.Platform{Name: "acme"})
	if err != nil {
		t.Fatalf("creating platform: %v", err)
	}
	if platform.ID == 0 {
		t.Fatal("expected platform ID to be assigned")
	}

	project, err := repos.Projects.Create(ctx, &types.Project{Name: "site", PlatformID: &platform.ID})
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}

	tm, err := repos.TMs.Create(ctx, &types.TM{
		Name: "acme-en-fr", SourceLang: "en", TargetLang: "fr",
	})
	if err != nil {
		t.Fatalf("creating tm: %v", err)
	}

	entries, err := repos.TMEntries.BulkAdd(ctx, tm.ID, []*types.TMEntry{
		{Source: "Hello, world.", Target: "Bonjour le monde."},
	})
	if err != nil {
		t.Fatalf("bulk add: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	hits, err := repos.TMEntries.SearchSimilar(ctx, tm.ID, "Hello world", 5)
	if err != nil {
		t.Fatalf("search similar: %v", err)
	}
	if len(hits) == 0 {
		t.Error("expected the fulltext pushdown to surface the seeded entry")
	}

	if _, err := repos.Assignments.Create(ctx, &types.Assignment{
		TMID: tm.ID, ProjectID: &project.ID,
	}); err != nil {
		t.Fatalf("creating assignment: %v", err)
	}
}
