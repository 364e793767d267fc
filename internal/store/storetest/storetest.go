// Package storetest opens a throwaway Postgres store for tests.
package storetest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// EnvDatabaseURL names the server the Postgres tests run against.
const EnvDatabaseURL = "TEST_DATABASE_URL"

// Postgres returns a migrated store living in a fresh schema that is dropped
// when the test ends. The test is skipped when EnvDatabaseURL is unset.
func Postgres(t testing.TB) *store.Postgres {
	t.Helper()
	url := os.Getenv(EnvDatabaseURL)
	if url == "" {
		t.Skipf("%s not set", EnvDatabaseURL)
	}
	ctx := context.Background()

	admin, err := store.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	schema := "test_" + uuid.NewString()[:8]
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvDatabaseURL, err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := store.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate into %s: %v", schema, err)
	}
	return store.NewPostgres(pool)
}

// Clan is a founded clan with the given spendable balance, ready to seed.
func Clan(tag string, spendable int64) *store.Clan {
	return &store.Clan{
		Tag: tag, Name: fmt.Sprintf("Clan %s", tag), LeaderID: "lead-" + tag,
		Members: []string{}, MaxSlots: store.DefaultMaxSlots, RecruitmentOpen: true,
		Badges: []string{}, SpendablePoints: spendable, Rank: 1,
	}
}
