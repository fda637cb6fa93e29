package testenv

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"

	kpool "github.com/felafax/split/pkg/db/postgres/pool"
	"github.com/felafax/split/pkg/db/postgres/schema"
)

// environment variable naming the database tests run against.
const EnvTestDBURI = "SPLIT_TEST_DBURI"

type pg struct {
	pool *pgxpool.Pool
}

func (p *pg) GetPool(ctx context.Context, t *testing.T) kpool.Pool {
	t.Helper()

	pool := kpool.Wrap(p.pool)
	if err := schema.New(pool, schemaRepository()).Upgrade(ctx); err != nil {
		t.Fatalf("fail to install schema: %v", err)
	}

	t.Cleanup(func() {
		t.Helper()
		ClearTables(ctx, p.pool, t)
	})

	ClearTables(ctx, p.pool, t)
	return pool
}

// PoolBroaker is a interface to get a pool.
type PoolBroaker interface {
	// GetPool returns a pool against the test database.
	//
	// The schema is installed if needed, and tables are cleaned up
	// before returning and after t.
	GetPool(ctx context.Context, t *testing.T) kpool.Pool
}

// NewPoolBroaker returns a PoolBroaker against the database named by
// the environment variable EnvTestDBURI.
//
// When the variable is not set, the calling test is skipped.
//
// # Args
//
// - ctx: When this context is canceled, the database connection behind
// the pool will be lost.
//
// - t: scope of the PoolBroaker.
// When this test is finished, the broaker will be shutdown.
func NewPoolBroaker(ctx context.Context, t *testing.T) PoolBroaker {
	t.Helper()

	dburi := os.Getenv(EnvTestDBURI)
	if dburi == "" {
		t.Skipf(`set "%s" to run tests against a database`, EnvTestDBURI)
	}

	pool, err := pgxpool.Connect(ctx, dburi)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	return &pg{pool: pool}
}

func ClearTables(ctx context.Context, p *pgxpool.Pool, t *testing.T) {
	t.Helper()

	conn, err := p.Acquire(ctx)
	if err != nil {
		t.Errorf("fail to clean-up tables.: %v", err)
		return
	}
	defer conn.Release()

	for _, command := range []string{
		`truncate "experiment" RESTART IDENTITY cascade`,
		// by cascade, all rows in variant, assignment and result are deleted.
	} {
		_, err = conn.Exec(ctx, command)
		if err != nil {
			t.Errorf("fail to clean-up tables.: %v", err)
		}
	}
}

// schemaRepository resolves the schema directory at the repository root,
// independent of the working directory of the calling test.
func schemaRepository() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "..", "schema")
}
