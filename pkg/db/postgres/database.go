package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	kdb "github.com/felafax/split/pkg/db"
	kpgassign "github.com/felafax/split/pkg/db/postgres/assignment"
	kpgexp "github.com/felafax/split/pkg/db/postgres/experiment"
	kpool "github.com/felafax/split/pkg/db/postgres/pool"
	kpgschema "github.com/felafax/split/pkg/db/postgres/schema"
	xe "github.com/felafax/split/pkg/errors"
)

type splitDBPostgres struct {
	pool        *pgxpool.Pool
	experiments kdb.ExperimentInterface
	assignments kdb.AssignmentInterface
	schema      kdb.SchemaInterface
}

type Config struct {
	SchemaRepository string
}

func DefaultConfig() Config {
	return Config{}
}

type Option func(*Config) *Config

func WithSchemaRepository(repository string) Option {
	return func(c *Config) *Config {
		c.SchemaRepository = repository
		return c
	}
}

func New(
	ctx context.Context,
	url string,
	options ...Option,
) (kdb.SplitDatabase, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	c := DefaultConfig()
	for _, option := range options {
		c = *option(&c)
	}

	p := kpool.Wrap(pool)
	var schema kdb.SchemaInterface = kpgschema.Null()
	if c.SchemaRepository != "" {
		schema = kpgschema.New(p, c.SchemaRepository)
	}

	return &splitDBPostgres{
		pool:        pool,
		experiments: kpgexp.New(p),
		assignments: kpgassign.New(p),
		schema:      schema,
	}, nil
}

func (s *splitDBPostgres) Experiments() kdb.ExperimentInterface {
	return s.experiments
}

func (s *splitDBPostgres) Assignments() kdb.AssignmentInterface {
	return s.assignments
}

func (s *splitDBPostgres) Schema() kdb.SchemaInterface {
	return s.schema
}

func (s *splitDBPostgres) Close() error {
	s.pool.Close()
	return nil
}
