package db

import "context"

// SchemaInterface manages the versioned database schema.
type SchemaInterface interface {
	// Upgrade applies schema versions newer than the one in the database.
	Upgrade(ctx context.Context) error

	// Version returns the schema version recorded in the database.
	//
	// 0 means the schema is not installed yet.
	Version(ctx context.Context) (int, error)

	// Context derives a context which is cancelled when the schema in the
	// database falls behind the schema repository on disk.
	Context(ctx context.Context) (context.Context, context.CancelFunc)
}
