package imports

import (
	"context"

	"sheetflow/internal/frame"
)

// Querier is the slice of SnowflakeConn the import step uses.
type Querier interface {
	Query(ctx context.Context, q SnowflakeQuery) (*frame.DataFrame, error)
	Close() error
}

// Env carries the host-supplied resources the import and export steps
// reach for: named dataframes, user-defined transformers, and
// warehouse credentials. Each pipeline carries its own Env on its
// states, so analyses living in one process stay independent.
// Everything is optional and fails with a clear error when a step
// needs a resource the host never provided.
type Env struct {
	Resolver  *DFResolver
	UserDefs  *UserDefs
	Snowflake *SnowflakeCredentials

	// OpenSnowflake overrides the connection path, used by tests.
	OpenSnowflake func(ctx context.Context, creds SnowflakeCredentials) (Querier, error)
}
