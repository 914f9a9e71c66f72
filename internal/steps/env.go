package steps

import (
	"context"

	"sheetflow/internal/errs"
	"sheetflow/internal/imports"
	"sheetflow/internal/state"
)

// Env is the per-pipeline host environment the import and export
// performers reach for. Construction installs it on the initial state;
// every successor state inherits it, so concurrent pipelines in one
// process never see each other's resources.
type Env = imports.Env

// SnowflakeQuerier is the slice of SnowflakeConn the import step uses.
type SnowflakeQuerier = imports.Querier

func envResolver(prev *state.State) (*imports.DFResolver, error) {
	if prev.Env == nil || prev.Env.Resolver == nil {
		return nil, errs.UserConfig("no_dataframe_resolver",
			"no dataframes were passed in to import by name")
	}
	return prev.Env.Resolver, nil
}

func envUserDefs(prev *state.State) (*imports.UserDefs, error) {
	if prev.Env == nil || prev.Env.UserDefs == nil {
		return nil, errs.UserConfig("no_user_definitions",
			"no user-defined importers or edits are configured")
	}
	return prev.Env.UserDefs, nil
}

func envSnowflake(prev *state.State) (imports.SnowflakeCredentials, error) {
	if prev.Env == nil || prev.Env.Snowflake == nil {
		return imports.SnowflakeCredentialsFromEnv()
	}
	return *prev.Env.Snowflake, nil
}

func openSnowflake(ctx context.Context, prev *state.State, creds imports.SnowflakeCredentials) (SnowflakeQuerier, error) {
	if prev.Env != nil && prev.Env.OpenSnowflake != nil {
		return prev.Env.OpenSnowflake(ctx, creds)
	}
	return imports.ConnectSnowflake(ctx, creds)
}
