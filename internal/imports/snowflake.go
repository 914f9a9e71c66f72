package imports

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	sf "github.com/snowflakedb/gosnowflake"

	"sheetflow/internal/columns"
	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/values"
)

// SnowflakeCredentials identify one Snowflake account. Password is
// never written to saved analyses; replays re-read it.
type SnowflakeCredentials struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Account  string `json:"account"`
}

// SnowflakeQuery selects a block of one table.
type SnowflakeQuery struct {
	Warehouse string   `json:"warehouse"`
	Database  string   `json:"database"`
	Schema    string   `json:"schema"`
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	Limit     int      `json:"limit,omitempty"`
}

// SnowflakeCredentialsFromEnv reads SNOWFLAKE_USERNAME /
// SNOWFLAKE_PASSWORD / SNOWFLAKE_ACCOUNT, loading a .env file first
// when one exists.
func SnowflakeCredentialsFromEnv() (SnowflakeCredentials, error) {
	_ = godotenv.Load()
	creds := SnowflakeCredentials{
		Username: os.Getenv("SNOWFLAKE_USERNAME"),
		Password: os.Getenv("SNOWFLAKE_PASSWORD"),
		Account:  os.Getenv("SNOWFLAKE_ACCOUNT"),
	}
	if creds.Username == "" || creds.Password == "" || creds.Account == "" {
		return SnowflakeCredentials{}, errs.UserConfig("snowflake_credentials_missing",
			"set SNOWFLAKE_USERNAME, SNOWFLAKE_PASSWORD and SNOWFLAKE_ACCOUNT")
	}
	return creds, nil
}

// SnowflakeConn wraps one authenticated connection.
type SnowflakeConn struct {
	db *sqlx.DB
}

// ConnectSnowflake opens and pings a connection.
func ConnectSnowflake(ctx context.Context, creds SnowflakeCredentials) (*SnowflakeConn, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:  creds.Account,
		User:     creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return nil, errs.UserConfig("snowflake_bad_credentials",
			"cannot build connection string").WithCause(err)
	}
	db, err := sqlx.Open("snowflake", dsn)
	if err != nil {
		return nil, errs.IO("snowflake_unreachable", "cannot open connection").WithCause(err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errs.IO("snowflake_unreachable", "cannot reach account %q",
			creds.Account).WithCause(err)
	}
	return &SnowflakeConn{db: db}, nil
}

// Close releases the connection.
func (c *SnowflakeConn) Close() error { return c.db.Close() }

// Warehouses lists warehouse names visible to the connection.
func (c *SnowflakeConn) Warehouses(ctx context.Context) ([]string, error) {
	return c.showNames(ctx, "SHOW WAREHOUSES", "name")
}

// Databases lists database names.
func (c *SnowflakeConn) Databases(ctx context.Context) ([]string, error) {
	return c.showNames(ctx, "SHOW DATABASES", "name")
}

// Schemas lists schemas of a database.
func (c *SnowflakeConn) Schemas(ctx context.Context, database string) ([]string, error) {
	return c.showNames(ctx, fmt.Sprintf("SHOW SCHEMAS IN DATABASE %s", quoteIdent(database)), "name")
}

// Tables lists tables plus views of a schema.
func (c *SnowflakeConn) Tables(ctx context.Context, database, schema string) ([]string, error) {
	scope := fmt.Sprintf("%s.%s", quoteIdent(database), quoteIdent(schema))
	tables, err := c.showNames(ctx, "SHOW TABLES IN SCHEMA "+scope, "name")
	if err != nil {
		return nil, err
	}
	views, err := c.showNames(ctx, "SHOW VIEWS IN SCHEMA "+scope, "name")
	if err != nil {
		return nil, err
	}
	return append(tables, views...), nil
}

// TableColumns lists column names of one table.
func (c *SnowflakeConn) TableColumns(ctx context.Context, database, schema, table string) ([]string, error) {
	q := fmt.Sprintf("SHOW COLUMNS IN TABLE %s.%s.%s",
		quoteIdent(database), quoteIdent(schema), quoteIdent(table))
	return c.showNames(ctx, q, "column_name")
}

func (c *SnowflakeConn) showNames(ctx context.Context, query, nameCol string) ([]string, error) {
	rows, err := c.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, errs.IO("snowflake_query_failed", "%s failed", query).WithCause(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		rec := map[string]any{}
		if err := rows.MapScan(rec); err != nil {
			return nil, errs.IO("snowflake_query_failed", "%s failed", query).WithCause(err)
		}
		if name, ok := rec[nameCol].(string); ok {
			out = append(out, name)
		}
	}
	return out, rows.Err()
}

// Query runs the declared selection and materializes it as a dataframe.
func (c *SnowflakeConn) Query(ctx context.Context, q SnowflakeQuery) (*frame.DataFrame, error) {
	if q.Database == "" || q.Schema == "" || q.Table == "" {
		return nil, errs.UserConfig("snowflake_query_incomplete",
			"database, schema and table are all required")
	}
	if q.Warehouse != "" {
		if _, err := c.db.ExecContext(ctx, "USE WAREHOUSE "+quoteIdent(q.Warehouse)); err != nil {
			return nil, errs.UserConfig("snowflake_bad_warehouse",
				"cannot use warehouse %q", q.Warehouse).WithCause(err)
		}
	}

	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, col := range q.Columns {
			quoted[i] = quoteIdent(col)
		}
		cols = strings.Join(quoted, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s.%s.%s", cols,
		quoteIdent(q.Database), quoteIdent(q.Schema), quoteIdent(q.Table))
	if q.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, q.Limit)
	}

	rows, err := c.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, errs.IO("snowflake_query_failed", "query against %s failed",
			q.Table).WithCause(err)
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return nil, errs.IO("snowflake_query_failed", "cannot read result columns").WithCause(err)
	}
	headers = columns.DeduplicateHeaders(headers)

	series := make([][]values.Value, len(headers))
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, errs.IO("snowflake_query_failed", "cannot scan result row").WithCause(err)
		}
		for i := range headers {
			var v values.Value
			if i < len(raw) {
				v = sqlValue(raw[i])
			} else {
				v = values.NaN()
			}
			series[i] = append(series[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.IO("snowflake_query_failed", "result stream failed").WithCause(err)
	}

	cols2 := make([]*frame.Series, len(headers))
	for i, cells := range series {
		cols2[i] = frame.NewSeries(seriesDType(cells), cells)
	}
	return frame.New(headers, cols2)
}

// sqlValue converts a driver value to a cell.
func sqlValue(raw any) values.Value {
	switch x := raw.(type) {
	case nil:
		return values.NaN()
	case bool:
		return values.Bool(x)
	case int64:
		return values.Int(x)
	case float64:
		return values.Float(x)
	case time.Time:
		return values.Datetime(x)
	case []byte:
		return values.String(string(x))
	case string:
		return values.String(x)
	default:
		return values.String(fmt.Sprint(x))
	}
}

// seriesDType picks the column dtype from its first non-null cell.
func seriesDType(cells []values.Value) values.DType {
	for _, v := range cells {
		if !v.IsNull() {
			return v.Kind()
		}
	}
	return values.TypeFloat
}

// quoteIdent double-quotes a Snowflake identifier, escaping embedded
// quotes.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
