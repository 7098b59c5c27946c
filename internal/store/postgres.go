package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/broadband-cli/internal/db"
	"github.com/sells-group/broadband-cli/internal/model"
	"github.com/sells-group/broadband-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool. Tables live in schema, or in
// the connection's current schema when schema is empty.
type PostgresStore struct {
	pool    db.Pool
	schema  string
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters. Retries is the
// number of connect attempts; zero keeps the resilience default.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
	Retries  int   `yaml:"retries" mapstructure:"retries"`
}

func connectRetry(poolCfg *PoolConfig, schema string) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if poolCfg != nil && poolCfg.Retries > 0 {
		rc.MaxAttempts = poolCfg.Retries
	}
	rc.OnRetry = resilience.RetryLogger("connect", schema)
	return rc
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString, schema string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := resilience.Do(ctx, connectRetry(poolCfg, schema), pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, schema: schema, closeFn: pool.Close}, nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func postgresType(k model.Kind) string {
	switch k {
	case model.KindInteger:
		return "bigint"
	case model.KindFloat:
		return "double precision"
	default:
		return "text"
	}
}

func postgresKind(dataType string) model.Kind {
	switch dataType {
	case "bigint", "integer", "smallint":
		return model.KindInteger
	case "double precision", "real", "numeric":
		return model.KindFloat
	default:
		return model.KindText
	}
}

// schemaClause selects the store's schema, defaulting to current_schema().
const schemaClause = `table_schema = COALESCE(NULLIF($1, ''), current_schema())`

func (s *PostgresStore) columns(ctx context.Context, name string) ([]model.Field, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE `+schemaClause+
			` AND table_name = $2 ORDER BY ordinal_position`, s.schema, name)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: columns %s", name)
	}
	defer rows.Close()

	var fields []model.Field
	for rows.Next() {
		var col, typ string
		if err := rows.Scan(&col, &typ); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan columns %s", name)
		}
		fields = append(fields, model.Field{Name: col, Kind: postgresKind(typ)})
	}
	return fields, eris.Wrapf(rows.Err(), "postgres: columns %s", name)
}

func (s *PostgresStore) Load(ctx context.Context, name string) (*model.Table, error) {
	fields, err := s.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, eris.Wrapf(ErrTableNotFound, "postgres: load %s", name)
	}

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	// Tables are only ever written by a single COPY, so ctid follows insert order.
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY ctid", db.QuoteAndJoin(names), db.TableIdent(s.schema, name))
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s", name)
	}
	defer rows.Close()

	t := model.NewTable(name, fields...)
	vals := make([]model.Value, len(fields))
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", name)
		}
		for i := range vals {
			vals[i] = model.Null()
			if i < len(raw) {
				vals[i] = model.FromAny(raw[i])
			}
		}
		if _, err := t.Append(vals...); err != nil {
			return nil, eris.Wrapf(err, "postgres: load %s", name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s", name)
	}
	return t, nil
}

func (s *PostgresStore) Save(ctx context.Context, t *model.Table) error {
	fields := t.Fields()
	cols := make([]db.Column, len(fields))
	for i, f := range fields {
		cols[i] = db.Column{Name: f.Name, Type: postgresType(f.Kind)}
	}

	rows := make([][]any, 0, t.Len())
	for _, r := range t.Rows() {
		row := make([]any, len(fields))
		for i := range fields {
			row[i] = r.At(i).Any()
		}
		rows = append(rows, row)
	}

	_, err := db.ReplaceTable(ctx, s.pool, db.ReplaceConfig{Schema: s.schema, Table: t.Name, Columns: cols}, rows)
	return eris.Wrapf(err, "postgres: save %s", t.Name)
}

func (s *PostgresStore) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE `+schemaClause+` AND table_name = $2)`,
		s.schema, name).Scan(&ok)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: exists %s", name)
	}
	return ok, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE `+schemaClause+
			` AND table_type = 'BASE TABLE' ORDER BY table_name`, s.schema)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tables")
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan table name")
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list tables")
	}

	out := make([]TableInfo, 0, len(names))
	for _, n := range names {
		info := TableInfo{Name: n}
		q := "SELECT count(*) FROM " + db.TableIdent(s.schema, n)
		if err := s.pool.QueryRow(ctx, q).Scan(&info.Rows); err != nil {
			return nil, eris.Wrapf(err, "postgres: count %s", n)
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *PostgresStore) Drop(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+db.TableIdent(s.schema, name))
	return eris.Wrapf(err, "postgres: drop %s", name)
}
