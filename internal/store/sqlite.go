package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/broadband-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// quoteIdent quotes a SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqliteType(k model.Kind) string {
	switch k {
	case model.KindInteger:
		return "INTEGER"
	case model.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func sqliteKind(declared string) model.Kind {
	switch strings.ToUpper(declared) {
	case "INTEGER", "INT", "BIGINT", "SMALLINT":
		return model.KindInteger
	case "REAL", "DOUBLE", "FLOAT", "NUMERIC":
		return model.KindFloat
	default:
		return model.KindText
	}
}

func (s *SQLiteStore) columns(ctx context.Context, name string) ([]model.Field, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: table info %s", name)
	}
	defer rows.Close() //nolint:errcheck

	var fields []model.Field
	for rows.Next() {
		var col, typ string
		if err := rows.Scan(&col, &typ); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan table info %s", name)
		}
		fields = append(fields, model.Field{Name: col, Kind: sqliteKind(typ)})
	}
	return fields, eris.Wrapf(rows.Err(), "sqlite: table info %s", name)
}

func (s *SQLiteStore) Load(ctx context.Context, name string) (*model.Table, error) {
	fields, err := s.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, eris.Wrapf(ErrTableNotFound, "sqlite: load %s", name)
	}

	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quoteIdent(f.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(cols, ", "), quoteIdent(name))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load %s", name)
	}
	defer rows.Close() //nolint:errcheck

	t := model.NewTable(name, fields...)
	raw := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	vals := make([]model.Value, len(fields))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", name)
		}
		for i, r := range raw {
			vals[i] = model.FromAny(r)
		}
		if _, err := t.Append(vals...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: load %s", name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: load %s", name)
	}
	return t, nil
}

func (s *SQLiteStore) Save(ctx context.Context, t *model.Table) error {
	fields := t.Fields()
	if len(fields) == 0 {
		return eris.Errorf("sqlite: save %s: no fields", t.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	ident := quoteIdent(t.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
		return eris.Wrapf(err, "sqlite: drop %s", t.Name)
	}

	defs := make([]string, len(fields))
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quoteIdent(f.Name)
		defs[i] = cols[i] + " " + sqliteType(f.Kind)
		marks[i] = "?"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", "))); err != nil {
		return eris.Wrapf(err, "sqlite: create %s", t.Name)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident, strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", t.Name)
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(fields))
	for n, r := range t.Rows() {
		for i := range fields {
			args[i] = r.At(i).Any()
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s row %d", t.Name, n)
		}
	}

	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", t.Name)
}

func (s *SQLiteStore) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: exists %s", name)
	}
	return n > 0, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tables")
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan table name")
		}
		names = append(names, n)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list tables")
	}

	out := make([]TableInfo, 0, len(names))
	for _, n := range names {
		info := TableInfo{Name: n}
		if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(n)).Scan(&info.Rows); err != nil {
			return nil, eris.Wrapf(err, "sqlite: count %s", n)
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *SQLiteStore) Drop(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name))
	return eris.Wrapf(err, "sqlite: drop %s", name)
}
