package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/skiffcloud/skiff/internal/db"
)

// fakeDB emulates the two system store tables with genuine transaction
// semantics: statements inside a transaction apply to a private copy that
// only becomes visible on Commit.
type fakeDB struct {
	mu        sync.Mutex
	functions map[string]*funcRow // keyed by tenantID + "/" + name
	tenants   map[string]*tenantRow
	failExec  func(sql string, args []any) error
}

type funcRow struct {
	id        string
	tenantID  string
	name      string
	data      []byte
	createdAt int64
	updatedAt int64
}

type tenantRow struct {
	id        string
	name      string
	status    string
	dbName    string
	dbUser    string
	dbPass    string
	createdBy string
	createdAt int64
	updatedAt int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		functions: make(map[string]*funcRow),
		tenants:   make(map[string]*tenantRow),
	}
}

func funcKey(tenantID, name string) string { return tenantID + "/" + name }

func copyFunctions(src map[string]*funcRow) map[string]*funcRow {
	dst := make(map[string]*funcRow, len(src))
	for k, v := range src {
		row := *v
		row.data = append([]byte(nil), v.data...)
		dst[k] = &row
	}
	return dst
}

func copyTenants(src map[string]*tenantRow) map[string]*tenantRow {
	dst := make(map[string]*tenantRow, len(src))
	for k, v := range src {
		row := *v
		dst[k] = &row
	}
	return dst
}

// exec applies one statement to the given table snapshots.
func (f *fakeDB) exec(functions map[string]*funcRow, tenants map[string]*tenantRow, sql string, args []any) (int64, error) {
	if f.failExec != nil {
		if err := f.failExec(sql, args); err != nil {
			return 0, err
		}
	}

	stmt := strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(stmt, "CREATE TABLE"), strings.HasPrefix(stmt, "CREATE INDEX"):
		return 0, nil

	case strings.HasPrefix(stmt, "INSERT INTO functions"):
		id, tenantID, name := args[0].(string), args[1].(string), args[2].(string)
		data := append([]byte(nil), args[3].([]byte)...)
		key := funcKey(tenantID, name)
		if existing, ok := functions[key]; ok {
			if !strings.Contains(stmt, "ON CONFLICT") {
				return 0, fmt.Errorf("duplicate key value violates unique constraint")
			}
			existing.data = data
			existing.updatedAt = args[5].(int64)
			return 1, nil
		}
		functions[key] = &funcRow{
			id: id, tenantID: tenantID, name: name, data: data,
			createdAt: args[4].(int64), updatedAt: args[5].(int64),
		}
		return 1, nil

	case strings.HasPrefix(stmt, "UPDATE functions"):
		tenantID, name := args[0].(string), args[1].(string)
		row, ok := functions[funcKey(tenantID, name)]
		if !ok {
			return 0, nil
		}
		row.data = append([]byte(nil), args[2].([]byte)...)
		row.updatedAt = args[3].(int64)
		return 1, nil

	case strings.HasPrefix(stmt, "DELETE FROM functions"):
		key := funcKey(args[0].(string), args[1].(string))
		if _, ok := functions[key]; !ok {
			return 0, nil
		}
		delete(functions, key)
		return 1, nil

	case strings.HasPrefix(stmt, "INSERT INTO tenants"):
		id := args[0].(string)
		if _, ok := tenants[id]; ok {
			return 0, fmt.Errorf("duplicate key value violates unique constraint")
		}
		tenants[id] = &tenantRow{
			id: id, name: args[1].(string), status: args[2].(string),
			dbName: args[3].(string), dbUser: args[4].(string), dbPass: args[5].(string),
			createdBy: args[6].(string), createdAt: args[7].(int64), updatedAt: args[8].(int64),
		}
		return 1, nil

	case strings.HasPrefix(stmt, "UPDATE tenants"):
		row, ok := tenants[args[0].(string)]
		if !ok {
			return 0, nil
		}
		row.status = args[1].(string)
		row.updatedAt = args[2].(int64)
		return 1, nil
	}
	return 0, fmt.Errorf("fakeDB: unexpected statement: %s", stmt)
}

func (f *fakeDB) query(functions map[string]*funcRow, tenants map[string]*tenantRow, sql string, args []any) (db.Rows, error) {
	stmt := strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(stmt, "SELECT data"):
		tenantID := args[0].(string)
		var rows []*funcRow
		for _, row := range functions {
			if row.tenantID == tenantID {
				rows = append(rows, row)
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
		vals := make([][]any, 0, len(rows))
		for _, row := range rows {
			vals = append(vals, []any{append([]byte(nil), row.data...)})
		}
		return &fakeRows{vals: vals}, nil

	case strings.HasPrefix(stmt, "SELECT id, name, status"):
		var rows []*tenantRow
		for _, row := range tenants {
			rows = append(rows, row)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
		vals := make([][]any, 0, len(rows))
		for _, r := range rows {
			vals = append(vals, []any{r.id, r.name, r.status, r.dbName, r.dbUser, r.dbPass, r.createdBy, r.createdAt, r.updatedAt})
		}
		return &fakeRows{vals: vals}, nil
	}
	return nil, fmt.Errorf("fakeDB: unexpected query: %s", stmt)
}

func (f *fakeDB) queryRow(functions map[string]*funcRow, tenants map[string]*tenantRow, sql string, args []any) db.Row {
	stmt := strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(stmt, "SELECT data"):
		row, ok := functions[funcKey(args[0].(string), args[1].(string))]
		if !ok {
			return &fakeRow{err: db.ErrNoRows}
		}
		return &fakeRow{vals: []any{append([]byte(nil), row.data...)}}

	case strings.HasPrefix(stmt, "SELECT id") && strings.Contains(stmt, "FROM functions"):
		row, ok := functions[funcKey(args[0].(string), args[1].(string))]
		if !ok {
			return &fakeRow{err: db.ErrNoRows}
		}
		return &fakeRow{vals: []any{row.id}}

	case strings.HasPrefix(stmt, "SELECT id, name, status"):
		row, ok := tenants[args[0].(string)]
		if !ok {
			return &fakeRow{err: db.ErrNoRows}
		}
		return &fakeRow{vals: []any{row.id, row.name, row.status, row.dbName, row.dbUser, row.dbPass, row.createdBy, row.createdAt, row.updatedAt}}
	}
	return &fakeRow{err: fmt.Errorf("fakeDB: unexpected query: %s", stmt)}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (db.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.exec(f.functions, f.tenants, sql, args)
	return fakeResult(n), err
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (db.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query(f.functions, f.tenants, sql, args)
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) db.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryRow(f.functions, f.tenants, sql, args)
}

func (f *fakeDB) Begin(_ context.Context) (db.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &fakeTx{
		db:        f,
		functions: copyFunctions(f.functions),
		tenants:   copyTenants(f.tenants),
	}, nil
}

func (f *fakeDB) Ping(_ context.Context) error { return nil }
func (f *fakeDB) Close()                       {}

type fakeTx struct {
	db        *fakeDB
	functions map[string]*funcRow
	tenants   map[string]*tenantRow
	done      bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (db.Result, error) {
	n, err := t.db.exec(t.functions, t.tenants, sql, args)
	return fakeResult(n), err
}

func (t *fakeTx) Query(_ context.Context, sql string, args ...any) (db.Rows, error) {
	return t.db.query(t.functions, t.tenants, sql, args)
}

func (t *fakeTx) QueryRow(_ context.Context, sql string, args ...any) db.Row {
	return t.db.queryRow(t.functions, t.tenants, sql, args)
}

func (t *fakeTx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("tx already finished")
	}
	t.done = true
	t.db.mu.Lock()
	t.db.functions = t.functions
	t.db.tenants = t.tenants
	t.db.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	t.done = true
	return nil
}

type fakeResult int64

func (r fakeResult) RowsAffected() int64 { return int64(r) }

type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(dest, r.vals)
}

type fakeRows struct {
	vals [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.vals) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return scanInto(dest, r.vals[r.idx-1]) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

func scanInto(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = vals[i].(string)
		case *[]byte:
			*d = append([]byte(nil), vals[i].([]byte)...)
		case *int64:
			*d = vals[i].(int64)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}
