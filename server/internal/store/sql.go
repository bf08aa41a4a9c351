package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Timestamps are stored as fixed-width UTC text so that lexical order
// matches chronological order on both engines.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = time.DateOnly
)

type dialect struct {
	name   string
	driver string
	// dollar rewrites ? placeholders to $1, $2, ... before execution.
	dollar bool
	schema []string
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			age INTEGER NOT NULL,
			birth_date TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS customers_identity ON customers (first_name, last_name, birth_date)`,
		`CREATE INDEX IF NOT EXISTS customers_active_created ON customers (active, created_at)`,
	},
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	dollar: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id BIGSERIAL PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			age INTEGER NOT NULL,
			birth_date TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS customers_identity ON customers (first_name, last_name, birth_date)`,
		`CREATE INDEX IF NOT EXISTS customers_active_created ON customers (active, created_at)`,
	},
}

// SQL is a Store backed by database/sql.
type SQL struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

var _ Store = (*SQL)(nil)

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	if path == "" {
		path = "clientledger.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("store: create dirs: %w", err)
		}
	}
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return newSQL(ctx, db, sqliteDialect)
}

// OpenPostgres connects to the Postgres database at dsn.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return newSQL(ctx, db, postgresDialect)
}

func newSQL(ctx context.Context, db *sql.DB, d dialect) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", d.name, err)
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: apply %s schema: %w", d.name, err)
		}
	}
	return &SQL{db: db, dialect: d, now: time.Now}, nil
}

// rebind rewrites ? placeholders for dialects that number them.
func (s *SQL) rebind(q string) string {
	if !s.dialect.dollar {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQL) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *SQL) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func (s *SQL) stamp() time.Time {
	// Text timestamps keep nanoseconds; round-trip through the layout so the
	// caller sees exactly what a later read returns.
	t, _ := time.Parse(timeLayout, s.now().UTC().Format(timeLayout))
	return t
}

const customerColumns = `id, first_name, last_name, age, birth_date, created_by, created_at, updated_at, active`

// InsertCustomer inserts c and assigns its ID.
func (s *SQL) InsertCustomer(ctx context.Context, c *Customer) error {
	now := s.stamp()
	bd := dateOnly(c.BirthDate)
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO customers (first_name, last_name, age, birth_date, created_by, created_at, updated_at, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		c.FirstName, c.LastName, c.Age, bd.Format(dateLayout), c.CreatedBy,
		now.Format(timeLayout), now.Format(timeLayout), true,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("store: insert customer: %w", err)
	}
	c.ID = id
	c.BirthDate = bd
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Active = true
	return nil
}

// UpdateCustomer overwrites the mutable columns of the active row with c.ID.
func (s *SQL) UpdateCustomer(ctx context.Context, c *Customer) error {
	now := s.stamp()
	bd := dateOnly(c.BirthDate)
	res, err := s.exec(ctx,
		`UPDATE customers SET first_name = ?, last_name = ?, age = ?, birth_date = ?, updated_at = ?, active = ?
		 WHERE id = ? AND active = ?`,
		c.FirstName, c.LastName, c.Age, bd.Format(dateLayout), now.Format(timeLayout), c.Active, c.ID, true,
	)
	if err != nil {
		return fmt.Errorf("store: update customer %d: %w", c.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	c.BirthDate = bd
	c.UpdatedAt = now
	return nil
}

// FindCustomer loads the active customer with id.
func (s *SQL) FindCustomer(ctx context.Context, id int64) (*Customer, error) {
	row := s.queryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ? AND active = ?`, id, true)
	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find customer %d: %w", id, err)
	}
	return c, nil
}

// ListCustomers returns all active customers, newest first.
func (s *SQL) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := s.query(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE active = ? ORDER BY created_at DESC, id DESC`, true)
	if err != nil {
		return nil, fmt.Errorf("store: list customers: %w", err)
	}
	return collectCustomers(rows)
}

// PageCustomers returns one page of active customers and the active total.
func (s *SQL) PageCustomers(ctx context.Context, offset, limit int) ([]Customer, int, error) {
	offset = max(offset, 0)
	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM customers WHERE active = ?`, true).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count customers: %w", err)
	}
	rows, err := s.query(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE active = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, true, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: page customers: %w", err)
	}
	page, err := collectCustomers(rows)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// CustomerExists checks every row, including soft-deleted ones.
func (s *SQL) CustomerExists(ctx context.Context, firstName, lastName string, birthDate time.Time) (bool, error) {
	var n int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM customers WHERE first_name = ? AND last_name = ? AND birth_date = ?`,
		firstName, lastName, dateOnly(birthDate).Format(dateLayout),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: customer exists: %w", err)
	}
	return n > 0, nil
}

// ActiveAges returns the ages of active customers in id order.
func (s *SQL) ActiveAges(ctx context.Context) ([]int, error) {
	rows, err := s.query(ctx, `SELECT age FROM customers WHERE active = ? ORDER BY id`, true)
	if err != nil {
		return nil, fmt.Errorf("store: active ages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	ages := []int{}
	for rows.Next() {
		var a int
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("store: scan age: %w", err)
		}
		ages = append(ages, a)
	}
	return ages, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(sc scanner) (*Customer, error) {
	var (
		c                       Customer
		birth, created, updated string
	)
	if err := sc.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Age, &birth, &c.CreatedBy, &created, &updated, &c.Active); err != nil {
		return nil, err
	}
	var err error
	if c.BirthDate, err = time.Parse(dateLayout, birth); err != nil {
		return nil, fmt.Errorf("parse birth_date: %w", err)
	}
	if c.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &c, nil
}

func collectCustomers(rows *sql.Rows) ([]Customer, error) {
	defer func() { _ = rows.Close() }()
	out := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan customer: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const userColumns = `id, email, password_hash, first_name, last_name, role, created_at, active`

// InsertUser inserts u inside a transaction that first checks the email.
func (s *SQL) InsertUser(ctx context.Context, u *User) (retErr error) {
	email := strings.ToLower(u.Email)
	now := s.stamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var n int
	if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM users WHERE email = ?`), email).Scan(&n); err != nil {
		return fmt.Errorf("store: check user: %w", err)
	}
	if n > 0 {
		return ErrConflict
	}
	var id int64
	err = tx.QueryRowContext(ctx, s.rebind(
		`INSERT INTO users (email, password_hash, first_name, last_name, role, created_at, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role), now.Format(timeLayout), u.Active,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("store: insert user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit user: %w", err)
	}
	u.ID = id
	u.Email = email
	u.CreatedAt = now
	return nil
}

// UpdateUser overwrites the mutable columns of the user with u.Email.
func (s *SQL) UpdateUser(ctx context.Context, u *User) error {
	res, err := s.exec(ctx,
		`UPDATE users SET password_hash = ?, first_name = ?, last_name = ?, role = ?, active = ? WHERE email = ?`,
		u.PasswordHash, u.FirstName, u.LastName, string(u.Role), u.Active, strings.ToLower(u.Email),
	)
	if err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindUserByEmail loads the user with email.
func (s *SQL) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u       User
		role    string
		created string
	)
	err := s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email)).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &role, &created, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user: %w", err)
	}
	u.Role = Role(role)
	if u.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("store: parse user created_at: %w", err)
	}
	return &u, nil
}

// UserExists reports whether email is registered.
func (s *SQL) UserExists(ctx context.Context, email string) (bool, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, strings.ToLower(email)).Scan(&n); err != nil {
		return false, fmt.Errorf("store: user exists: %w", err)
	}
	return n > 0, nil
}

// Ping checks the database connection.
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQL) Close() error {
	return s.db.Close()
}
