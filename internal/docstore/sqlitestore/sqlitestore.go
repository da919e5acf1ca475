// Package sqlitestore keeps documents as JSON rows in SQLite, one table per
// collection, and publishes committed changes on a watcher feed.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	_ "modernc.org/sqlite"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/pkg/watcher"
)

type Config struct {
	// DSN is a modernc sqlite data source, e.g. "file:dochooks.db?_pragma=busy_timeout(5000)".
	DSN string `conf:"dsn" yaml:"dsn" json:"dsn"`
}

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Database is a docstore.Database backed by one SQLite file.
type Database struct {
	db   *sql.DB
	feed watcher.Notifier[docstore.ChangeEvent]

	mu          sync.Mutex
	collections map[string]*Collection
}

// Open opens the database at cfg.DSN. A nil feed defaults to an in-process memory
// watcher.
func Open(cfg Config, feed watcher.Notifier[docstore.ChangeEvent]) (*Database, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Writes are serialized per collection; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if feed == nil {
		feed = watcher.NewMemoryWatcher[docstore.ChangeEvent](watcher.MemoryWatcherOptions{Buffer: 1024, Name: "sqlite-docstore"})
	}

	return &Database{
		db:          db,
		feed:        feed,
		collections: make(map[string]*Collection),
	}, nil
}

func (d *Database) Collection(name string) (docstore.Store, error) {
	return d.SQLiteCollection(context.Background(), name)
}

// SQLiteCollection returns the concrete collection, creating its table on first use.
func (d *Database) SQLiteCollection(ctx context.Context, name string) (*Collection, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.collections[name]; ok {
		return c, nil
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    doc TEXT NOT NULL
)`, name)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}

	c := &Collection{name: name, db: d.db, feed: d.feed}
	d.collections[name] = c

	return c, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Collection is a docstore.Store and docstore.Observable over one table.
type Collection struct {
	name string
	db   *sql.DB
	feed watcher.Notifier[docstore.ChangeEvent]

	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

var (
	_ docstore.Store      = (*Collection)(nil)
	_ docstore.Observable = (*Collection)(nil)
)

func (c *Collection) Name() string { return c.name }

func (c *Collection) Insert(ctx context.Context, doc docstore.Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	if doc == nil {
		raw = []byte("{}")
	}

	id := gjson.GetBytes(raw, docstore.IDField).String()
	if id == "" {
		id = uuid.NewString()

		raw, err = sjson.SetBytes(raw, docstore.IDField, id)
		if err != nil {
			return "", err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %q (id, doc) VALUES (?, ?)`, c.name), id, string(raw)); err != nil {
		if exists, _ := c.exists(ctx, id); exists {
			return "", fmt.Errorf("%w: %s", docstore.ErrDuplicateID, id)
		}

		return "", err
	}

	stored, err := decode(raw)
	if err != nil {
		return "", err
	}

	c.publish(ctx, docstore.ChangeAdded, stored, nil)

	return id, nil
}

func (c *Collection) Update(ctx context.Context, sel docstore.Selector, mod docstore.Modifier, opts ...docstore.UpdateOption) (int, error) {
	if err := mod.Validate(); err != nil {
		return 0, err
	}

	o := docstore.ResolveUpdateOptions(opts...)

	limit := 1
	if o.Multi {
		limit = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.match(ctx, sel, limit)
	if err != nil {
		return 0, err
	}

	for _, r := range rows {
		if err := c.replace(ctx, r, mod); err != nil {
			return 0, err
		}
	}

	return len(rows), nil
}

func (c *Collection) Upsert(ctx context.Context, sel docstore.Selector, mod docstore.Modifier) (docstore.UpsertResult, error) {
	if err := mod.Validate(); err != nil {
		return docstore.UpsertResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.match(ctx, sel, 1)
	if err != nil {
		return docstore.UpsertResult{}, err
	}

	if len(rows) > 0 {
		if err := c.replace(ctx, rows[0], mod); err != nil {
			return docstore.UpsertResult{}, err
		}

		return docstore.UpsertResult{Matched: 1, Modified: 1}, nil
	}

	seed, err := docstore.UpsertSeed(sel, mod, uuid.NewString())
	if err != nil {
		return docstore.UpsertResult{}, err
	}

	raw, err := json.Marshal(seed)
	if err != nil {
		return docstore.UpsertResult{}, fmt.Errorf("encode document: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %q (id, doc) VALUES (?, ?)`, c.name), seed.ID(), string(raw)); err != nil {
		return docstore.UpsertResult{}, err
	}

	stored, err := decode(raw)
	if err != nil {
		return docstore.UpsertResult{}, err
	}

	c.publish(ctx, docstore.ChangeAdded, stored, nil)

	return docstore.UpsertResult{Inserted: true, InsertedID: seed.ID()}, nil
}

func (c *Collection) Remove(ctx context.Context, sel docstore.Selector) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.match(ctx, sel, 0)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, r := range rows {
		res, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, c.name), r.id)
		if err != nil {
			return removed, err
		}

		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		removed++
		c.publish(ctx, docstore.ChangeRemoved, r.doc, nil)
	}

	return removed, nil
}

func (c *Collection) Find(ctx context.Context, sel docstore.Selector, opts ...docstore.FindOption) ([]docstore.Document, error) {
	o := docstore.ResolveFindOptions(opts...)

	limit := o.Limit
	if o.Sort != "" {
		limit = 0
	}

	rows, err := c.match(ctx, sel, limit)
	if err != nil {
		return nil, err
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.doc)
	}

	return docstore.SortAndLimit(docs, o), nil
}

func (c *Collection) FindOne(ctx context.Context, sel docstore.Selector, opts ...docstore.FindOption) (docstore.Document, error) {
	docs, err := c.Find(ctx, sel, append(opts, docstore.WithLimit(1))...)
	if err != nil || len(docs) == 0 {
		return nil, err
	}

	return docs[0], nil
}

func (c *Collection) Watch(_ context.Context, filter docstore.Selector) (<-chan docstore.ChangeEvent, func(), error) {
	ch, stop := c.feed.Watch(func(ev docstore.ChangeEvent) bool {
		return docstore.EventMatches(ev, c.name, filter)
	})

	return ch, stop, nil
}

type row struct {
	id  string
	raw []byte
	doc docstore.Document
}

// match scans the table in insertion order. Plain string equalities are checked on
// the raw JSON first so most rows are rejected without decoding.
func (c *Collection) match(ctx context.Context, sel docstore.Selector, limit int) ([]row, error) {
	query := fmt.Sprintf(`SELECT id, doc FROM %q`, c.name)
	args := []any{}

	if id, ok := sel.PinnedID(); ok {
		query += ` WHERE id = ?`
		args = append(args, id)
	}

	query += ` ORDER BY seq`

	rs, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	prefilter := stringEqualities(sel)

	var out []row

	for rs.Next() {
		var (
			id  string
			raw string
		)

		if err := rs.Scan(&id, &raw); err != nil {
			return nil, err
		}

		if !prefilter.accepts(raw) {
			continue
		}

		doc, err := decode([]byte(raw))
		if err != nil {
			log.Warn(ctx, "skipping undecodable document", log.String("collection", c.name), log.String("id", id), log.Cause(err))
			continue
		}

		ok, err := sel.Matches(doc)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		out = append(out, row{id: id, raw: []byte(raw), doc: doc})
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out, rs.Err()
}

func (c *Collection) replace(ctx context.Context, r row, mod docstore.Modifier) error {
	next, err := mod.Apply(r.doc, false)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %q SET doc = ? WHERE id = ?`, c.name), string(raw), r.id); err != nil {
		return err
	}

	stored, err := decode(raw)
	if err != nil {
		return err
	}

	c.publish(ctx, docstore.ChangeChanged, stored, r.doc)

	return nil
}

func (c *Collection) exists(ctx context.Context, id string) (bool, error) {
	var n int

	err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(1) FROM %q WHERE id = ?`, c.name), id).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	return n > 0, nil
}

func (c *Collection) publish(ctx context.Context, kind docstore.ChangeKind, doc, previous docstore.Document) {
	ev := docstore.ChangeEvent{Collection: c.name, Kind: kind, Document: doc, Previous: previous}
	if err := c.feed.Notify(ctx, ev); err != nil {
		log.Warn(ctx, "failed to publish change", log.String("collection", c.name), log.Cause(err))
	}
}

func decode(raw []byte) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	return doc, nil
}

type equalities map[string]string

func stringEqualities(sel docstore.Selector) equalities {
	out := equalities{}

	for path, cond := range sel {
		if s, ok := cond.(string); ok && path != "" && path[0] != '$' {
			out[path] = s
		}
	}

	return out
}

// accepts is a necessary condition only: rows passing it are still matched in full.
func (e equalities) accepts(raw string) bool {
	for path, want := range e {
		got := gjson.Get(raw, path)
		if got.Type == gjson.String && got.Str != want {
			return false
		}
	}

	return true
}
