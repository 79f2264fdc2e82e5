package zotero

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/citekit/citelink/core/cite"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/core/sqlite"
)

// storeSchema holds one row per fetched item, keyed by the reference
// manager's item key. Payloads are the CSL JSON as returned by the API.
const storeSchema = `CREATE TABLE IF NOT EXISTS items (
	key        TEXT PRIMARY KEY,
	fetched_at TEXT NOT NULL,
	payload    BLOB NOT NULL
)`

// Store persists fetched items in a SQLite database so repeated runs
// over the same manuscript do not re-contact the API.
type Store struct {
	db   *sql.DB
	path string
}

// StoreInfo describes the on-disk store for cache maintenance commands.
type StoreInfo struct {
	Path   string      `json:"path"`
	Items  int         `json:"items"`
	Driver sqlite.Info `json:"driver"`
}

// OpenStore opens the item store at path, creating the database and its
// parent directory if needed.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("zotero: empty store path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store's database file path.
func (s *Store) Path() string {
	return s.path
}

// Get loads a stored item. A miss reports cerrors.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*cite.Item, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM items WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerrors.NewNotFound("item", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading item %s: %w", key, err)
	}

	var item cite.Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, fmt.Errorf("decoding stored item %s: %w", key, err)
	}
	return &item, nil
}

// Put stores an item, replacing any previous payload for the key.
func (s *Store) Put(ctx context.Context, key string, item *cite.Item) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding item %s: %w", key, err)
	}

	fetchedAt := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO items (key, fetched_at, payload) VALUES (?, ?, ?)`,
		key, fetchedAt, payload)
	if err != nil {
		return fmt.Errorf("writing item %s: %w", key, err)
	}
	return nil
}

// Clear removes every stored item.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	return nil
}

// Info reports the store's path, item count, and driver configuration.
func (s *Store) Info(ctx context.Context) (StoreInfo, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return StoreInfo{}, fmt.Errorf("counting items: %w", err)
	}
	return StoreInfo{
		Path:   s.path,
		Items:  count,
		Driver: sqlite.GetInfo(),
	}, nil
}
