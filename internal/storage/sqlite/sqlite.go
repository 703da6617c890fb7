// Package sqlite persists the two pieces of state spec.md §6 "Persisted
// state" names: the unread-jids index (so unread markers survive a
// restart) and the entity-capabilities cache, keyed by (hash, ver) with a
// JSON encoding of the disco#info content as value (see EncodeInfo); no
// disco#info XML is stored. Trimmed from the teacher's full
// chat-history/window-state schema, which belongs to the excluded TUI.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rosterd/corexmpp/internal/caps"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite connection and the two tables this core needs.
type DB struct {
	db *sql.DB
}

// New opens (creating if absent) roster.db under dataDir and runs migrations.
func New(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "roster.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return store, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS unread_jids (
			account TEXT NOT NULL,
			jid TEXT NOT NULL,
			PRIMARY KEY (account, jid)
		)`,
		`CREATE TABLE IF NOT EXISTS caps_cache (
			hash TEXT NOT NULL,
			ver TEXT NOT NULL,
			xml BLOB NOT NULL,
			PRIMARY KEY (hash, ver)
		)`,
	}
	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("sqlite: migration failed: %w", err)
		}
	}
	return nil
}

// SaveUnreadJIDs replaces the persisted unread-jids index for account with
// jids (spec.md §4.3 "wipe the roster (preserving the unread-jids index for
// the next session)").
func (d *DB) SaveUnreadJIDs(account string, jids []string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM unread_jids WHERE account = ?`, account); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO unread_jids (account, jid) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, j := range jids {
		if _, err := stmt.Exec(account, j); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadUnreadJIDs returns the persisted unread-jids index for account.
func (d *DB) LoadUnreadJIDs(account string) ([]string, error) {
	rows, err := d.db.Query(`SELECT jid FROM unread_jids WHERE account = ?`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var j string
		if err := rows.Scan(&j); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// SaveCapsEntry persists one global caps-cache entry, storing p.XML (the
// EncodeInfo JSON blob when produced by cmd/rosterd) in the xml column.
func (d *DB) SaveCapsEntry(p caps.PersistedEntry) error {
	_, err := d.db.Exec(
		`INSERT INTO caps_cache (hash, ver, xml) VALUES (?, ?, ?)
		 ON CONFLICT(hash, ver) DO UPDATE SET xml = excluded.xml`,
		p.Hash, p.Ver, p.XML)
	return err
}

// LoadCapsEntries returns every persisted caps-cache entry, for bulk
// restoration into a fresh caps.Cache at startup.
func (d *DB) LoadCapsEntries() ([]caps.PersistedEntry, error) {
	rows, err := d.db.Query(`SELECT hash, ver, xml FROM caps_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []caps.PersistedEntry
	for rows.Next() {
		var p caps.PersistedEntry
		if err := rows.Scan(&p.Hash, &p.Ver, &p.XML); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// EncodeInfo renders a caps.Info as the JSON blob this store persists it
// as; a full disco#info XML document isn't needed for round-tripping since
// nothing outside this process ever reads the blob directly.
func EncodeInfo(info caps.Info) ([]byte, error) {
	return json.Marshal(info)
}

// DecodeInfo is EncodeInfo's inverse, passed to caps.Cache.RestoreFromPersistent.
func DecodeInfo(blob []byte) (caps.Info, error) {
	var info caps.Info
	err := json.Unmarshal(blob, &info)
	return info, err
}
