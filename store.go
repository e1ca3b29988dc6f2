package main

import (
	"database/sql"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// QueueEntry is one waiting player in the shared matchmaking queue. The
// record travels between nodes as an opaque msgpack blob; the store keeps
// username and conn id alongside it for dedup and removal.
type QueueEntry struct {
	Username   string `msgpack:"u"`
	Skin       string `msgpack:"s"`
	ConnID     string `msgpack:"c"`
	NodeID     string `msgpack:"n"`
	EnqueuedAt int64  `msgpack:"t"`
}

// Redirect is a pending cross-node message for one connection.
type Redirect struct {
	ConnID  string
	Payload []byte
}

// MatchQueue is the cross-node FIFO the coordinator reconciles against.
type MatchQueue interface {
	Push(e QueueEntry) error
	Entries() ([]QueueEntry, error)
	RemoveConn(connID string) error
	TakeIdentities(usernames []string) ([]string, error)
}

// SessionStore arbitrates which connection owns each account. ClaimSession
// always wins (last login wins); Heartbeat succeeds only while the caller
// still holds the session token.
type SessionStore interface {
	ClaimSession(username, connID string, now time.Time) error
	Heartbeat(username, connID string, now time.Time) (bool, error)
	EndSession(username, connID string) error
}

// RedirectBus fans redirect payloads out to whichever node holds the target
// connection. Delivery is fire-and-forget.
type RedirectBus interface {
	PushRedirect(connID string, payload []byte) error
	DrainRedirects(connIDs []string) ([]Redirect, error)
}

// SharedStore backs the queue, session records and redirect mailbox with a
// single SQLite database shared by all nodes.
type SharedStore struct {
	conn *sql.DB
}

// OpenStore opens (or creates) the shared store database. The pragmas ride
// on the DSN so every pooled connection gets them: a busy_timeout applied to
// only one connection would leave the others failing fast with SQLITE_BUSY
// under concurrent writers.
func OpenStore(path string) (*SharedStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &SharedStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SharedStore) Close() error {
	return s.conn.Close()
}

// migrate creates tables if they don't exist
func (s *SharedStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mm_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		conn_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		enqueued_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		username TEXT PRIMARY KEY,
		online INTEGER NOT NULL DEFAULT 1,
		conn_id TEXT NOT NULL,
		last_seen INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS redirects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conn_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_mm_queue_conn ON mm_queue(conn_id);
	CREATE INDEX IF NOT EXISTS idx_redirects_conn ON redirects(conn_id);
	`
	_, err := s.conn.Exec(schema)
	if err != nil {
		Log.Errorw("store migration failed", "err", err)
	}
	return err
}

// Push appends an entry to the tail of the shared queue.
func (s *SharedStore) Push(e QueueEntry) error {
	payload, err := msgpack.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(
		"INSERT INTO mm_queue (username, conn_id, payload, enqueued_at) VALUES (?, ?, ?, ?)",
		e.Username, e.ConnID, payload, e.EnqueuedAt,
	)
	return err
}

// Entries returns the whole queue in FIFO order. Rows whose payloads no
// longer decode are skipped.
func (s *SharedStore) Entries() ([]QueueEntry, error) {
	rows, err := s.conn.Query("SELECT payload FROM mm_queue ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e QueueEntry
		if err := msgpack.Unmarshal(payload, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveConn deletes the queue entries belonging to one connection.
// Removing an absent connection is a no-op.
func (s *SharedStore) RemoveConn(connID string) error {
	_, err := s.conn.Exec("DELETE FROM mm_queue WHERE conn_id = ?", connID)
	return err
}

// TakeIdentities atomically removes every queue entry for the matched
// identities, stale duplicates included, and reports which identities this
// call actually removed. When two nodes race on the same countdown expiry
// the DELETE is the arbiter: the loser sees the rows already gone and must
// not place those players.
func (s *SharedStore) TakeIdentities(usernames []string) ([]string, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(usernames))
	for i, u := range usernames {
		args[i] = u
	}
	q := "DELETE FROM mm_queue WHERE username IN (?" + strings.Repeat(",?", len(usernames)-1) + ") RETURNING username"
	rows, err := s.conn.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool, len(usernames))
	var taken []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		if !seen[u] {
			seen[u] = true
			taken = append(taken, u)
		}
	}
	return taken, rows.Err()
}

// ClaimSession unconditionally installs connID as the session token for the
// identity. The previous holder needs no say: last login wins.
func (s *SharedStore) ClaimSession(username, connID string, now time.Time) error {
	_, err := s.conn.Exec(`
		INSERT INTO sessions (username, online, conn_id, last_seen) VALUES (?, 1, ?, ?)
		ON CONFLICT(username) DO UPDATE SET online = 1, conn_id = excluded.conn_id, last_seen = excluded.last_seen`,
		username, connID, now.UnixMilli(),
	)
	return err
}

// Heartbeat refreshes last_seen only while connID still holds the session
// token. Returns false when a newer login has taken the account over.
func (s *SharedStore) Heartbeat(username, connID string, now time.Time) (bool, error) {
	res, err := s.conn.Exec(
		"UPDATE sessions SET last_seen = ? WHERE username = ? AND conn_id = ?",
		now.UnixMilli(), username, connID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EndSession marks the identity offline, but only if connID is still the
// token holder. A superseded connection must not knock the new one offline.
func (s *SharedStore) EndSession(username, connID string) error {
	_, err := s.conn.Exec(
		"UPDATE sessions SET online = 0 WHERE username = ? AND conn_id = ?",
		username, connID,
	)
	return err
}

// PushRedirect queues a payload for a connection that may live on another
// node.
func (s *SharedStore) PushRedirect(connID string, payload []byte) error {
	_, err := s.conn.Exec(
		"INSERT INTO redirects (conn_id, payload, created_at) VALUES (?, ?, ?)",
		connID, payload, time.Now().UnixMilli(),
	)
	return err
}

// DrainRedirects removes and returns the pending payloads for the given
// locally attached connections.
func (s *SharedStore) DrainRedirects(connIDs []string) ([]Redirect, error) {
	if len(connIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(connIDs))
	for i, id := range connIDs {
		args[i] = id
	}
	in := "(?" + strings.Repeat(",?", len(connIDs)-1) + ")"

	rows, err := s.conn.Query("SELECT id, conn_id, payload FROM redirects WHERE conn_id IN "+in+" ORDER BY id ASC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Redirect
	var ids []interface{}
	for rows.Next() {
		var id int64
		var r Redirect
		if err := rows.Scan(&id, &r.ConnID, &r.Payload); err != nil {
			return nil, err
		}
		ids = append(ids, id)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		q := "DELETE FROM redirects WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
		if _, err := s.conn.Exec(q, ids...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetSetting returns a settings value, or "" when absent.
func (s *SharedStore) GetSetting(key string) string {
	var v string
	err := s.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil {
		return ""
	}
	return v
}

// SetSetting upserts a settings value.
func (s *SharedStore) SetSetting(key, value string) error {
	_, err := s.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}
