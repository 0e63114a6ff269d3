package botstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"botswarm.ai/internal/protocol"
)

// SQLite backs the store with a single-connection database. Position and
// inventory are stored as JSON columns; the engine does not query inside them.
type SQLite struct {
	db  *sql.DB
	log *log.Logger

	mu  sync.Mutex
	seq int
}

func OpenSQLite(path string, logger *log.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS bots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		position TEXT,
		health REAL NOT NULL,
		food REAL NOT NULL,
		inventory TEXT NOT NULL,
		uptime_seconds INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		last_connected_at TEXT
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db, log: logger}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *SQLite) Get(id string) (Record, bool) {
	row := s.db.QueryRow(`SELECT id, name, status, position, health, food, inventory,
		uptime_seconds, created_at, last_connected_at FROM bots WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logf("botstore get %s: %v", id, err)
		}
		return Record{}, false
	}
	return r, true
}

func (s *SQLite) All() []Record {
	rows, err := s.db.Query(`SELECT id, name, status, position, health, food, inventory,
		uptime_seconds, created_at, last_connected_at FROM bots ORDER BY created_at`)
	if err != nil {
		s.logf("botstore all: %v", err)
		return nil
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			s.logf("botstore scan: %v", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *SQLite) Create(name string) (Record, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	r := Record{
		ID:        fmt.Sprintf("bot_%d_%d", time.Now().UnixMilli(), seq),
		Name:      name,
		Status:    protocol.StatusOffline,
		Health:    20,
		Food:      20,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO bots (id, name, status, position, health, food, inventory,
		uptime_seconds, created_at, last_connected_at)
		VALUES (?, ?, ?, NULL, ?, ?, '[]', 0, ?, NULL)`,
		r.ID, r.Name, string(r.Status), r.Health, r.Food, r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, fmt.Errorf("insert bot: %w", err)
	}
	return r, nil
}

func (s *SQLite) Update(id string, p Patch) (Record, bool) {
	// Read-modify-write; all writers for one bot are serialized by its
	// session, so this does not need a transaction.
	r, ok := s.Get(id)
	if !ok {
		return Record{}, false
	}
	r.apply(p)

	posJSON := sql.NullString{}
	if r.Position != nil {
		b, _ := json.Marshal(r.Position)
		posJSON = sql.NullString{String: string(b), Valid: true}
	}
	inv := []byte("[]")
	if r.Inventory != nil {
		inv, _ = json.Marshal(r.Inventory)
	}
	lastConn := sql.NullString{}
	if !r.LastConnectedAt.IsZero() {
		lastConn = sql.NullString{String: r.LastConnectedAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.Exec(`UPDATE bots SET name=?, status=?, position=?, health=?, food=?,
		inventory=?, uptime_seconds=?, last_connected_at=? WHERE id=?`,
		r.Name, string(r.Status), posJSON, r.Health, r.Food, string(inv),
		r.UptimeSeconds, lastConn, id)
	if err != nil {
		s.logf("botstore update %s: %v", id, err)
		return Record{}, false
	}
	return r, true
}

func (s *SQLite) Delete(id string) bool {
	res, err := s.db.Exec(`DELETE FROM bots WHERE id=?`, id)
	if err != nil {
		s.logf("botstore delete %s: %v", id, err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	var status string
	var posJSON, lastConn sql.NullString
	var invJSON, createdAt string
	if err := row.Scan(&r.ID, &r.Name, &status, &posJSON, &r.Health, &r.Food,
		&invJSON, &r.UptimeSeconds, &createdAt, &lastConn); err != nil {
		return Record{}, err
	}
	r.Status = protocol.BotStatus(status)
	if posJSON.Valid {
		var pos protocol.Vec3
		if err := json.Unmarshal([]byte(posJSON.String), &pos); err == nil {
			r.Position = &pos
		}
	}
	if err := json.Unmarshal([]byte(invJSON), &r.Inventory); err != nil {
		r.Inventory = nil
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}
	if lastConn.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastConn.String); err == nil {
			r.LastConnectedAt = t
		}
	}
	return r, nil
}
