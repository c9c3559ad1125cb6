// Package persistence provides SQLite-based simulation state storage:
// full agent state for resuming runs, plus per-cycle snapshots for
// post-hoc analysis.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/engine"
)

// DB wraps a SQLite connection for simulation state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		name TEXT PRIMARY KEY,
		persona_json TEXT NOT NULL,
		inventory_json TEXT NOT NULL,
		memories_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle INTEGER NOT NULL,
		time_step INTEGER NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		weights_json TEXT NOT NULL,
		matrix_json TEXT NOT NULL,
		interactions_json TEXT NOT NULL,
		trades INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sim_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_cycle ON snapshots(cycle);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveAgents writes all agents to the database (full replace).
func (db *DB) SaveAgents(roster []*agents.Agent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(name, persona_json, inventory_json, memories_json)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range roster {
		personaJSON, err := json.Marshal(a.Persona)
		if err != nil {
			return fmt.Errorf("marshal persona for %s: %w", a.Name, err)
		}
		invJSON, err := json.Marshal(a.Inventory)
		if err != nil {
			return fmt.Errorf("marshal inventory for %s: %w", a.Name, err)
		}
		memJSON, err := json.Marshal(a.Memories)
		if err != nil {
			return fmt.Errorf("marshal memories for %s: %w", a.Name, err)
		}

		if _, err := stmt.Exec(a.Name, string(personaJSON), string(invJSON), string(memJSON)); err != nil {
			return fmt.Errorf("insert agent %s: %w", a.Name, err)
		}
	}

	return tx.Commit()
}

// LoadAgents restores all saved agents.
func (db *DB) LoadAgents() ([]*agents.Agent, error) {
	type row struct {
		Name          string `db:"name"`
		PersonaJSON   string `db:"persona_json"`
		InventoryJSON string `db:"inventory_json"`
		MemoriesJSON  string `db:"memories_json"`
	}

	var rows []row
	if err := db.conn.Select(&rows, "SELECT name, persona_json, inventory_json, memories_json FROM agents ORDER BY name"); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	var roster []*agents.Agent
	for _, r := range rows {
		var persona agents.Persona
		if err := json.Unmarshal([]byte(r.PersonaJSON), &persona); err != nil {
			return nil, fmt.Errorf("unmarshal persona for %s: %w", r.Name, err)
		}

		a := agents.New(r.Name, persona)
		if err := json.Unmarshal([]byte(r.InventoryJSON), a.Inventory); err != nil {
			return nil, fmt.Errorf("unmarshal inventory for %s: %w", r.Name, err)
		}
		if err := json.Unmarshal([]byte(r.MemoriesJSON), a.Memories); err != nil {
			return nil, fmt.Errorf("unmarshal memories for %s: %w", r.Name, err)
		}
		roster = append(roster, a)
	}
	return roster, nil
}

// HasAgents reports whether a saved roster exists.
func (db *DB) HasAgents() (bool, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM agents"); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveSnapshot appends a cycle-boundary snapshot.
func (db *DB) SaveSnapshot(s engine.Snapshot) error {
	weightsJSON, err := json.Marshal(s.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	matrixJSON, err := json.Marshal(s.Matrix)
	if err != nil {
		return fmt.Errorf("marshal matrix: %w", err)
	}
	interactionsJSON, err := json.Marshal(s.Interactions)
	if err != nil {
		return fmt.Errorf("marshal interactions: %w", err)
	}

	_, err = db.conn.Exec(`INSERT INTO snapshots
		(cycle, time_step, weights_json, matrix_json, interactions_json, trades)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Cycle, s.Step, string(weightsJSON), string(matrixJSON), string(interactionsJSON), s.Trades,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// SaveMeta stores a key-value pair in simulation metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sim_meta WHERE key = ?", key)
	return value, err
}

// SaveCheckpoint stores a snapshot plus the full roster. Wired as the
// orchestrator's cycle-boundary callback.
func (db *DB) SaveCheckpoint(s engine.Snapshot, roster []*agents.Agent) error {
	slog.Info("saving checkpoint", "cycle", s.Cycle, "step", s.Step, "agents", len(roster))

	if err := db.SaveSnapshot(s); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := db.SaveAgents(roster); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveMeta("last_step", fmt.Sprintf("%d", s.Step)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}
