package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Kind classifies a memory record.
type Kind string

const (
	KindPreference Kind = "preference"
	KindFact       Kind = "fact"
	KindTaskNote   Kind = "task-note"
	KindSnippet    Kind = "conversation-snippet"
)

// TaskStatus enumerates the allowed task states.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// IsValid reports whether the status is one of the four enumerated values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// Memory is an immutable long-term record. Once written it is only ever
// read and filtered, never updated.
type Memory struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Role      string            `json:"role,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// MemoryFilter narrows ReadMemories. Zero values mean "no filter".
type MemoryFilter struct {
	Kind  Kind
	Role  string
	Limit int
}

// Preference is a single-valued user setting keyed by name.
type Preference struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Category  string    `json:"category"`
	LearnedAt time.Time `json:"learned_at"`
}

// Task is a unit of work tracked across agents. Identity is fixed at
// creation; status, result, and completion time change in place.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	AssignedRole string     `json:"assigned_role,omitempty"`
	Result       string     `json:"result,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Turn is one conversation message within a session.
type Turn struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentRole string    `json:"agent_role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Store is the shared persistence handle. It is constructed explicitly and
// passed into the runtime; lifecycle is owned by the composer, not by
// lazy singletons.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds store configuration.
type Config struct {
	Path   string
	Logger zerolog.Logger
}

// Open opens (creating if needed) the SQLite database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency across agents sharing the store.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.Path).Msg("Store opened")
	return s, nil
}

// initSchema creates database tables.
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			content TEXT NOT NULL CHECK (content <> ''),
			metadata TEXT NOT NULL DEFAULT '{}',
			role TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
		CREATE INDEX IF NOT EXISTS idx_memories_role ON memories(role);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL CHECK (value <> ''),
			category TEXT NOT NULL,
			learned_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_preferences_category ON preferences(category);

		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			assigned_role TEXT,
			result TEXT,
			created_at INTEGER NOT NULL,
			completed_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			agent_role TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WriteMemory appends a memory record. The ID and creation time are filled
// in when absent. Storage failures propagate; they are never swallowed.
func (s *Store) WriteMemory(ctx context.Context, m Memory) (Memory, error) {
	if m.Content == "" {
		return Memory{}, errors.New("memory content cannot be empty")
	}
	if m.Kind == "" {
		return Memory{}, errors.New("memory kind cannot be empty")
	}

	if m.ID == "" {
		id, err := NewID()
		if err != nil {
			return Memory{}, err
		}
		m.ID = id
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}

	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return Memory{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO memories (id, kind, content, metadata, role, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		m.ID, string(m.Kind), m.Content, string(metadata), m.Role, m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Memory{}, fmt.Errorf("failed to write memory: %w", err)
	}

	s.logger.Debug().
		Str("id", m.ID).
		Str("kind", string(m.Kind)).
		Str("role", m.Role).
		Msg("Memory written")

	return m, nil
}

// ReadMemories returns memories matching the filter, most recent first.
func (s *Store) ReadMemories(ctx context.Context, f MemoryFilter) ([]Memory, error) {
	query := "SELECT id, kind, content, metadata, role, created_at FROM memories"
	var conds []string
	var args []interface{}

	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Role != "" {
		conds = append(conds, "role = ?")
		args = append(args, f.Role)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// SearchMemories performs a substring match over memory content, most
// recent first.
func (s *Store) SearchMemories(ctx context.Context, query string, limit int) ([]Memory, error) {
	if query == "" {
		return []Memory{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, content, metadata, role, created_at
		FROM memories
		WHERE content LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	memories := []Memory{}
	for rows.Next() {
		var m Memory
		var kind, metadata string
		var role sql.NullString
		var createdAt int64

		if err := rows.Scan(&m.ID, &kind, &m.Content, &metadata, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}

		m.Kind = Kind(kind)
		m.Role = role.String
		m.CreatedAt = time.Unix(0, createdAt)
		if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
			m.Metadata = map[string]string{}
		}

		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}
	return memories, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// UpsertPreference writes a preference value; the last write for a key wins.
func (s *Store) UpsertPreference(ctx context.Context, key, value, category string) error {
	if key == "" {
		return errors.New("preference key cannot be empty")
	}
	if value == "" {
		return errors.New("preference value cannot be empty")
	}
	if category == "" {
		category = "general"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, category, learned_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, category = excluded.category, learned_at = excluded.learned_at
	`, key, value, category, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}

	s.logger.Debug().Str("key", key).Str("category", category).Msg("Preference upserted")
	return nil
}

// GetPreference returns the current value for a key, or ErrNotFound.
func (s *Store) GetPreference(ctx context.Context, key string) (*Preference, error) {
	var p Preference
	var learnedAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT key, value, category, learned_at FROM preferences WHERE key = ?", key,
	).Scan(&p.Key, &p.Value, &p.Category, &learnedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}

	p.LearnedAt = time.Unix(0, learnedAt)
	return &p, nil
}

// ListPreferences returns preferences, optionally restricted to a category,
// most recently learned first. Preferences are user-global and never
// role-filtered.
func (s *Store) ListPreferences(ctx context.Context, category string) ([]Preference, error) {
	query := "SELECT key, value, category, learned_at FROM preferences"
	var args []interface{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY learned_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	prefs := []Preference{}
	for rows.Next() {
		var p Preference
		var learnedAt int64
		if err := rows.Scan(&p.Key, &p.Value, &p.Category, &learnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		p.LearnedAt = time.Unix(0, learnedAt)
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preferences: %w", err)
	}
	return prefs, nil
}

// CreateTask creates a new pending task.
func (s *Store) CreateTask(ctx context.Context, description, assignedRole string) (Task, error) {
	if description == "" {
		return Task{}, errors.New("task description cannot be empty")
	}

	id, err := NewID()
	if err != nil {
		return Task{}, err
	}

	t := Task{
		ID:           id,
		Description:  description,
		Status:       TaskPending,
		AssignedRole: assignedRole,
		CreatedAt:    time.Now(),
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO tasks (id, description, status, assigned_role, created_at) VALUES (?, ?, ?, ?, ?)",
		t.ID, t.Description, string(t.Status), t.AssignedRole, t.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Task{}, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Debug().Str("id", t.ID).Str("role", assignedRole).Msg("Task created")
	return t, nil
}

// GetTask returns a task by ID, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, description, status, assigned_role, result, created_at, completed_at FROM tasks WHERE id = ?", id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// UpdateTask overwrites a task's status and result in place. Transitions
// are caller-driven: any status may overwrite any other. Terminal statuses
// set the completion timestamp.
func (s *Store) UpdateTask(ctx context.Context, id string, status TaskStatus, result string) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid task status: %s", status)
	}

	var completedAt interface{}
	if status == TaskCompleted || status == TaskFailed {
		completedAt = time.Now().UnixNano()
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, result = ?, completed_at = ? WHERE id = ?",
		string(status), result, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check task update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug().Str("id", id).Str("status", string(status)).Msg("Task updated")
	return nil
}

// ListTasks returns tasks, optionally filtered by status, most recent first.
func (s *Store) ListTasks(ctx context.Context, status TaskStatus, limit int) ([]Task, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("invalid task status: %s", status)
	}
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, description, status, assigned_role, result, created_at, completed_at FROM tasks"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var status string
	var assignedRole, result sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64

	if err := row.Scan(&t.ID, &t.Description, &status, &assignedRole, &result, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	t.Status = TaskStatus(status)
	t.AssignedRole = assignedRole.String
	t.Result = result.String
	t.CreatedAt = time.Unix(0, createdAt)
	if completedAt.Valid {
		done := time.Unix(0, completedAt.Int64)
		t.CompletedAt = &done
	}
	return &t, nil
}

// AppendTurn appends one conversation turn to a session log.
func (s *Store) AppendTurn(ctx context.Context, t Turn) error {
	if t.SessionID == "" {
		return errors.New("session id cannot be empty")
	}
	if t.Role != "user" && t.Role != "assistant" {
		return fmt.Errorf("invalid turn role: %s", t.Role)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO turns (session_id, role, content, agent_role, created_at) VALUES (?, ?, ?, ?, ?)",
		t.SessionID, t.Role, t.Content, t.AgentRole, t.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	s.logger.Debug().
		Str("session_id", t.SessionID).
		Str("role", t.Role).
		Msg("Turn appended")
	return nil
}

// GetHistory returns the most recent turns of a session in chronological
// order (oldest first), because the history is replayed verbatim into the
// reasoning backend.
func (s *Store) GetHistory(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if sessionID == "" {
		return nil, errors.New("session id cannot be empty")
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, role, content, agent_role, created_at FROM (
			SELECT id, session_id, role, content, agent_role, created_at
			FROM turns
			WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var agentRole sql.NullString
		var createdAt int64
		if err := rows.Scan(&t.SessionID, &t.Role, &t.Content, &agentRole, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.AgentRole = agentRole.String
		t.Timestamp = time.Unix(0, createdAt)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	return turns, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.logger.Info().Msg("Closing store")
	return s.db.Close()
}
