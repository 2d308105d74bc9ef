// Package cache maintains a SQLite index over the JSON snapshot so list and
// filter queries do not re-scan the whole file. The snapshot stays the
// source of truth: the cache is rebuilt from it wholesale after every store
// change and can be deleted at any time.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mindwtr/mindwtr/internal/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	status      TEXT NOT NULL,
	project_id  TEXT,
	section_id  TEXT,
	due_at      TEXT,
	updated_at  TEXT NOT NULL,
	deleted     INTEGER NOT NULL DEFAULT 0,
	tags        TEXT,
	contexts    TEXT,
	body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status  ON tasks(status, deleted);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, deleted);
CREATE INDEX IF NOT EXISTS idx_tasks_due     ON tasks(due_at) WHERE due_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT,
	area_id    TEXT,
	updated_at TEXT NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	body       TEXT NOT NULL
);
`

// Cache is an embedded SQLite index over one snapshot.
type Cache struct {
	conn *sql.DB
	path string
}

// Open creates or opens the cache database, enabling WAL so daemon rebuilds
// do not block CLI reads.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	c := &Cache{conn: conn, path: path}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return c, nil
}

// Close checkpoints the WAL and closes the connection.
func (c *Cache) Close() error {
	if c.conn == nil {
		return nil
	}
	_, _ = c.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Rebuild replaces the whole index with the given snapshot in one
// transaction. Readers see either the old index or the new one.
func (c *Cache) Rebuild(ctx context.Context, data *task.AppData) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("clear projects: %w", err)
	}

	taskStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (id, title, status, project_id, section_id, due_at, updated_at, deleted, tags, contexts, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare task insert: %w", err)
	}
	defer taskStmt.Close()

	for i := range data.Tasks {
		t := &data.Tasks[i]
		body, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode task %s: %w", t.ID, err)
		}
		_, err = taskStmt.ExecContext(ctx,
			t.ID, t.Title, t.Status,
			nullable(t.ProjectID), nullable(t.SectionID), nullable(t.DueDate),
			t.UpdatedAt, boolInt(t.DeletedAt != ""),
			strings.Join(t.Tags, ","), strings.Join(t.Contexts, ","),
			string(body))
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}

	projStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO projects (id, title, status, area_id, updated_at, deleted, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare project insert: %w", err)
	}
	defer projStmt.Close()

	for i := range data.Projects {
		p := &data.Projects[i]
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode project %s: %w", p.ID, err)
		}
		_, err = projStmt.ExecContext(ctx,
			p.ID, p.Title, nullable(p.Status), nullable(p.AreaID),
			p.UpdatedAt, boolInt(p.DeletedAt != ""), string(body))
		if err != nil {
			return fmt.Errorf("insert project %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

// Filter narrows ListTasks. Zero values match everything; deleted tasks are
// excluded unless IncludeDeleted is set.
type Filter struct {
	Status         string
	ProjectID      string
	Tag            string
	Context        string
	DueBefore      string
	IncludeDeleted bool
	Limit          int
}

// ListTasks returns tasks matching the filter ordered by due date then
// recency, decoded from the stored JSON body.
func (c *Cache) ListTasks(ctx context.Context, f Filter) ([]task.Task, error) {
	var where []string
	var args []any
	if !f.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Tag != "" {
		where = append(where, "(',' || tags || ',') LIKE ?")
		args = append(args, "%,"+f.Tag+",%")
	}
	if f.Context != "" {
		where = append(where, "(',' || contexts || ',') LIKE ?")
		args = append(args, "%,"+f.Context+",%")
	}
	if f.DueBefore != "" {
		where = append(where, "due_at IS NOT NULL AND due_at <= ?")
		args = append(args, f.DueBefore)
	}

	query := "SELECT body FROM tasks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_at IS NULL, due_at, updated_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t task.Task
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			return nil, fmt.Errorf("decode cached task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTask returns one task by id, or sql.ErrNoRows wrapped with the id.
func (c *Cache) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var body string
	err := c.conn.QueryRowContext(ctx, "SELECT body FROM tasks WHERE id = ?", id).Scan(&body)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	var t task.Task
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("decode cached task %s: %w", id, err)
	}
	return &t, nil
}

// ListProjects returns non-deleted projects ordered by title.
func (c *Cache) ListProjects(ctx context.Context) ([]task.Project, error) {
	rows, err := c.conn.QueryContext(ctx,
		"SELECT body FROM projects WHERE deleted = 0 ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []task.Project
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p task.Project
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("decode cached project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TaskCount returns the number of live (non-deleted) tasks.
func (c *Cache) TaskCount(ctx context.Context) (int, error) {
	var n int
	err := c.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE deleted = 0").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
