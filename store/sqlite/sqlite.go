/*
Package sqlite provides a SQLite-backed implementation of the persistence
contracts.

PURPOSE:
  Durable storage for single-binary deployments. Implements:
    progression.StatsStore  - one statistics row per user, full-row replace
    progression.UserStore   - identity records from the mini-app host
    rewards.ListStore       - one reward list per user, full-list replace
    tasks.Repository        - task CRUD

FULL-STATE REPLACE:
  The engine's save contract is replace, not patch. SaveStatistics writes
  every column; SaveRewards deletes and reinserts the user's list inside
  one transaction. There are no partial field updates to get out of sync.

NORMALIZATION:
  LoadStatistics is the single place persisted snapshots are repaired
  (missing fields, drifted level column): it calls Snapshot.Normalize on
  the way out. No caller patches snapshots ad hoc.

WAL MODE:
  The database is opened with WAL for better concurrency: readers don't
  block, single writer at a time, better crash recovery.

MIGRATION:
  Schema is auto-migrated on New(). For production, a proper migration
  tool (golang-migrate, goose) with versioned migrations would replace
  this.

SEE ALSO:
  - progression/store.go: Contract definitions
  - store/postgres: The PostgreSQL implementation
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
	"github.com/warp/quest-engine/tasks"
)

// Store implements all persistence contracts using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		avatar_url TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stats (
		user_id          TEXT PRIMARY KEY,
		completed_easy   INTEGER NOT NULL DEFAULT 0,
		completed_medium INTEGER NOT NULL DEFAULT 0,
		completed_hard   INTEGER NOT NULL DEFAULT 0,
		failed_easy      INTEGER NOT NULL DEFAULT 0,
		failed_medium    INTEGER NOT NULL DEFAULT 0,
		failed_hard      INTEGER NOT NULL DEFAULT 0,
		coin_balance     INTEGER NOT NULL DEFAULT 0,
		xp               INTEGER NOT NULL DEFAULT 0,
		level            INTEGER NOT NULL DEFAULT 1,
		lifetime_coins   INTEGER NOT NULL DEFAULT 0,
		lifetime_xp      INTEGER NOT NULL DEFAULT 0,
		purchases        INTEGER NOT NULL DEFAULT 0,
		updated_at       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rewards (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT,
		cost        INTEGER NOT NULL,
		redeemed    INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rewards_user ON rewards(user_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT,
		difficulty  TEXT NOT NULL,
		deadline    TEXT,
		status      TEXT NOT NULL,
		coins       INTEGER NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// progression.StatsStore
// =============================================================================

func (s *Store) LoadStatistics(ctx context.Context, userID progression.UserID) (*progression.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT completed_easy, completed_medium, completed_hard,
		       failed_easy, failed_medium, failed_hard,
		       coin_balance, xp, level, lifetime_coins, lifetime_xp, purchases
		FROM stats WHERE user_id = ?`, string(userID))

	snap := progression.NewSnapshot()
	var ce, cm, ch, fe, fm, fh int
	err := row.Scan(&ce, &cm, &ch, &fe, &fm, &fh,
		&snap.CoinBalance, &snap.XP, &snap.Level,
		&snap.LifetimeCoins, &snap.LifetimeXP, &snap.Purchases)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", progression.ErrStatsNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load statistics: %w", err)
	}

	snap.Completed[progression.DifficultyEasy] = ce
	snap.Completed[progression.DifficultyMedium] = cm
	snap.Completed[progression.DifficultyHard] = ch
	snap.Failed[progression.DifficultyEasy] = fe
	snap.Failed[progression.DifficultyMedium] = fm
	snap.Failed[progression.DifficultyHard] = fh

	snap.Normalize()
	return snap, nil
}

func (s *Store) SaveStatistics(ctx context.Context, userID progression.UserID, snap *progression.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats (
			user_id, completed_easy, completed_medium, completed_hard,
			failed_easy, failed_medium, failed_hard,
			coin_balance, xp, level, lifetime_coins, lifetime_xp, purchases, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			completed_easy = excluded.completed_easy,
			completed_medium = excluded.completed_medium,
			completed_hard = excluded.completed_hard,
			failed_easy = excluded.failed_easy,
			failed_medium = excluded.failed_medium,
			failed_hard = excluded.failed_hard,
			coin_balance = excluded.coin_balance,
			xp = excluded.xp,
			level = excluded.level,
			lifetime_coins = excluded.lifetime_coins,
			lifetime_xp = excluded.lifetime_xp,
			purchases = excluded.purchases,
			updated_at = excluded.updated_at`,
		string(userID),
		snap.Completed[progression.DifficultyEasy],
		snap.Completed[progression.DifficultyMedium],
		snap.Completed[progression.DifficultyHard],
		snap.Failed[progression.DifficultyEasy],
		snap.Failed[progression.DifficultyMedium],
		snap.Failed[progression.DifficultyHard],
		snap.CoinBalance, snap.XP, snap.Level,
		snap.LifetimeCoins, snap.LifetimeXP, snap.Purchases,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save statistics: %w", err)
	}
	return nil
}

// =============================================================================
// progression.UserStore
// =============================================================================

func (s *Store) UpsertUser(ctx context.Context, user progression.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, avatar_url, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			avatar_url = excluded.avatar_url`,
		string(user.ID), user.Username, user.AvatarURL,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID progression.UserID) (*progression.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, COALESCE(avatar_url, ''), created_at
		FROM users WHERE user_id = ?`, string(userID))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", progression.ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]progression.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, username, COALESCE(avatar_url, ''), created_at
		FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []progression.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*progression.User, error) {
	var u progression.User
	var id, createdAt string
	if err := row.Scan(&id, &u.Username, &u.AvatarURL, &createdAt); err != nil {
		return nil, err
	}
	u.ID = progression.UserID(id)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// =============================================================================
// rewards.ListStore
// =============================================================================

func (s *Store) LoadRewards(ctx context.Context, userID progression.UserID) ([]rewards.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// rowid preserves insertion order, which is the catalog's display order.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(description, ''), cost, redeemed, created_at
		FROM rewards WHERE user_id = ? ORDER BY rowid`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("load rewards: %w", err)
	}
	defer rows.Close()

	var out []rewards.Reward
	for rows.Next() {
		var r rewards.Reward
		var redeemed int
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.Cost, &redeemed, &createdAt); err != nil {
			return nil, fmt.Errorf("load rewards: %w", err)
		}
		r.Redeemed = redeemed != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveRewards(ctx context.Context, userID progression.UserID, list []rewards.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save rewards: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rewards WHERE user_id = ?`, string(userID)); err != nil {
		return fmt.Errorf("save rewards: %w", err)
	}
	for _, r := range list {
		redeemed := 0
		if r.Redeemed {
			redeemed = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rewards (id, user_id, title, description, cost, redeemed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, string(userID), r.Title, r.Description, r.Cost, redeemed,
			r.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("save rewards: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// tasks.Repository
// =============================================================================

func (s *Store) SaveTask(ctx context.Context, t tasks.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, title, description, difficulty, deadline, status, coins, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.UserID), t.Title, t.Description, string(t.Difficulty),
		deadlineString(t.Deadline), string(t.Status), t.Coins,
		t.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t tasks.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, difficulty = ?, deadline = ?, status = ?, coins = ?
		WHERE id = ? AND user_id = ?`,
		t.Title, t.Description, string(t.Difficulty), deadlineString(t.Deadline),
		string(t.Status), t.Coins, t.ID, string(t.UserID))
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, t.ID)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, userID progression.UserID, taskID string) (*tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, COALESCE(description, ''), difficulty, deadline, status, coins, created_at
		FROM tasks WHERE id = ? AND user_id = ?`, taskID, string(userID))
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, userID progression.UserID) ([]tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, COALESCE(description, ''), difficulty, deadline, status, coins, created_at
		FROM tasks WHERE user_id = ? ORDER BY rowid`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTask(ctx context.Context, userID progression.UserID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`,
		taskID, string(userID))
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, taskID)
	}
	return nil
}

func scanTask(row rowScanner) (*tasks.Task, error) {
	var t tasks.Task
	var userID, difficulty, status, createdAt string
	var deadline sql.NullString
	if err := row.Scan(&t.ID, &userID, &t.Title, &t.Description, &difficulty,
		&deadline, &status, &t.Coins, &createdAt); err != nil {
		return nil, err
	}
	t.UserID = progression.UserID(userID)
	t.Difficulty = progression.Difficulty(difficulty)
	t.Status = tasks.Status(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if deadline.Valid && deadline.String != "" {
		if d, err := time.Parse(time.RFC3339, deadline.String); err == nil {
			t.Deadline = &d
		}
	}
	return &t, nil
}

func deadlineString(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.UTC().Format(time.RFC3339)
}
