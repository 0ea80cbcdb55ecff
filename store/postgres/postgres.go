/*
Package postgres provides a PostgreSQL-backed implementation of the
persistence contracts via sqlx.

PURPOSE:
  Durable storage for multi-instance or hosted deployments. Implements
  the same four contracts as store/sqlite:
    progression.StatsStore
    progression.UserStore
    rewards.ListStore
    tasks.Repository

  The save semantics are identical to the SQLite store: full-row replace
  for statistics, delete-and-reinsert inside one transaction for reward
  lists. LoadStatistics normalizes snapshots on the way out.

MIGRATION:
  Schema is auto-migrated on New(). Versioned migrations would replace
  this for a real multi-instance rollout.

SEE ALSO:
  - store/sqlite: The single-binary implementation
  - progression/store.go: Contract definitions
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
	"github.com/warp/quest-engine/tasks"
)

// Store implements all persistence contracts using PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New connects to PostgreSQL using the given DSN and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS rewards (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		position    INTEGER NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		cost        INTEGER NOT NULL,
		redeemed    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rewards_user ON rewards(user_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		difficulty  TEXT NOT NULL,
		deadline    TIMESTAMPTZ,
		status      TEXT NOT NULL,
		coins       INTEGER NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// statsRow maps the stats table for sqlx scanning.
type statsRow struct {
	CompletedEasy   int `db:"completed_easy"`
	CompletedMedium int `db:"completed_medium"`
	CompletedHard   int `db:"completed_hard"`
	FailedEasy      int `db:"failed_easy"`
	FailedMedium    int `db:"failed_medium"`
	FailedHard      int `db:"failed_hard"`
	CoinBalance     int `db:"coin_balance"`
	XP              int `db:"xp"`
	Level           int `db:"level"`
	LifetimeCoins   int `db:"lifetime_coins"`
	LifetimeXP      int `db:"lifetime_xp"`
	Purchases       int `db:"purchases"`
}

// =============================================================================
// progression.StatsStore
// =============================================================================

func (s *Store) LoadStatistics(ctx context.Context, userID progression.UserID) (*progression.Snapshot, error) {
	var row statsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT completed_easy, completed_medium, completed_hard,
		       failed_easy, failed_medium, failed_hard,
		       coin_balance, xp, level, lifetime_coins, lifetime_xp, purchases
		FROM stats WHERE user_id = $1`, string(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", progression.ErrStatsNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load statistics: %w", err)
	}

	snap := progression.NewSnapshot()
	snap.Completed[progression.DifficultyEasy] = row.CompletedEasy
	snap.Completed[progression.DifficultyMedium] = row.CompletedMedium
	snap.Completed[progression.DifficultyHard] = row.CompletedHard
	snap.Failed[progression.DifficultyEasy] = row.FailedEasy
	snap.Failed[progression.DifficultyMedium] = row.FailedMedium
	snap.Failed[progression.DifficultyHard] = row.FailedHard
	snap.CoinBalance = row.CoinBalance
	snap.XP = row.XP
	snap.Level = row.Level
	snap.LifetimeCoins = row.LifetimeCoins
	snap.LifetimeXP = row.LifetimeXP
	snap.Purchases = row.Purchases

	snap.Normalize()
	return snap, nil
}

func (s *Store) SaveStatistics(ctx context.Context, userID progression.UserID, snap *progression.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats (
			user_id, completed_easy, completed_medium, completed_hard,
			failed_easy, failed_medium, failed_hard,
			coin_balance, xp, level, lifetime_coins, lifetime_xp, purchases, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			completed_easy = EXCLUDED.completed_easy,
			completed_medium = EXCLUDED.completed_medium,
			completed_hard = EXCLUDED.completed_hard,
			failed_easy = EXCLUDED.failed_easy,
			failed_medium = EXCLUDED.failed_medium,
			failed_hard = EXCLUDED.failed_hard,
			coin_balance = EXCLUDED.coin_balance,
			xp = EXCLUDED.xp,
			level = EXCLUDED.level,
			lifetime_coins = EXCLUDED.lifetime_coins,
			lifetime_xp = EXCLUDED.lifetime_xp,
			purchases = EXCLUDED.purchases,
			updated_at = NOW()`,
		string(userID),
		snap.Completed[progression.DifficultyEasy],
		snap.Completed[progression.DifficultyMedium],
		snap.Completed[progression.DifficultyHard],
		snap.Failed[progression.DifficultyEasy],
		snap.Failed[progression.DifficultyMedium],
		snap.Failed[progression.DifficultyHard],
		snap.CoinBalance, snap.XP, snap.Level,
		snap.LifetimeCoins, snap.LifetimeXP, snap.Purchases,
	)
	if err != nil {
		return fmt.Errorf("save statistics: %w", err)
	}
	return nil
}

// =============================================================================
// progression.UserStore
// =============================================================================

type userRow struct {
	ID        string    `db:"user_id"`
	Username  string    `db:"username"`
	AvatarURL string    `db:"avatar_url"`
	CreatedAt time.Time `db:"created_at"`
}

func (r userRow) toUser() progression.User {
	return progression.User{
		ID:        progression.UserID(r.ID),
		Username:  r.Username,
		AvatarURL: r.AvatarURL,
		CreatedAt: r.CreatedAt,
	}
}

func (s *Store) UpsertUser(ctx context.Context, user progression.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			avatar_url = EXCLUDED.avatar_url`,
		string(user.ID), user.Username, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID progression.UserID) (*progression.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, username, avatar_url, created_at
		FROM users WHERE user_id = $1`, string(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", progression.ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u := row.toUser()
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]progression.User, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, username, avatar_url, created_at
		FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]progression.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toUser())
	}
	return out, nil
}

// =============================================================================
// rewards.ListStore
// =============================================================================

type rewardRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Cost        int       `db:"cost"`
	Redeemed    bool      `db:"redeemed"`
	CreatedAt   time.Time `db:"created_at"`
}

func (s *Store) LoadRewards(ctx context.Context, userID progression.UserID) ([]rewards.Reward, error) {
	var rows []rewardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, title, description, cost, redeemed, created_at
		FROM rewards WHERE user_id = $1 ORDER BY position`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("load rewards: %w", err)
	}
	var out []rewards.Reward
	for _, r := range rows {
		out = append(out, rewards.Reward{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Cost:        r.Cost,
			Redeemed:    r.Redeemed,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) SaveRewards(ctx context.Context, userID progression.UserID, list []rewards.Reward) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save rewards: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rewards WHERE user_id = $1`, string(userID)); err != nil {
		return fmt.Errorf("save rewards: %w", err)
	}
	for i, r := range list {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rewards (id, user_id, position, title, description, cost, redeemed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, string(userID), i, r.Title, r.Description, r.Cost, r.Redeemed, r.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("save rewards: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// tasks.Repository
// =============================================================================

type taskRow struct {
	ID          string     `db:"id"`
	UserID      string     `db:"user_id"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	Difficulty  string     `db:"difficulty"`
	Deadline    *time.Time `db:"deadline"`
	Status      string     `db:"status"`
	Coins       int        `db:"coins"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (r taskRow) toTask() tasks.Task {
	return tasks.Task{
		ID:          r.ID,
		UserID:      progression.UserID(r.UserID),
		Title:       r.Title,
		Description: r.Description,
		Difficulty:  progression.Difficulty(r.Difficulty),
		Deadline:    r.Deadline,
		Status:      tasks.Status(r.Status),
		Coins:       r.Coins,
		CreatedAt:   r.CreatedAt,
	}
}

func (s *Store) SaveTask(ctx context.Context, t tasks.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, title, description, difficulty, deadline, status, coins, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, string(t.UserID), t.Title, t.Description, string(t.Difficulty),
		t.Deadline, string(t.Status), t.Coins, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t tasks.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = $1, description = $2, difficulty = $3, deadline = $4, status = $5, coins = $6
		WHERE id = $7 AND user_id = $8`,
		t.Title, t.Description, string(t.Difficulty), t.Deadline,
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
	var row taskRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, title, description, difficulty, deadline, status, coins, created_at
		FROM tasks WHERE id = $1 AND user_id = $2`, taskID, string(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	t := row.toTask()
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, userID progression.UserID) ([]tasks.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, title, description, difficulty, deadline, status, coins, created_at
		FROM tasks WHERE user_id = $1 ORDER BY created_at, id`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]tasks.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTask())
	}
	return out, nil
}

func (s *Store) DeleteTask(ctx context.Context, userID progression.UserID, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
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
