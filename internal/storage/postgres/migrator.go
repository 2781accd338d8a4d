package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	migrationsDir     = "sql/migrations"
	migrationLockKey  = int64(0x5f0e5e55)
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	embeddedMigrations embed.FS

	migrationNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type direction string

const (
	directionUp   direction = "up"
	directionDown direction = "down"
)

// migrationStep — пара up/down скриптов одной версии.
type migrationStep struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migrationStep) script(dir direction) string {
	if dir == directionDown {
		return m.Down
	}
	return m.Up
}

// MigrationState описывает применённую часть схемы.
type MigrationState struct {
	Version int64
	Applied int
	Pending []string
}

// MigrateUp применяет до steps ещё не применённых миграций; при steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, directionUp, steps)
}

// MigrateDown откатывает steps последних миграций; при steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, directionDown, steps)
}

// MigrationStatus возвращает текущую версию схемы и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	state, err := s.MigrationState(ctx)
	if err != nil {
		return 0, 0, err
	}
	return state.Version, state.Applied, nil
}

// MigrationState дополнительно перечисляет ещё не применённые миграции.
func (s *Store) MigrationState(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errStoreNotInitialized
	}

	steps, err := parseMigrations(embeddedMigrations)
	if err != nil {
		return MigrationState{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, migrationTableDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(queryCtx, s.db)
	if err != nil {
		return MigrationState{}, err
	}

	state := MigrationState{Applied: len(applied)}
	for _, v := range applied {
		if v > state.Version {
			state.Version = v
		}
	}
	for _, step := range pendingSteps(steps, applied) {
		state.Pending = append(state.Pending, fmt.Sprintf("%04d_%s", step.Version, step.Name))
	}
	return state, nil
}

func (s *Store) migrate(ctx context.Context, dir direction, limit int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if dir != directionUp && dir != directionDown {
		return fmt.Errorf("unsupported migration direction: %s", dir)
	}

	steps, err := parseMigrations(embeddedMigrations)
	if err != nil {
		return err
	}

	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
			return fmt.Errorf("ensure migration table: %w", err)
		}
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		plan, err := planSteps(steps, applied, dir, limit)
		if err != nil {
			return err
		}
		for _, step := range plan {
			if err := runStep(ctx, conn, step, dir); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"component": "migrator",
				"version":   step.Version,
				"name":      step.Name,
				"direction": string(dir),
			}).Info("migration applied")
		}
		return nil
	})
}

// withMigrationLock сериализует миграции между процессами через advisory lock.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	return fn(conn)
}

// planSteps выбирает шаги для выполнения в порядке применения.
func planSteps(steps []migrationStep, applied []int64, dir direction, limit int) ([]migrationStep, error) {
	if dir == directionUp {
		plan := pendingSteps(steps, applied)
		if limit > 0 && len(plan) > limit {
			plan = plan[:limit]
		}
		return plan, nil
	}

	byVersion := make(map[int64]migrationStep, len(steps))
	for _, step := range steps {
		byVersion[step.Version] = step
	}

	desc := append([]int64(nil), applied...)
	sort.Slice(desc, func(i, j int) bool { return desc[i] > desc[j] })
	if limit > 0 && len(desc) > limit {
		desc = desc[:limit]
	}

	plan := make([]migrationStep, 0, len(desc))
	for _, v := range desc {
		step, ok := byVersion[v]
		if !ok {
			return nil, fmt.Errorf("cannot rollback unknown migration version %d", v)
		}
		plan = append(plan, step)
	}
	return plan, nil
}

func pendingSteps(steps []migrationStep, applied []int64) []migrationStep {
	done := make(map[int64]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}
	var out []migrationStep
	for _, step := range steps {
		if _, ok := done[step.Version]; !ok {
			out = append(out, step)
		}
	}
	return out
}

// runStep выполняет скрипт и обновляет schema_migrations в одной транзакции.
func runStep(ctx context.Context, conn *sql.Conn, step migrationStep, dir direction) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %d): %w", dir, step.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, step.script(dir)); err != nil {
		return fmt.Errorf("execute %s migration %d_%s: %w", dir, step.Version, step.Name, err)
	}

	if dir == directionUp {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`,
			step.Version, step.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, step.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %d_%s: %w", dir, step.Version, step.Name, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %d_%s: %w", dir, step.Version, step.Name, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func appliedVersions(ctx context.Context, q queryer) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

// parseMigrations читает пары NNNN_name.{up,down}.sql и сортирует их по версии.
func parseMigrations(fsys fs.FS) ([]migrationStep, error) {
	files, err := fs.Glob(fsys, path.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migrationStep)
	for _, file := range files {
		base := path.Base(file)
		m := migrationNamePattern.FindStringSubmatch(base)
		if m == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		step, ok := byVersion[version]
		if !ok {
			step = &migrationStep{Version: version, Name: m[2]}
			byVersion[version] = step
		} else if step.Name != m[2] {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, step.Name, m[2])
		}

		target := &step.Up
		if direction(m[3]) == directionDown {
			target = &step.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", m[3], version)
		}
		*target = body
	}

	steps := make([]migrationStep, 0, len(byVersion))
	for _, step := range byVersion {
		if step.Up == "" || step.Down == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", step.Version, step.Name)
		}
		steps = append(steps, *step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}
