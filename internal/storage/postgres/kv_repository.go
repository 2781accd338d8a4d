package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// KVRepository хранит key-value записи в таблице kv_entries.
type KVRepository struct {
	db *sql.DB
}

var _ domain.KeyValueStore = (*KVRepository)(nil)

// NewKVRepository создаёт PostgreSQL-реализацию KeyValueStore.
func NewKVRepository(store *Store) *KVRepository {
	return &KVRepository{db: store.DB()}
}

func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, domain.ErrKeyRequired
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv entry %q: %w", key, err)
	}
	return value, true, nil
}

func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = EXCLUDED.updated_at
	`, key, value); err != nil {
		return fmt.Errorf("set kv entry %q: %w", key, err)
	}
	return nil
}

func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete kv entry %q: %w", key, err)
	}
	return nil
}
