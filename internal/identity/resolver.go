// Package identity определяет текущего владельца данных по сессионной записи
// в локальном key-value хранилище.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Resolver читает сессию при каждом вызове, без кеширования: auth-флоу может
// поменять её между двумя операциями.
type Resolver struct {
	kv     domain.KeyValueStore
	logger *log.Entry
}

// NewResolver создаёт Resolver поверх хранилища устройства.
func NewResolver(kv domain.KeyValueStore, logger *log.Entry) *Resolver {
	if logger == nil {
		logger = log.WithField("component", "identity-resolver")
	}
	return &Resolver{kv: kv, logger: logger}
}

type userRecord struct {
	ID    json.RawMessage `json:"id"`
	Email string          `json:"email"`
}

// CurrentIdentity возвращает идентичность пользователя или Guest, если сессии
// нет или она не читается.
func (r *Resolver) CurrentIdentity(ctx context.Context) domain.Identity {
	if _, ok := r.SessionToken(ctx); !ok {
		return domain.Guest
	}

	raw, ok, err := r.kv.Get(ctx, domain.KeyUser)
	if err != nil {
		r.logger.WithError(err).Debug("failed to read user record, falling back to guest")
		return domain.Guest
	}
	if !ok {
		return domain.Guest
	}

	var rec userRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		r.logger.WithError(err).Debug("user record is malformed, falling back to guest")
		return domain.Guest
	}

	if id := parseID(rec.ID); id != "" {
		return domain.Identity(id).Normalize()
	}
	if email := strings.TrimSpace(rec.Email); email != "" {
		return domain.Identity(email).Normalize()
	}
	return domain.Guest
}

// SessionToken возвращает токен, если он присутствует и не пуст.
func (r *Resolver) SessionToken(ctx context.Context) (string, bool) {
	raw, ok, err := r.kv.Get(ctx, domain.KeyToken)
	if err != nil || !ok {
		return "", false
	}
	token := strings.TrimSpace(raw)
	if token == "" {
		return "", false
	}
	return token, true
}

// parseID принимает числовой или строковый id; для остального возвращает пустую строку.
func parseID(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}

	switch id := v.(type) {
	case json.Number:
		return id.String()
	case string:
		return strings.TrimSpace(id)
	default:
		return ""
	}
}

var _ domain.IdentitySource = (*Resolver)(nil)
