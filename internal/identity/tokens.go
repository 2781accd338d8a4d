package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/namespace"
)

// TokenStore хранит последний токен входа каждой идентичности. Worker берёт
// токен отсюда в момент доставки, поэтому события очереди токена не содержат.
type TokenStore struct {
	kv domain.KeyValueStore
}

// NewTokenStore создаёт TokenStore поверх общего хранилища процесса.
func NewTokenStore(kv domain.KeyValueStore) *TokenStore {
	return &TokenStore{kv: namespace.New(kv, domain.MirrorTokenPrefix)}
}

// Put запоминает токен идентичности; гостю токен не положен.
func (s *TokenStore) Put(ctx context.Context, id domain.Identity, token string) error {
	id = id.Normalize()
	token = strings.TrimSpace(token)
	if id.IsGuest() || token == "" {
		return nil
	}
	if err := s.kv.Set(ctx, id.String(), token); err != nil {
		return fmt.Errorf("save mirror token: %w", err)
	}
	return nil
}

// Remove удаляет токен, только если он совпадает с token: выход на одном
// устройстве не гасит синхронизацию сессии, вошедшей позже на другом.
func (s *TokenStore) Remove(ctx context.Context, id domain.Identity, token string) error {
	current, ok, err := s.Token(ctx, id)
	if err != nil {
		return err
	}
	if !ok || current != strings.TrimSpace(token) {
		return nil
	}
	if err := s.kv.Delete(ctx, id.Normalize().String()); err != nil {
		return fmt.Errorf("delete mirror token: %w", err)
	}
	return nil
}

// Token возвращает токен идентичности, если он есть.
func (s *TokenStore) Token(ctx context.Context, id domain.Identity) (string, bool, error) {
	id = id.Normalize()
	if id.IsGuest() {
		return "", false, nil
	}
	raw, ok, err := s.kv.Get(ctx, id.String())
	if err != nil {
		return "", false, fmt.Errorf("read mirror token: %w", err)
	}
	token := strings.TrimSpace(raw)
	if !ok || token == "" {
		return "", false, nil
	}
	return token, true, nil
}
