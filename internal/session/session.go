// Package session собирает три клиентских хранилища устройства (корзина,
// сравнение, просмотренные) поверх одного изолированного пространства ключей
// и управляет переходами guest -> user -> guest.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/identity"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/compare"
	"github.com/vladislavdragonenkov/storefront/internal/service/recentlyviewed"
	"github.com/vladislavdragonenkov/storefront/internal/storage/namespace"
)

const maxDeviceIDLen = 128

// Deps — общие зависимости всех сессий процесса.
type Deps struct {
	KV      domain.KeyValueStore
	Mirror  domain.MirrorQueue
	Metrics *metrics.SessionMetrics
	Clock   domain.Clock
	Logger  *log.Entry
}

// User — запись пользователя, которую сохраняет вход. id может быть числом
// или строкой.
type User struct {
	ID    json.RawMessage `json:"id,omitempty"`
	Email string          `json:"email,omitempty"`
}

func (u User) valid() bool {
	id := strings.TrimSpace(string(u.ID))
	return (id != "" && id != "null" && id != `""`) || strings.TrimSpace(u.Email) != ""
}

// Session — состояние одного устройства.
type Session struct {
	mu       sync.Mutex
	deviceID string
	kv       domain.KeyValueStore
	resolver *identity.Resolver
	tokens   *identity.TokenStore
	logger   *log.Entry

	Cart           *cart.Store
	Compare        *compare.Store
	RecentlyViewed *recentlyviewed.Store
}

// New создаёт сессию устройства и загружает все три хранилища.
func New(ctx context.Context, deviceID string, deps Deps) (*Session, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	if deps.KV == nil {
		return nil, fmt.Errorf("session: key-value store is nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "session")
	}
	logger = logger.WithField("device_id", deviceID)

	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}

	kv := namespace.ForDevice(deps.KV, deviceID)
	resolver := identity.NewResolver(kv, logger.WithField("component", "identity-resolver"))

	cartOpts := []cart.Option{
		cart.WithLogger(logger.WithField("component", "cart-store")),
		cart.WithMetrics(deps.Metrics),
	}
	if deps.Mirror != nil {
		cartOpts = append(cartOpts, cart.WithMirrorQueue(deps.Mirror))
	}

	s := &Session{
		deviceID:       deviceID,
		kv:             kv,
		resolver:       resolver,
		tokens:         identity.NewTokenStore(deps.KV),
		logger:         logger,
		Cart:           cart.New(kv, resolver, cartOpts...),
		Compare:        compare.New(kv, logger.WithField("component", "compare-store"), deps.Metrics),
		RecentlyViewed: recentlyviewed.New(kv, clock, logger.WithField("component", "recently-viewed-store"), deps.Metrics),
	}

	s.Cart.Load(ctx)
	s.Compare.Load(ctx)
	s.RecentlyViewed.Load(ctx)
	return s, nil
}

// DeviceID возвращает идентификатор устройства.
func (s *Session) DeviceID() string { return s.deviceID }

// Identity возвращает текущую идентичность устройства.
func (s *Session) Identity(ctx context.Context) domain.Identity {
	return s.resolver.CurrentIdentity(ctx)
}

// Login сохраняет сессионные ключи и токен синхронизации, загружает корзину
// пользователя и вливает в неё гостевую. Сравнение и история просмотров
// принадлежат устройству и при входе не меняются.
func (s *Session) Login(ctx context.Context, token string, user User) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrSessionTokenRequired
	}
	if !user.valid() {
		return domain.ErrUserRecordInvalid
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(ctx, domain.KeyUser, string(raw)); err != nil {
		return fmt.Errorf("save user record: %w", err)
	}
	if err := s.kv.Set(ctx, domain.KeyToken, token); err != nil {
		_ = s.kv.Delete(ctx, domain.KeyUser)
		return fmt.Errorf("save session token: %w", err)
	}

	id := s.resolver.CurrentIdentity(ctx)
	if err := s.tokens.Put(ctx, id, token); err != nil {
		s.logger.WithError(err).Warn("failed to save mirror token, cart events will not be delivered")
	}

	s.Cart.Load(ctx)
	s.Cart.MergeGuestIntoIdentity(ctx)

	s.logger.WithField("identity", id.String()).Info("session logged in")
	return nil
}

// Logout удаляет сессионные ключи и токен синхронизации и возвращает
// устройство к гостевой корзине. Корзина пользователя остаётся в хранилище
// до следующего входа; недоставленные события уйдут в DLQ.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.resolver.CurrentIdentity(ctx)
	token, _ := s.resolver.SessionToken(ctx)

	if err := s.kv.Delete(ctx, domain.KeyToken); err != nil {
		return fmt.Errorf("delete session token: %w", err)
	}
	if err := s.kv.Delete(ctx, domain.KeyUser); err != nil {
		s.logger.WithError(err).Warn("failed to delete user record")
	}
	if err := s.tokens.Remove(ctx, id, token); err != nil {
		s.logger.WithError(err).Warn("failed to delete mirror token")
	}

	s.Cart.Load(ctx)
	s.logger.Info("session logged out")
	return nil
}

// ValidateDeviceID разрешает буквы, цифры, '-' и '_'; двоеточие запрещено,
// так как оно разделяет префикс пространства ключей.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" || len(deviceID) > maxDeviceIDLen {
		return domain.ErrDeviceIDRequired
	}
	for _, r := range deviceID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("invalid character %q: %w", r, domain.ErrDeviceIDRequired)
		}
	}
	return nil
}
