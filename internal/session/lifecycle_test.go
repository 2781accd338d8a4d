package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/identity"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/remote"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type mirroredAdd struct {
	Auth      string
	ProductID int64
	Qty       int
}

// SessionLifecycleTestSuite проверяет путь гость -> вход -> синхронизация корзины.
type SessionLifecycleTestSuite struct {
	suite.Suite
	server   *httptest.Server
	mu       sync.Mutex
	received []mirroredAdd
	status   int

	kv       domain.KeyValueStore
	queue    domain.OutboxRepository
	worker   *outbox.Worker
	registry *Registry
}

func (suite *SessionLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "lifecycle-test")

	suite.received = nil
	suite.status = http.StatusOK
	suite.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ProductID int64 `json:"productId"`
			Qty       int   `json:"qty"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		suite.mu.Lock()
		suite.received = append(suite.received, mirroredAdd{Auth: r.Header.Get("Authorization"), ProductID: body.ProductID, Qty: body.Qty})
		status := suite.status
		suite.mu.Unlock()

		w.WriteHeader(status)
	}))

	client, err := remote.NewClient(suite.server.URL, time.Second)
	suite.Require().NoError(err)

	suite.kv = memory.NewKeyValueStore()
	suite.queue = memory.NewOutboxRepository()
	suite.worker = outbox.NewWorker(suite.queue, remote.NewPublisher(client, identity.NewTokenStore(suite.kv)),
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
		outbox.WithMaxAttempts(2),
		outbox.WithRetryBaseDelay(time.Millisecond),
	)

	suite.registry, err = NewRegistry(16, Deps{
		KV:      suite.kv,
		Mirror:  suite.queue,
		Metrics: metrics.NewSessionMetricsWithRegisterer(prometheus.NewRegistry()),
		Logger:  logger,
	})
	suite.Require().NoError(err)
}

func (suite *SessionLifecycleTestSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *SessionLifecycleTestSuite) snapshot() []mirroredAdd {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	return append([]mirroredAdd(nil), suite.received...)
}

func (suite *SessionLifecycleTestSuite) TestGuestAddThenLoginMirrorsMergedItems() {
	ctx := context.Background()

	s, err := suite.registry.Get(ctx, "device-1")
	suite.Require().NoError(err)

	// 1. Гость добавляет товар: в очередь ничего не уходит
	suite.Require().NoError(s.Cart.AddProduct(ctx, domain.Product{ID: 7, Name: "Console", Price: 1000}, 2))
	pending, err := suite.queue.PullPending(10)
	suite.Require().NoError(err)
	suite.Require().Empty(pending)

	// 2. Вход: гостевая корзина вливается, её позиции ставятся в очередь
	suite.Require().NoError(s.Login(ctx, "secret", User{ID: json.RawMessage(`1`)}))
	suite.Require().Equal(2, s.Cart.TotalQuantity())

	// 3. Пользователь добавляет ещё товар
	suite.Require().NoError(s.Cart.AddProduct(ctx, domain.Product{ID: 9, Name: "Gamepad", Price: 59.99}, 1))

	result := suite.worker.ProcessOnce(ctx)
	suite.Require().Equal(2, result.Sent)
	suite.Require().Zero(result.Failed)

	got := suite.snapshot()
	suite.Require().Equal([]mirroredAdd{
		{Auth: "Bearer secret", ProductID: 7, Qty: 2},
		{Auth: "Bearer secret", ProductID: 9, Qty: 1},
	}, got)
	suite.Require().Equal("2059.99", s.Cart.Subtotal().StringFixed(2))
}

func (suite *SessionLifecycleTestSuite) TestRemoteRejectionDoesNotTouchLocalCart() {
	ctx := context.Background()
	suite.mu.Lock()
	suite.status = http.StatusUnprocessableEntity
	suite.mu.Unlock()

	s, err := suite.registry.Get(ctx, "device-2")
	suite.Require().NoError(err)
	suite.Require().NoError(s.Login(ctx, "secret", User{Email: "buyer@example.com"}))
	suite.Require().NoError(s.Cart.AddProduct(ctx, domain.Product{ID: 3, Name: "Headset", Price: 80}, 1))

	result := suite.worker.ProcessOnce(ctx)
	suite.Require().Zero(result.Sent)
	suite.Require().Equal(1, result.Failed)

	// 4xx не повторяется
	suite.Require().Len(suite.snapshot(), 1)
	suite.Require().Equal(1, s.Cart.Count())
}

func (suite *SessionLifecycleTestSuite) TestLogoutStopsMirroring() {
	ctx := context.Background()

	s, err := suite.registry.Get(ctx, "device-3")
	suite.Require().NoError(err)
	suite.Require().NoError(s.Login(ctx, "secret", User{ID: json.RawMessage(`"u3"`)}))
	suite.Require().NoError(s.Logout(ctx))
	suite.Require().NoError(s.Cart.AddProduct(ctx, domain.Product{ID: 4, Name: "Cable"}, 1))

	pending, err := suite.queue.PullPending(10)
	suite.Require().NoError(err)
	suite.Require().Empty(pending)
}

func (suite *SessionLifecycleTestSuite) TestQueuedEventsCarryNoToken() {
	ctx := context.Background()
	const bearer = "secret-bearer"

	s, err := suite.registry.Get(ctx, "device-4")
	suite.Require().NoError(err)
	suite.Require().NoError(s.Login(ctx, bearer, User{ID: json.RawMessage(`"u4"`)}))
	suite.Require().NoError(s.Cart.AddProduct(ctx, domain.Product{ID: 7, Name: "Console", Price: 10}, 2))

	pending, err := suite.queue.PullPending(10)
	suite.Require().NoError(err)
	suite.Require().Len(pending, 1)
	msg := pending[0]
	suite.Require().NotContains(string(msg.Payload), bearer)

	envelope, err := json.Marshal(kafka.NewEnvelope(msg, time.Now()))
	suite.Require().NoError(err)
	suite.Require().NotContains(string(envelope), bearer)

	deadLetter, err := json.Marshal(domain.NewDeadLetter(msg, domain.ErrMirrorRejected, 3, time.Now()))
	suite.Require().NoError(err)
	suite.Require().NotContains(string(deadLetter), bearer)

	// Токен подставляется только в запрос к удалённому API.
	result := suite.worker.ProcessOnce(ctx)
	suite.Require().Equal(1, result.Sent)
	suite.Require().Equal([]mirroredAdd{{Auth: "Bearer " + bearer, ProductID: 7, Qty: 2}}, suite.snapshot())
}

func (suite *SessionLifecycleTestSuite) TestLogoutRevokesTokenForPendingEvents() {
	ctx := context.Background()

	s, err := suite.registry.Get(ctx, "device-5")
	suite.Require().NoError(err)
	suite.Require().NoError(s.Login(ctx, "secret", User{ID: json.RawMessage(`"u5"`)}))
	suite.Require().NoError(s.Cart.AddProduct(ctx, domain.Product{ID: 2, Name: "Mouse", Price: 20}, 1))
	suite.Require().NoError(s.Logout(ctx))

	_, ok, err := identity.NewTokenStore(suite.kv).Token(ctx, "u5")
	suite.Require().NoError(err)
	suite.Require().False(ok)

	result := suite.worker.ProcessOnce(ctx)
	suite.Require().Zero(result.Sent)
	suite.Require().Equal(1, result.Failed)
	suite.Require().Empty(suite.snapshot())
}

func (suite *SessionLifecycleTestSuite) TestLogoutKeepsNewerLoginToken() {
	ctx := context.Background()

	phone, err := suite.registry.Get(ctx, "device-6")
	suite.Require().NoError(err)
	laptop, err := suite.registry.Get(ctx, "device-7")
	suite.Require().NoError(err)

	suite.Require().NoError(phone.Login(ctx, "old", User{ID: json.RawMessage(`"u6"`)}))
	suite.Require().NoError(laptop.Login(ctx, "new", User{ID: json.RawMessage(`"u6"`)}))
	suite.Require().NoError(phone.Logout(ctx))

	token, ok, err := identity.NewTokenStore(suite.kv).Token(ctx, "u6")
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Require().Equal("new", token)
}

func TestSessionLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(SessionLifecycleTestSuite))
}

func TestSessionLifecycle_RegistryServesStoredStateAfterRestart(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValueStore()

	first, err := NewRegistry(4, Deps{KV: kv})
	require.NoError(t, err)
	s, err := first.Get(ctx, "device-9")
	require.NoError(t, err)
	require.NoError(t, s.Compare.Add(ctx, domain.Product{ID: 1, Name: "A"}))
	require.NoError(t, s.RecentlyViewed.RecordView(ctx, domain.Product{ID: 2, Name: "B"}))

	second, err := NewRegistry(4, Deps{KV: kv})
	require.NoError(t, err)
	restored, err := second.Get(ctx, "device-9")
	require.NoError(t, err)
	require.True(t, restored.Compare.Contains(1))
	require.Equal(t, int64(2), restored.RecentlyViewed.List()[0].ProductID)
}
