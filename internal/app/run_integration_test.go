package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/identity"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, cfg) }()

	resp := waitForHTTP(t, "http://"+cfg.HTTPAddr+"/api/v1/cart")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from cart endpoint, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Device-ID") == "" {
		t.Fatal("expected issued device id header")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_MirrorsCartToRemote(t *testing.T) {
	var calls atomic.Int32
	remoteAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/cart" && r.Header.Get("Authorization") == "Bearer tok" {
			calls.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer remoteAPI.Close()

	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.RemoteBaseURL = remoteAPI.URL
	cfg.OutboxPollInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Run(ctx, cfg) }()

	base := "http://" + cfg.HTTPAddr + "/api/v1"
	waitForHTTP(t, base+"/cart")

	post := func(path, body string) {
		req, _ := http.NewRequest(http.MethodPost, base+path, strings.NewReader(body))
		req.Header.Set("X-Device-ID", "device-run")
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			t.Fatalf("POST %s returned %d", path, resp.StatusCode)
		}
	}
	post("/session/login", `{"token":"tok","user":{"id":1}}`)
	post("/cart/items", `{"product":{"id":7,"name":"Console","price":10},"quantity":1}`)

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one mirrored add, got %d", calls.Load())
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestBuildMirrorPublisher(t *testing.T) {
	logger := log.WithField("test", "publisher")

	tokens := identity.NewTokenStore(memory.NewKeyValueStore())

	publisher, err := buildMirrorPublisher(DefaultConfig(), nil, tokens, logger)
	if err != nil || publisher != nil {
		t.Fatalf("expected no publisher without remote and kafka, got %v, %v", publisher, err)
	}

	cfg := DefaultConfig()
	cfg.RemoteBaseURL = "http://127.0.0.1:1"
	publisher, err = buildMirrorPublisher(cfg, nil, tokens, logger)
	if err != nil || publisher == nil {
		t.Fatalf("expected remote publisher, got %v, %v", publisher, err)
	}

	cfg.RemoteBaseURL = "http://"
	if _, err := buildMirrorPublisher(cfg, nil, tokens, logger); err == nil {
		t.Fatal("expected error for url without host")
	}
}

type recordingPublisher struct {
	calls int
	err   error
}

func (p *recordingPublisher) Publish(context.Context, domain.OutboxMessage) error {
	p.calls++
	return p.err
}

func TestTeePublisher(t *testing.T) {
	primary := &recordingPublisher{}
	secondary := &recordingPublisher{err: errors.New("kafka down")}
	tee := &teePublisher{primary: primary, secondary: secondary, logger: log.WithField("test", "tee")}

	if err := tee.Publish(context.Background(), domain.OutboxMessage{ID: "1"}); err != nil {
		t.Fatalf("secondary failure must not fail publish: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("unexpected calls: primary=%d secondary=%d", primary.calls, secondary.calls)
	}

	primary.err = domain.ErrMirrorRejected
	if err := tee.Publish(context.Background(), domain.OutboxMessage{ID: "2"}); !errors.Is(err, domain.ErrMirrorRejected) {
		t.Fatalf("expected primary error, got %v", err)
	}
	if secondary.calls != 1 {
		t.Fatal("secondary must not be called when primary fails")
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.OutboxDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	logger := log.WithField("test", "postgres-init")
	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.Close(logger)

	checker, ok := deps.checkers["postgres"]
	if !ok {
		t.Fatal("expected postgres checker")
	}
	if check := checker.Check(context.Background()); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy postgres checker, got %+v", check)
	}
}

func waitForHTTP(t *testing.T, url string) *http.Response {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return resp
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s did not become available", url)
	return nil
}
