// Package remote общается с REST API магазина, где живёт серверная копия
// корзины аутентифицированного покупателя.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// CartMirror добавляет позиции в серверную корзину.
type CartMirror interface {
	AddToCart(ctx context.Context, token string, productID int64, qty int) error
}

var _ CartMirror = (*Client)(nil)

const (
	requestTimeout = 5 * time.Second
	cartPath       = "/api/cart"
	maxErrorBody   = 512
)

// StatusError описывает ответ с кодом вне 2xx.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api %s returned status %d", cartPath, e.Status)
	}
	return fmt.Sprintf("api %s returned status %d: %s", cartPath, e.Status, e.Body)
}

// Unwrap сводит 4xx (кроме 408 и 429) к domain.ErrMirrorRejected: такие
// запросы повторять бессмысленно.
func (e *StatusError) Unwrap() error {
	if e.Status >= 400 && e.Status < 500 && e.Status != http.StatusRequestTimeout && e.Status != http.StatusTooManyRequests {
		return domain.ErrMirrorRejected
	}
	return nil
}

// Client — клиент удалённого API каталога и заказов.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// NewClient создаёт клиент для baseURL; timeout <= 0 означает значение по умолчанию.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = requestTimeout
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		userAgent: version.UserAgent(),
	}, nil
}

// AddToCart отправляет {productId, qty} от имени владельца токена.
func (c *Client) AddToCart(ctx context.Context, token string, productID int64, qty int) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("session token required: %w", domain.ErrMirrorRejected)
	}

	body, err := json.Marshal(struct {
		ProductID int64 `json:"productId"`
		Qty       int   `json:"qty"`
	}{ProductID: productID, Qty: qty})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	reqURL := c.baseURL.ResolveReference(&url.URL{Path: cartPath})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// TokenSource отдаёт токен входа идентичности на момент доставки.
type TokenSource interface {
	Token(ctx context.Context, id domain.Identity) (string, bool, error)
}

// Publisher доставляет события cart.item_added из outbox через CartMirror.
type Publisher struct {
	mirror CartMirror
	tokens TokenSource
}

var _ domain.OutboxPublisher = (*Publisher)(nil)

// NewPublisher создаёт publisher; токен ищется в tokens по AggregateID события.
func NewPublisher(mirror CartMirror, tokens TokenSource) *Publisher {
	return &Publisher{mirror: mirror, tokens: tokens}
}

// Publish декодирует полезную нагрузку и пересылает её. Неизвестные типы
// событий, битые payload и идентичности без токена отклоняются окончательно;
// сбой чтения токена повторяется.
func (p *Publisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if event.EventType != domain.EventCartItemAdded {
		return fmt.Errorf("event type %q: %w", event.EventType, domain.ErrMirrorRejected)
	}

	var payload domain.CartItemAddedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, domain.ErrMirrorRejected)
	}
	if payload.ProductID <= 0 || payload.Qty <= 0 {
		return fmt.Errorf("invalid payload %+v: %w", payload, domain.ErrMirrorRejected)
	}

	id := domain.Identity(event.AggregateID)
	token, ok, err := p.tokens.Token(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve token for %q: %w", id.String(), err)
	}
	if !ok {
		return fmt.Errorf("no session token for %q: %w", id.String(), domain.ErrMirrorRejected)
	}

	if err := p.mirror.AddToCart(ctx, token, payload.ProductID, payload.Qty); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusUnauthorized {
			return fmt.Errorf("session token expired: %w", err)
		}
		return err
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("remote api base url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse remote api url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("remote api url %q has no host", raw)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
