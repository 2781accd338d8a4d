// Package api публикует операции клиентских хранилищ по HTTP. Устройство
// определяется заголовком X-Device-ID; если его нет, сервер выдаёт новый.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/session"
)

// HeaderDeviceID — заголовок с идентификатором устройства.
const HeaderDeviceID = "X-Device-ID"

const maxBodyBytes = 1 << 20

// Sessions выдаёт сессию устройства. Реализуется *session.Registry.
type Sessions interface {
	Get(ctx context.Context, deviceID string) (*session.Session, error)
}

// Options настраивает роутер.
type Options struct {
	Logger         *log.Entry
	Metrics        *metrics.HTTPMetrics
	AllowedOrigins []string
}

type server struct {
	sessions Sessions
	logger   *log.Entry
}

type ctxKey struct{}

// NewRouter собирает chi-роутер с маршрутами /api/v1.
func NewRouter(sessions Sessions, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &server{sessions: sessions, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderDeviceID},
		ExposedHeaders:   []string{HeaderDeviceID},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(accessLog(logger, opts.Metrics))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.withSession)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Delete("/", s.clearCart)
			r.Post("/items", s.addCartItem)
			r.Put("/items/{productId}", s.setCartItemQuantity)
			r.Patch("/items/{productId}", s.updateCartItemQuantity)
			r.Delete("/items/{productId}", s.removeCartItem)
		})

		r.Route("/compare", func(r chi.Router) {
			r.Get("/", s.getCompare)
			r.Post("/", s.addCompare)
			r.Delete("/", s.clearCompare)
			r.Delete("/{productId}", s.removeCompare)
		})

		r.Route("/recently-viewed", func(r chi.Router) {
			r.Get("/", s.getRecentlyViewed)
			r.Post("/", s.recordView)
			r.Delete("/", s.clearRecentlyViewed)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Post("/login", s.login)
			r.Post("/logout", s.logout)
		})
	})

	return r
}

// withSession находит сессию устройства; без заголовка выдаёт новый id.
func (s *server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get(HeaderDeviceID)
		if deviceID == "" {
			deviceID = uuid.NewString()
		}

		sess, err := s.sessions.Get(r.Context(), deviceID)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}

		w.Header().Set(HeaderDeviceID, deviceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(ctxKey{}).(*session.Session)
	return sess
}

// accessLog пишет запрос в лог и в метрики после ответа.
func accessLog(logger *log.Entry, m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			m.ObserveRequest(route, r.Method, status, elapsed)

			logger.WithFields(log.Fields{
				"method":      r.Method,
				"route":       route,
				"status":      status,
				"duration_ms": elapsed.Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
