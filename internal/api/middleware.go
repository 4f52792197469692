package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/telemetry"
	"github.com/shaiso/quickcategories/internal/wiki"
)

// HeaderWikiDomain — заголовок с доменом вики, от имени пользователя которой
// выполняется запрос.
const HeaderWikiDomain = "X-Wiki-Domain"

// Middleware — функция-обёртка для http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain применяет middleware в порядке слева направо.
// Chain(m1, m2)(handler) = m1(m2(handler))
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Logging логирует HTTP запросы.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r.WithContext(telemetry.WithLogger(r.Context(), logger)))

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// Metrics считает запросы по классу кода ответа.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrap(w)
			next.ServeHTTP(rw, r)
			telemetry.HTTPRequest(rw.status)
		})
	}
}

// Recovery восстанавливается после паники.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
					)
					InternalError(w, logger, nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// caller — аутентифицированный пользователь запроса.
type caller struct {
	user  domain.LocalUser
	creds domain.Credentials
}

type callerKey struct{}

// callerFrom возвращает пользователя, положенного в контекст Authenticate.
func callerFrom(ctx context.Context) (caller, bool) {
	c, ok := ctx.Value(callerKey{}).(caller)
	return c, ok
}

// Authenticate определяет пользователя по OAuth-токену через userinfo вики.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			Unauthorized(w, "bearer token required")
			return
		}
		wikiDomain := r.Header.Get(HeaderWikiDomain)
		if wikiDomain == "" {
			wikiDomain = r.URL.Query().Get("domain")
		}
		if wikiDomain == "" {
			BadRequest(w, "wiki domain required")
			return
		}

		creds := domain.Credentials{AccessToken: strings.TrimSpace(token)}
		user, err := h.wiki.Session(wikiDomain, creds).CurrentUser(r.Context())
		if err != nil {
			if errors.Is(err, wiki.ErrNotAuthenticated) {
				Unauthorized(w, "token is not valid for "+wikiDomain)
				return
			}
			h.logger.Warn("userinfo request failed", "domain", wikiDomain, "error", err)
			Error(w, http.StatusBadGateway, ErrCodeUpstream, "wiki is unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, caller{user: user, creds: creds})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter — обёртка для захвата статуса ответа.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrap(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(status int) {
	if !rw.wroteHeader {
		rw.status = status
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(status)
}
