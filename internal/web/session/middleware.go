package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey int

const (
	sessionKey contextKey = iota
)

// Middleware loads the session named by the cookie, or starts a new one,
// and saves it back once the handler starts writing the response.
func Middleware(config *Config) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess *Session

			if cookie, err := r.Cookie(config.CookieName); err == nil && cookie.Value != "" {
				sess, err = config.Store.Get(r.Context(), cookie.Value)
				if err != nil && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
					logger.Warn("session load failed",
						zap.String("request_id", webcontext.GetRequestID(r.Context())),
						zap.Error(err))
				}
				if err != nil {
					sess = nil
				}
			}

			if sess == nil {
				id, err := generateSessionID()
				if err != nil {
					http.Error(w, "Failed to generate session ID", http.StatusInternalServerError)
					return
				}
				sess = NewSession(id, config.TTL())
			}

			setCookie(w, config, sess.ID)

			ctx := WithSession(r.Context(), sess)
			sw := &sessionWriter{
				ResponseWriter: w,
				session:        sess,
				config:         config,
				logger:         logger,
				ctx:            ctx,
			}

			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.save()
		})
	}
}

// sessionWriter saves the session before the first byte of the response
type sessionWriter struct {
	http.ResponseWriter
	session *Session
	config  *Config
	logger  *zap.Logger
	ctx     context.Context
	once    sync.Once
}

func (sw *sessionWriter) save() {
	sw.once.Do(func() {
		if sw.session.destroyed {
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(sw.ctx), 5*time.Second)
		defer cancel()

		if err := sw.config.Store.Set(ctx, sw.session.ID, sw.session, sw.config.TTL()); err != nil {
			sw.logger.Warn("session save failed",
				zap.String("request_id", webcontext.GetRequestID(sw.ctx)),
				zap.Error(err))
		}
	})
}

// WriteHeader saves the session before writing headers
func (sw *sessionWriter) WriteHeader(statusCode int) {
	sw.save()
	sw.ResponseWriter.WriteHeader(statusCode)
}

// Write saves the session before an implicit 200
func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.save()
	return sw.ResponseWriter.Write(b)
}

// WithSession attaches a session to the context
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// GetSession retrieves the session from the request context
func GetSession(ctx context.Context) *Session {
	if sess, ok := ctx.Value(sessionKey).(*Session); ok {
		return sess
	}
	return nil
}

// DestroySession deletes the current session and clears the cookie
func DestroySession(ctx context.Context, config *Config, w http.ResponseWriter) error {
	sess := GetSession(ctx)
	if sess == nil {
		return nil
	}

	sess.destroyed = true

	if err := config.Store.Delete(ctx, sess.ID); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:   config.CookieName,
		Value:  "",
		Path:   config.CookiePath,
		MaxAge: -1,
	})

	return nil
}

// RegenerateSessionID moves the session to a fresh ID, keeping its data.
// Called when the identity held by the session changes.
func RegenerateSessionID(ctx context.Context, config *Config, w http.ResponseWriter) error {
	sess := GetSession(ctx)
	if sess == nil {
		return ErrSessionNotFound
	}

	newID, err := generateSessionID()
	if err != nil {
		return err
	}

	if err := config.Store.Delete(ctx, sess.ID); err != nil {
		return err
	}
	sess.ID = newID

	if err := config.Store.Set(ctx, newID, sess, config.TTL()); err != nil {
		return err
	}

	setCookie(w, config, newID)
	return nil
}

func setCookie(w http.ResponseWriter, config *Config, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieName,
		Value:    id,
		Path:     config.CookiePath,
		Domain:   config.CookieDomain,
		MaxAge:   config.MaxAge,
		HttpOnly: config.HttpOnly,
		Secure:   config.Secure,
		SameSite: sameSiteFromString(config.SameSite),
	})
}

// generateSessionID generates a cryptographically secure random session ID
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// sameSiteFromString converts string to http.SameSite
func sameSiteFromString(s string) http.SameSite {
	switch s {
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
