package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gikundiro/fanpay-backend/api/responses"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	pkgredis "github.com/gikundiro/fanpay-backend/pkg/redis"
	"github.com/gikundiro/fanpay-backend/pkg/security"
)

const (
	replayTTL       = 24 * time.Hour
	longReplayTTL   = 7 * 24 * time.Hour
	inFlightTTL     = time.Minute
	idempotencySlot = "http"
)

// replayRoute marks a mutating admin endpoint whose responses are kept for
// replay. Paths are matched with path.Match, so * stands for one segment.
type replayRoute struct {
	method string
	glob   string
	ttl    time.Duration
}

var replayRoutes = []replayRoute{
	{http.MethodPost, "/admin/sms/manual/*/attach", replayTTL},
	{http.MethodPost, "/admin/sms/manual/*/dismiss", replayTTL},
	{http.MethodPost, "/admin/sms/manual/*/retry", replayTTL},
	{http.MethodPost, "/admin/sms/parser/prompts", replayTTL},
	{http.MethodPost, "/admin/sms/parser/prompts/*/activate", replayTTL},
	{http.MethodPost, "/admin/payments/*/fail", longReplayTTL},
}

func replayWindow(method, urlPath string) (time.Duration, bool) {
	urlPath = strings.TrimSuffix(urlPath, "/")
	for _, route := range replayRoutes {
		if route.method != method {
			continue
		}
		if ok, _ := path.Match(route.glob, urlPath); ok {
			return route.ttl, true
		}
	}
	return 0, false
}

// savedResponse is what sits under an idempotency key. Pending marks a
// request that is still running; its Status and Body are empty.
type savedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	RequestHash string `json:"requestHash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency honours an Idempotency-Key header on the routes in
// replayRoutes. Requests without one run unguarded. The first request under
// a key claims it with a short in-flight marker, runs, and stores its
// response; repeats get the stored response, or 409 while the first is still
// running. Server errors are not stored so the caller can retry with the same
// key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := replayWindow(r.Method, r.URL.Path)
			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(idempotencySlot,
				security.Fingerprint(UserIDFromContext(ctx), r.Method, r.URL.Path, clientKey))
			hash := security.Fingerprint(string(body))

			claimed, err := claimKey(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if !claimed {
				replay(ctx, store, logg, w, key, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			settle(context.WithoutCancel(ctx), store, logg, key, hash, capture, ttl)
		})
	}
}

func claimKey(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	marker, err := json.Marshal(savedResponse{Pending: true, RequestHash: hash})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(marker), inFlightTTL)
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, hash string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// The first request finished with a server error and released the key.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key was just released; retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	var saved savedResponse
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case saved.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case saved.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		if saved.ContentType != "" {
			w.Header().Set("Content-Type", saved.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(saved.Status)
		_, _ = w.Write(saved.Body)
	}
}

// settle swaps the in-flight marker for the final response, or drops it when
// the handler failed on the server side.
func settle(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, key, hash string, capture *responseCapture, ttl time.Duration) {
	if err := store.Del(ctx, key); err != nil {
		logError(ctx, logg, "release idempotency key", err)
		return
	}
	status := capture.statusOrOK()
	if status >= http.StatusInternalServerError {
		return
	}
	payload, err := json.Marshal(savedResponse{
		RequestHash: hash,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
	if err != nil {
		logError(ctx, logg, "encode idempotency record", err)
		return
	}
	if _, err := store.SetNX(ctx, key, string(payload), ttl); err != nil {
		logError(ctx, logg, "store idempotency record", err)
	}
}

// responseCapture tees the handler's response so it can be stored.
type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
