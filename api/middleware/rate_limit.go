package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gikundiro/fanpay-backend/api/responses"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/redis"
	"github.com/gikundiro/fanpay-backend/pkg/security"
)

// maxThrottledBody bounds how much of a request body is buffered to find a
// throttle subject. Larger bodies are rejected by the handler anyway.
const maxThrottledBody = 64 << 10

// RateLimiterStore counts hits per key inside a TTL window.
type RateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Throttle is a set of fixed-window counters sharing one window. Each rule
// derives a subject from the request; subjects are fingerprinted before they
// become part of a key, so raw phone numbers and addresses never reach Redis.
type Throttle struct {
	name   string
	window time.Duration
	rules  []throttleRule
}

type throttleRule struct {
	scope   string
	limit   int64
	subject func(r *http.Request) (string, error)
}

func NewThrottle(name string, window time.Duration) *Throttle {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return &Throttle{name: name, window: window}
}

// PerIP counts requests per client address. A limit <= 0 adds nothing.
func (t *Throttle) PerIP(limit int) *Throttle {
	if limit > 0 {
		t.rules = append(t.rules, throttleRule{
			scope: "ip",
			limit: int64(limit),
			subject: func(r *http.Request) (string, error) {
				return clientIP(r), nil
			},
		})
	}
	return t
}

// PerBodyField counts requests per value of a top-level JSON string field,
// compared case-insensitively. Requests without the field are not counted.
func (t *Throttle) PerBodyField(field string, limit int) *Throttle {
	field = strings.TrimSpace(field)
	if limit > 0 && field != "" {
		t.rules = append(t.rules, throttleRule{
			scope: field,
			limit: int64(limit),
			subject: func(r *http.Request) (string, error) {
				return bodyField(r, field)
			},
		})
	}
	return t
}

func (t *Throttle) key(scope, subject string) string {
	return redis.Key("rl", t.name, scope, security.Fingerprint(subject))
}

// Middleware applies every rule in order and answers 429 on the first one
// over its limit. A nil store or a throttle without rules is a no-op.
func (t *Throttle) Middleware(store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || t.window <= 0 || len(t.rules) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, rule := range t.rules {
				subject, err := rule.subject(r)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				if subject == "" {
					continue
				}
				key := t.key(rule.scope, subject)
				hits, err := store.IncrWithTTL(ctx, key, t.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if hits > rule.limit {
					t.reject(ctx, logg, w, rule, key, hits)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (t *Throttle) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, rule throttleRule, key string, hits int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"throttle":       t.name,
			"scope":          rule.scope,
			"key":            key,
			"hits":           hits,
			"limit":          rule.limit,
			"window_seconds": int(t.window.Seconds()),
		}), "request throttled")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(t.window.Seconds())))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// bodyField reads the body, restores it for the next handler and returns the
// normalised field value. Bodies that are not JSON objects yield "".
func bodyField(r *http.Request, field string) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxThrottledBody+1))
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
	if len(raw) > maxThrottledBody {
		return "", nil
	}
	var doc map[string]json.RawMessage
	if json.Unmarshal(raw, &doc) != nil {
		return "", nil
	}
	var value string
	if json.Unmarshal(doc[field], &value) != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(value)), nil
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
