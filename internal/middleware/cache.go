package middleware

import (
	"bytes"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachePolicy describes how responses of one route are cached.
type CachePolicy struct {
	// Key derives the cache key; nil uses method, path and query.
	Key func(*http.Request) string
	TTL time.Duration
}

type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

// handlerHeaders returns the headers set after before was taken. Headers
// written by outer middleware such as CORS are left out so a replay does not
// duplicate them.
func handlerHeaders(before, after http.Header) http.Header {
	out := make(http.Header)
	for name, vals := range after {
		switch name {
		case "X-Cache", "Content-Length":
			continue
		}
		if slices.Equal(before[name], vals) {
			continue
		}
		out[name] = slices.Clone(vals)
	}
	return out
}

// RequestKey hashes method, path and raw query under prefix.
func RequestKey(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		sum := sha1.Sum([]byte(r.Method + ":" + r.URL.Path + "?" + r.URL.RawQuery))
		return fmt.Sprintf("%s:%x", prefix, sum[:])
	}
}

// Cache serves GET responses from Redis. Only 200 responses are stored. A nil
// client disables caching.
func Cache(client redis.Cmdable, policy CachePolicy, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	key := policy.Key
	if key == nil {
		key = RequestKey("http-cache")
	}
	ttl := policy.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return func(next http.Handler) http.Handler {
		if client == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			k := key(r)

			if bs, err := client.Get(ctx, k).Bytes(); err == nil {
				var cached cachedResponse
				if err := json.Unmarshal(bs, &cached); err == nil {
					for name, vals := range cached.Header {
						w.Header()[name] = vals
					}
					w.Header().Set("X-Cache", "HIT")
					w.WriteHeader(cached.Status)
					_, _ = w.Write(cached.Body)
					return
				}
			} else if err != redis.Nil {
				logger.WarnContext(ctx, "cache read failed", slog.String("key", k), slog.Any("error", err))
			}

			before := w.Header().Clone()
			w.Header().Set("X-Cache", "MISS")
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)
			if cw.status != http.StatusOK {
				return
			}

			header := handlerHeaders(before, w.Header())
			payload, err := json.Marshal(cachedResponse{Status: cw.status, Header: header, Body: cw.buf.Bytes()})
			if err != nil {
				return
			}
			if err := client.Set(ctx, k, payload, ttl).Err(); err != nil {
				logger.WarnContext(ctx, "cache write failed", slog.String("key", k), slog.Any("error", err))
			}
		})
	}
}
