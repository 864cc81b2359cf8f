package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	// inFlightTTL bounds how long a crashed request keeps its key claimed.
	inFlightTTL = 2 * time.Minute
)

// replayPolicy marks a mutating route as requiring an Idempotency-Key.
// path may contain "{...}" segments matching any single path segment.
type replayPolicy struct {
	method string
	path   string
	window time.Duration
}

var replayPolicies = []replayPolicy{
	{method: http.MethodPost, path: "/api/v1/orders", window: 7 * 24 * time.Hour},
	{method: http.MethodPatch, path: "/api/v1/orders/{orderId}/status", window: 24 * time.Hour},
}

// storedResponse is what a replay writes back.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the first non-5xx response recorded for a
// (user, method, path, key) tuple. The key is claimed before the handler
// runs, so a concurrent duplicate gets 409 instead of a second execution.
// Replaying the same key with a different body is rejected.
func Idempotency(store redis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			window, guarded := replayWindow(r.Method, requestPath(r))
			if !guarded {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			token := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if token == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.Key(strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|"), token)
			fingerprint := fingerprintOf(body)

			placeholder, _ := json.Marshal(storedResponse{Fingerprint: fingerprint})
			won, err := store.Claim(ctx, key, string(placeholder), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !won {
				replayExisting(w, r, store, logg, key, fingerprint)
				return
			}

			// 5xx responses and panics free the key for a retry.
			stored := false
			defer func() {
				if stored {
					return
				}
				if err := store.Release(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
			}()

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}
			stored = true

			encoded, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
				Fingerprint: fingerprint,
			})
			if err == nil {
				err = store.Save(ctx, key, string(encoded), window)
			}
			if err != nil {
				stored = false
				if logg != nil {
					logg.Error(ctx, "store idempotent response", err)
				}
			}
		})
	}
}

// replayExisting answers a request whose key is already claimed: the stored
// response when the first request finished, 409 while it is still running.
func replayExisting(w http.ResponseWriter, r *http.Request, store redis.IdempotencyStore, logg *logger.Logger, key, fingerprint string) {
	ctx := r.Context()
	raw, found, err := store.Lookup(ctx, key)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if !found {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	}
	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case prior.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case prior.inFlight():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		prior.replay(w)
	}
}

// inFlight marks the placeholder written before the handler runs.
func (s storedResponse) inFlight() bool { return s.Status == 0 }

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func replayWindow(method, path string) (time.Duration, bool) {
	for _, p := range replayPolicies {
		if p.method == method && pathMatches(p.path, path) {
			return p.window, true
		}
	}
	return 0, false
}

// pathMatches compares segment by segment; "{...}" in template matches
// any non-empty segment, including a literal chi placeholder.
func pathMatches(template, path string) bool {
	want := strings.Split(template, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if strings.HasPrefix(want[i], "{") && strings.HasSuffix(want[i], "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

// requestPath prefers the matched chi pattern. Middleware on a mounted
// subrouter runs before the final match, so wildcard patterns fall back to
// the raw path.
func requestPath(r *http.Request) string {
	path := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			path = pattern
		}
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
