package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hongminglow/all-in-iam/internal/auth"
	"github.com/hongminglow/all-in-iam/internal/http/respond"
	"github.com/hongminglow/all-in-iam/internal/observability"
)

// TokenVerifier is satisfied by *auth.Service.
type TokenVerifier interface {
	Authenticate(ctx context.Context, raw string) (auth.Claims, error)
}

// DecisionObserver receives the outcome of every checkpoint.
type DecisionObserver interface {
	ObserveDecision(route, decision string)
}

type tokenErrKey struct{}

// Authorizer resolves bearer tokens and enforces the role policy.
type Authorizer struct {
	verifier TokenVerifier
	policy   *auth.Policy
	observer DecisionObserver
	logger   *slog.Logger
}

func NewAuthorizer(verifier TokenVerifier, policy *auth.Policy, observer DecisionObserver, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{verifier: verifier, policy: policy, observer: observer, logger: logger}
}

// Authenticate verifies a bearer token when one is sent and stores the claims
// on the request context. It never rejects; Require decides.
func (a *Authorizer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.verifier.Authenticate(r.Context(), raw)
		ctx := r.Context()
		if err != nil {
			ctx = context.WithValue(ctx, tokenErrKey{}, err)
		} else {
			ctx = auth.ContextWithClaims(ctx, claims)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require enforces the roles registered for the matched route. Routes the
// policy does not list are public.
func (a *Authorizer) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := observability.RoutePattern(r)
		required, protected := a.policy.RequiredRoles(r.Method, route)
		if !protected {
			next.ServeHTTP(w, r)
			return
		}

		claims, ok := auth.ClaimsFromContext(r.Context())
		tokenErr, _ := r.Context().Value(tokenErrKey{}).(error)
		if err := auth.Check(claims, ok, tokenErr, required); err != nil {
			decision := "deny"
			if errors.Is(err, auth.ErrUnauthorized) {
				decision = "unauthenticated"
			}
			a.logger.InfoContext(r.Context(), "request rejected",
				slog.String("route", route),
				slog.String("user_id", claims.Subject),
				slog.Any("roles", claims.Roles),
				slog.String("reason", err.Error()),
			)
			a.observe(route, decision)
			respond.Failure(w, r, a.logger, err)
			return
		}
		a.observe(route, "allow")
		next.ServeHTTP(w, r)
	})
}

func (a *Authorizer) observe(route, decision string) {
	if a.observer != nil {
		a.observer.ObserveDecision(route, decision)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
