// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/6lebedev9/GameAPI/internal/auth"
	"github.com/6lebedev9/GameAPI/pkg/errutil"
)

type principalKey struct{}

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal stored by the
// session middleware.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// operationOf returns the operation label of the matched route.
func operationOf(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unknown"
	}
	_, op, found := strings.Cut(route.GetName(), ":")
	if !found {
		return "unknown"
	}
	return op
}

// accessLog wraps each request in a server span, then logs one line for it
// and records its latency.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := operationOf(r)
		ctx, span := h.tracer.Start(r.Context(), "api."+op,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", op),
			),
		)
		defer span.End()
		r = r.WithContext(ctx)

		m := httpsnoop.CaptureMetrics(next, w, r)

		span.SetAttributes(attribute.Int("http.response.status_code", m.Code))
		if m.Code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(m.Code))
		}

		h.metrics.ObserveRequest(op, strconv.Itoa(m.Code), m.Duration)
		h.logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration_ms", m.Duration.Milliseconds(),
			"bytes", m.Written,
		)
	})
}

// throttle rejects requests over the per-client, per-route limit. The
// limiter failing open keeps the API available when Redis is down.
func (h *Handler) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		op := operationOf(r)
		decision, err := h.limiter.Allow(r.Context(), op+":"+clientIP(r))
		if err != nil {
			h.logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
				"operation", op,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}
		if !decision.Allowed {
			h.metrics.RecordRateLimited(op)
			h.metrics.RecordAuth(op, "rate_limited")
			if secs := int(decision.RetryAfter.Seconds()); secs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession verifies the bearer token and stores the principal in the
// request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.metrics.RecordAuth(operationOf(r), auth.KindUnauthorized.String())
			writeError(w, http.StatusUnauthorized, auth.Message(auth.ErrSessionInvalid(nil)))
			return
		}

		principal, err := h.authn.Authenticate(token)
		if err != nil {
			kind := auth.KindOf(err)
			if kind == auth.KindInternal {
				errutil.LogErrorContext(r.Context(), h.logger, "session verification failed", err)
			}
			h.metrics.RecordAuth(operationOf(r), kind.String())
			writeError(w, StatusFor(kind), auth.Message(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// bearerToken extracts the credentials of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// clientIP returns the host part of the peer address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
