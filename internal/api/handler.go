// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/6lebedev9/GameAPI/internal/auth"
	"github.com/6lebedev9/GameAPI/internal/observability"
	"github.com/6lebedev9/GameAPI/internal/ratelimit"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 1 << 20

const tracerName = "gameapi/api"

// Route names, also used as metric and throttle labels.
const (
	RouteRegister       = "register"
	RouteLogin          = "login"
	RouteUpdateEmail    = "update-email"
	RouteUpdatePassword = "update-password"
)

// routePrefixes lists the path prefixes every account route is served under.
var routePrefixes = []string{"/accounts", "/api/accounts"}

// AccountService is the account workflow the handlers drive.
type AccountService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	UpdateEmail(ctx context.Context, principal auth.Principal, tokenValue, newEmail string) (*auth.Result, error)
	UpdatePassword(ctx context.Context, principal auth.Principal, tokenValue, newPassword string) (*auth.Result, error)
}

// Authenticator resolves a bearer token to the calling principal.
type Authenticator interface {
	Authenticate(token string) (auth.Principal, error)
}

type registerRequest struct {
	VerificationToken string `json:"verificationToken"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmPassword   string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateEmailRequest struct {
	VerificationToken string `json:"verificationToken"`
	NewEmail          string `json:"newEmail"`
}

type updatePasswordRequest struct {
	VerificationToken string `json:"verificationToken"`
	NewPassword       string `json:"newPassword"`
}

// accountResponse is the success payload shared by every operation.
type accountResponse struct {
	Success           bool       `json:"success"`
	Message           string     `json:"message"`
	AccountID         string     `json:"accountId"`
	Email             string     `json:"email"`
	ExternalBindingID int64      `json:"externalBindingId"`
	AccessToken       string     `json:"accessToken"`
	TokenExpiry       time.Time  `json:"tokenExpiry"`
	Role              int        `json:"role"`
	IsBanned          bool       `json:"isBanned"`
	IsLocked          bool       `json:"isLocked"`
	LockedUntil       *time.Time `json:"lockedUntil"`
	CoinBalance       int64      `json:"coinBalance"`
	MaxCharacterCount int        `json:"maxCharacterCount"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastLoginAt       *time.Time `json:"lastLoginAt"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func newAccountResponse(r *auth.Result) accountResponse {
	a := r.Account
	return accountResponse{
		Success:           true,
		Message:           "Authentication successful",
		AccountID:         a.ID.String(),
		Email:             a.Email,
		ExternalBindingID: a.ExternalBindingID,
		AccessToken:       r.AccessToken,
		TokenExpiry:       r.TokenExpiry,
		Role:              a.Role,
		IsBanned:          a.Banned,
		IsLocked:          r.Locked,
		LockedUntil:       a.LockedUntil,
		CoinBalance:       a.CoinBalance,
		MaxCharacterCount: a.MaxCharacterCount,
		CreatedAt:         a.CreatedAt,
		LastLoginAt:       a.LastLoginAt,
	}
}

// Handler serves the account routes.
type Handler struct {
	svc     AccountService
	authn   Authenticator
	limiter ratelimit.Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	router  *mux.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLimiter throttles every route through l.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// WithMetrics records operation outcomes and latencies in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithLogger sets the access and error logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithTracerProvider sets the provider request spans are started from.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handler) {
		h.tracer = tp.Tracer(tracerName)
	}
}

// NewHandler creates the account route handler.
func NewHandler(svc AccountService, authn Authenticator, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, oops.Code("API_INVALID_CONFIG").Errorf("account service is required")
	}
	if authn == nil {
		return nil, oops.Code("API_INVALID_CONFIG").Errorf("authenticator is required")
	}

	h := &Handler{
		svc:    svc,
		authn:  authn,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		return nil, oops.Code("API_INVALID_CONFIG").Errorf("logger cannot be nil")
	}

	h.router = h.routes()
	return h, nil
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Use(h.accessLog, h.throttle)

	for _, prefix := range routePrefixes {
		s := r.PathPrefix(prefix).Subrouter()
		s.HandleFunc("/register", h.handleRegister).Methods(http.MethodPost).Name(prefix + ":" + RouteRegister)
		s.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost).Name(prefix + ":" + RouteLogin)
		s.Handle("/update-email", h.requireSession(http.HandlerFunc(h.handleUpdateEmail))).
			Methods(http.MethodPut).Name(prefix + ":" + RouteUpdateEmail)
		s.Handle("/update-password", h.requireSession(http.HandlerFunc(h.handleUpdatePassword))).
			Methods(http.MethodPut).Name(prefix + ":" + RouteUpdatePassword)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, RouteRegister, &req) {
		return
	}
	result, err := h.svc.Register(r.Context(), auth.RegisterInput{
		TokenValue:      req.VerificationToken,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	h.respond(w, RouteRegister, result, err)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, RouteLogin, &req) {
		return
	}
	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	h.respond(w, RouteLogin, result, err)
}

func (h *Handler) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req updateEmailRequest
	if !h.decode(w, r, RouteUpdateEmail, &req) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.svc.UpdateEmail(r.Context(), principal, req.VerificationToken, req.NewEmail)
	h.respond(w, RouteUpdateEmail, result, err)
}

func (h *Handler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if !h.decode(w, r, RouteUpdatePassword, &req) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.svc.UpdatePassword(r.Context(), principal, req.VerificationToken, req.NewPassword)
	h.respond(w, RouteUpdatePassword, result, err)
}

// decode reads a single JSON object into dst. On failure it writes a 400
// response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, operation string, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && !errors.Is(dec.Decode(&struct{}{}), io.EOF) {
		err = errors.New("trailing data after JSON object")
	}
	if err == nil {
		return true
	}

	msg := "Invalid request body"
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		msg = "Request body too large"
	}
	h.metrics.RecordAuth(operation, auth.KindValidation.String())
	writeError(w, http.StatusBadRequest, msg)
	return false
}

// respond writes the outcome of an account operation.
func (h *Handler) respond(w http.ResponseWriter, operation string, result *auth.Result, err error) {
	if err != nil {
		kind := auth.KindOf(err)
		h.metrics.RecordAuth(operation, kind.String())
		writeError(w, StatusFor(kind), auth.Message(err))
		return
	}
	h.metrics.RecordAuth(operation, "success")
	writeJSON(w, http.StatusOK, newAccountResponse(result))
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation, auth.KindTokenInvalid:
		return http.StatusBadRequest
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
