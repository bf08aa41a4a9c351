package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/clientledger/clientledger/server/internal/archive"
	"github.com/clientledger/clientledger/server/internal/auth"
	"github.com/clientledger/clientledger/server/internal/customer"
	"github.com/clientledger/clientledger/server/internal/metrics"
	"github.com/clientledger/clientledger/server/internal/store"
)

const maxBodyBytes = 1 << 20

var errArchiveDisabled = errors.New("report archiving is disabled")

// Options wires a Handler to the services it exposes.
type Options struct {
	Customers *customer.Service
	Auth      *auth.Service
	// Archive stores KPI reports on request; nil disables archiving.
	Archive *archive.Archiver
	Metrics *metrics.Metrics

	// AllowedOrigins lists the origins allowed to make browser calls.
	AllowedOrigins []string

	// Ping reports store reachability for the health endpoint; nil always succeeds.
	Ping func(ctx context.Context) error

	// Now stamps envelopes; nil uses time.Now.
	Now func() time.Time
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	customers *customer.Service
	auth      *auth.Service
	archive   *archive.Archiver
	ping      func(ctx context.Context) error
	now       func() time.Time
	root      http.Handler
}

// New creates a Handler and registers all routes.
func New(opts Options) *Handler {
	h := &Handler{
		customers: opts.Customers,
		auth:      opts.Auth,
		archive:   opts.Archive,
		ping:      opts.Ping,
		now:       opts.Now,
	}
	if h.ping == nil {
		h.ping = func(context.Context) error { return nil }
	}
	if h.now == nil {
		h.now = time.Now
	}

	authed := auth.Authenticate(h.auth, h.fail)
	user := func(f http.HandlerFunc) http.Handler { return authed(f) }
	admin := func(f http.HandlerFunc) http.Handler {
		return authed(auth.RequireRole(h.fail, store.RoleAdmin)(f))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", h.health)
	mux.HandleFunc("POST /api/v1/auth/login", h.login)
	mux.HandleFunc("GET /api/v1/auth/validate", h.validate)
	mux.Handle("POST /api/v1/auth/register", admin(h.register))
	mux.Handle("POST /api/v1/auth/change-password", user(h.changePassword))

	mux.Handle("POST /api/v1/customers", user(h.createCustomer))
	mux.Handle("GET /api/v1/customers", user(h.pageCustomers))
	mux.Handle("GET /api/v1/customers/all", user(h.listCustomers))
	mux.Handle("GET /api/v1/customers/{id}", user(h.getCustomer))
	mux.Handle("PUT /api/v1/customers/{id}", user(h.updateCustomer))
	mux.Handle("DELETE /api/v1/customers/{id}", admin(h.deleteCustomer))
	mux.Handle("POST /api/v1/customers/batch", admin(h.createBatch))
	mux.Handle("POST /api/v1/customers/batch/validate", user(h.validateBatch))
	mux.Handle("GET /api/v1/customers/kpis", user(h.kpis))
	mux.Handle("GET /api/v1/customers/kpis/archive", admin(h.archived))

	h.root = requestID(cors(opts.AllowedOrigins, instrument(opts.Metrics, mux)))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// Fail writes the error envelope for err. It suits auth.Authenticate for
// routes mounted outside this handler.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	h.fail(w, r, err)
}

// --- health and auth --------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "UP", Store: "ok"}
	if err := h.ping(r.Context()); err != nil {
		resp = HealthResponse{Status: "DEGRADED", Store: "error"}
		h.reply(w, http.StatusServiceUnavailable, "store unreachable", resp)
		return
	}
	h.reply(w, http.StatusOK, "service is up", resp)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusOK, "login successful", sessionResponse(sess))
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	tok := auth.BearerToken(r)
	if tok == "" {
		h.reply(w, http.StatusOK, "token is invalid", ValidateResponse{})
		return
	}
	p, err := h.auth.Validate(r.Context(), tok)
	if err != nil {
		h.reply(w, http.StatusOK, "token is invalid", ValidateResponse{})
		return
	}
	h.reply(w, http.StatusOK, "token is valid", ValidateResponse{Valid: true, Email: p.Email, Role: string(p.Role)})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	caller, _ := auth.FromContext(r.Context())
	p, err := h.auth.Register(r.Context(), caller.Email, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusCreated, "user registered", SessionResponse{
		Email:    p.Email,
		FullName: p.FirstName + " " + p.LastName,
		Role:     string(p.Role),
		IssuedAt: h.now(),
	})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	caller, _ := auth.FromContext(r.Context())
	if err := h.auth.ChangePassword(r.Context(), caller.Email, req.OldPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusOK, "password changed", nil)
}

// --- customers --------------------------------------------------------------

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customer.Request
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	caller, _ := auth.FromContext(r.Context())
	v, err := h.customers.Create(r.Context(), caller.Email, req, r.URL.Query().Get("notify_to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusCreated, "customer created", v)
}

func (h *Handler) pageCustomers(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	size, err := intParam(r, "size", customer.DefaultPageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.customers.Page(r.Context(), page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusOK, fmt.Sprintf("%d customers found", p.TotalItems), p)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	all, err := h.customers.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusOK, fmt.Sprintf("%d customers found", len(all)), all)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.customers.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusOK, "customer found", v)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req customer.Request
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.customers.Update(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusOK, "customer updated", v)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.customers.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusOK, "customer deleted", nil)
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	caller, _ := auth.FromContext(r.Context())
	res, err := h.customers.CreateBatch(r.Context(), caller.Email, req.Customers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Failed > 0 {
		status = http.StatusMultiStatus
	}
	h.reply(w, status, fmt.Sprintf("%d of %d customers created", res.Created, res.Total), res)
}

func (h *Handler) validateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.customers.ValidateBatch(r.Context(), req.Customers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "batch is valid"
	if !res.Valid {
		msg = fmt.Sprintf("batch has %d problems", len(res.Problems))
	}
	h.reply(w, http.StatusOK, msg, res)
}

// --- statistics -------------------------------------------------------------

func (h *Handler) kpis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	save := q.Get("archive") == "true"
	if save && h.archive == nil {
		h.fail(w, r, errArchiveDisabled)
		return
	}
	st, err := h.customers.Stats(r.Context(), q.Get("notify_to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := NewStatsResponse(st)
	if save {
		key, err := h.archive.Save(r.Context(), st.GeneratedAt, resp)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.ArchiveKey = key
	}
	h.reply(w, http.StatusOK, resp.Message, resp)
}

func (h *Handler) archived(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.fail(w, r, errArchiveDisabled)
		return
	}
	keys, err := h.archive.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reply(w, http.StatusOK, fmt.Sprintf("%d archived reports", len(keys)), keys)
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) reply(w http.ResponseWriter, code int, msg string, data any) {
	jsonResp(w, code, envelope{
		Success:   true,
		Message:   msg,
		Data:      data,
		Timestamp: h.now(),
	})
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(CodeValidation, "malformed JSON body")
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, badRequest(CodeInvalidArg, "id must be a positive integer")
	}
	return id, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest(CodeInvalidArg, name+" must be an integer")
	}
	return n, nil
}
