package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/clientledger/clientledger/server/internal/api"
	"github.com/clientledger/clientledger/server/internal/archive"
	"github.com/clientledger/clientledger/server/internal/auth"
	"github.com/clientledger/clientledger/server/internal/compute"
	"github.com/clientledger/clientledger/server/internal/customer"
	"github.com/clientledger/clientledger/server/internal/metrics"
	"github.com/clientledger/clientledger/server/internal/notify"
	"github.com/clientledger/clientledger/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

const (
	adminEmail    = "admin@challenge.com"
	adminPassword = "Admin123!"
)

var today = time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)

type nopNotifier struct{}

func (nopNotifier) Send(notify.Message) bool { return true }

type env struct {
	h     http.Handler
	m     *metrics.Metrics
	admin string // admin bearer token
}

type options struct {
	archive *archive.Archiver
	ping    func(context.Context) error
}

func newEnv(t *testing.T, opts options) *env {
	t.Helper()
	m := metrics.New()
	st := store.NewMemory()
	authSvc := auth.NewService(st, auth.NewTokens([]byte("test-secret-test-secret-test-secret"), time.Hour, "clientledger"), m)
	if _, err := authSvc.SeedAdmin(context.Background(), adminEmail, adminPassword); err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	custSvc := customer.New(st, nopNotifier{}, m, customer.Options{
		Now: func() time.Time { return today },
	})
	e := &env{
		h: api.New(api.Options{
			Customers:      custSvc,
			Auth:           authSvc,
			Archive:        opts.archive,
			Metrics:        m,
			AllowedOrigins: []string{"http://localhost:3000"},
			Ping:           opts.ping,
			Now:            func() time.Time { return today },
		}),
		m: m,
	}
	e.admin = e.login(t, adminEmail, adminPassword)
	return e
}

// reply is the decoded envelope; Data is kept raw for a second decode.
type reply struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	Path      string          `json:"path"`
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, reply) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)

	var rep reply
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("%s %s: decode JSON: %v (body: %s)", method, path, err, rr.Body.String())
	}
	return rr, rep
}

func (e *env) login(t *testing.T, email, password string) string {
	t.Helper()
	rr, rep := e.do(t, http.MethodPost, "/api/v1/auth/login", "", api.LoginRequest{Email: email, Password: password})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", email, rr.Code, rr.Body.String())
	}
	var sess api.SessionResponse
	decodeData(t, rep, &sess)
	return sess.Token
}

// userToken registers a USER account through the API and logs in as it.
func (e *env) userToken(t *testing.T) string {
	t.Helper()
	rr, _ := e.do(t, http.MethodPost, "/api/v1/auth/register", e.admin, auth.RegisterRequest{
		Email: "user@challenge.com", Password: "User1234", FirstName: "Regular", LastName: "User",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: status %d, body %s", rr.Code, rr.Body.String())
	}
	return e.login(t, "user@challenge.com", "User1234")
}

func decodeData(t *testing.T, rep reply, v any) {
	t.Helper()
	if err := json.Unmarshal(rep.Data, v); err != nil {
		t.Fatalf("decode data: %v (data: %s)", err, rep.Data)
	}
}

func intp(n int) *int { return &n }

func cust(first, last string, age int, birth string) customer.Request {
	return customer.Request{FirstName: first, LastName: last, Age: intp(age), BirthDate: birth}
}

func wantStatus(t *testing.T, rr *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rr.Code != code {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, code, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	e := newEnv(t, options{})
	rr, rep := e.do(t, http.MethodGet, "/api/v1/health", "", nil)
	wantStatus(t, rr, http.StatusOK)

	var got api.HealthResponse
	decodeData(t, rep, &got)
	if diff := cmp.Diff(api.HealthResponse{Status: "UP", Store: "ok"}, got); diff != "" {
		t.Errorf("health (-want +got):\n%s", diff)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
}

func TestHealth_StoreDown(t *testing.T) {
	e := newEnv(t, options{ping: func(context.Context) error { return errors.New("connection refused") }})
	rr, rep := e.do(t, http.MethodGet, "/api/v1/health", "", nil)
	wantStatus(t, rr, http.StatusServiceUnavailable)

	var got api.HealthResponse
	decodeData(t, rep, &got)
	if got.Status != "DEGRADED" || got.Store != "error" {
		t.Errorf("health: got %+v", got)
	}
}

// --- auth -------------------------------------------------------------------

func TestLogin(t *testing.T) {
	e := newEnv(t, options{})

	rr, rep := e.do(t, http.MethodPost, "/api/v1/auth/login", "", api.LoginRequest{Email: " ADMIN@challenge.com ", Password: adminPassword})
	wantStatus(t, rr, http.StatusOK)
	var sess api.SessionResponse
	decodeData(t, rep, &sess)
	if sess.Token == "" || sess.TokenType != "Bearer" {
		t.Errorf("session: got token=%q type=%q", sess.Token, sess.TokenType)
	}
	if sess.ExpiresIn != 3600 {
		t.Errorf("expires_in: got %d, want 3600", sess.ExpiresIn)
	}
	if sess.Role != "ADMIN" || sess.FullName != "Admin System" {
		t.Errorf("principal: got role=%q name=%q", sess.Role, sess.FullName)
	}
}

func TestLogin_Failures(t *testing.T) {
	e := newEnv(t, options{})

	tests := []struct {
		name string
		body any
		code int
		ec   string
	}{
		{"wrong password", api.LoginRequest{Email: adminEmail, Password: "Wrong123"}, http.StatusUnauthorized, api.CodeUnauthorized},
		{"unknown user", api.LoginRequest{Email: "nobody@challenge.com", Password: adminPassword}, http.StatusUnauthorized, api.CodeUnauthorized},
		{"malformed body", `{"email":`, http.StatusBadRequest, api.CodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, rep := e.do(t, http.MethodPost, "/api/v1/auth/login", "", tc.body)
			wantStatus(t, rr, tc.code)
			if rep.Success || rep.ErrorCode != tc.ec {
				t.Errorf("envelope: success=%v error_code=%q, want %q", rep.Success, rep.ErrorCode, tc.ec)
			}
			if rep.Path != "/api/v1/auth/login" {
				t.Errorf("path: got %q", rep.Path)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	e := newEnv(t, options{})

	tests := []struct {
		name  string
		token string
		want  api.ValidateResponse
		msg   string
	}{
		{"valid", e.admin, api.ValidateResponse{Valid: true, Email: adminEmail, Role: "ADMIN"}, "token is valid"},
		{"garbage", "not-a-token", api.ValidateResponse{}, "token is invalid"},
		{"missing", "", api.ValidateResponse{}, "token is invalid"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, rep := e.do(t, http.MethodGet, "/api/v1/auth/validate", tc.token, nil)
			wantStatus(t, rr, http.StatusOK)
			var got api.ValidateResponse
			decodeData(t, rep, &got)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("validate (-want +got):\n%s", diff)
			}
			if rep.Message != tc.msg {
				t.Errorf("message: got %q, want %q", rep.Message, tc.msg)
			}
		})
	}
}

func TestAuthenticationRequired(t *testing.T) {
	e := newEnv(t, options{})

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		ec     string
	}{
		{"no token list", http.MethodGet, "/api/v1/customers", "", api.CodeUnauthorized},
		{"no token kpis", http.MethodGet, "/api/v1/customers/kpis", "", api.CodeUnauthorized},
		{"no token create", http.MethodPost, "/api/v1/customers", "", api.CodeUnauthorized},
		{"malformed token", http.MethodGet, "/api/v1/customers/all", "abc", "TOKEN_MALFORMED"},
		{"bad signature", http.MethodGet, "/api/v1/customers/all", e.admin[:len(e.admin)-4] + "AAAA", "TOKEN_SIGNATURE_INVALID"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, rep := e.do(t, tc.method, tc.path, tc.token, nil)
			wantStatus(t, rr, http.StatusUnauthorized)
			if rep.ErrorCode != tc.ec {
				t.Errorf("error_code: got %q, want %q", rep.ErrorCode, tc.ec)
			}
		})
	}
}

func TestAdminOnlyRoutes(t *testing.T) {
	e := newEnv(t, options{})
	user := e.userToken(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"delete", http.MethodDelete, "/api/v1/customers/1", nil},
		{"batch", http.MethodPost, "/api/v1/customers/batch", api.BatchRequest{}},
		{"register", http.MethodPost, "/api/v1/auth/register", auth.RegisterRequest{}},
		{"archive list", http.MethodGet, "/api/v1/customers/kpis/archive", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, rep := e.do(t, tc.method, tc.path, user, tc.body)
			wantStatus(t, rr, http.StatusForbidden)
			if rep.ErrorCode != api.CodeForbidden {
				t.Errorf("error_code: got %q", rep.ErrorCode)
			}
		})
	}

	// USER may still create and read.
	rr, _ := e.do(t, http.MethodPost, "/api/v1/customers", user, cust("Ana", "García", 35, "1989-03-15"))
	wantStatus(t, rr, http.StatusCreated)
}

func TestRegister_Duplicate(t *testing.T) {
	e := newEnv(t, options{})
	e.userToken(t)

	rr, rep := e.do(t, http.MethodPost, "/api/v1/auth/register", e.admin, auth.RegisterRequest{
		Email: "USER@challenge.com", Password: "User1234", FirstName: "Other", LastName: "User",
	})
	wantStatus(t, rr, http.StatusConflict)
	if rep.ErrorCode != api.CodeDuplicate {
		t.Errorf("error_code: got %q", rep.ErrorCode)
	}
}

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t, options{})

	rr, rep := e.do(t, http.MethodPost, "/api/v1/auth/register", e.admin, auth.RegisterRequest{
		Email: "not-an-email", Password: "short", FirstName: "A", LastName: "User", Role: "ROOT",
	})
	wantStatus(t, rr, http.StatusBadRequest)
	var fields map[string]string
	decodeData(t, rep, &fields)
	for _, f := range []string{"email", "password", "first_name", "role"} {
		if fields[f] == "" {
			t.Errorf("missing field error for %q in %v", f, fields)
		}
	}
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t, options{})
	user := e.userToken(t)

	rr, rep := e.do(t, http.MethodPost, "/api/v1/auth/change-password", user, api.ChangePasswordRequest{OldPassword: "User1234", NewPassword: "User1234"})
	wantStatus(t, rr, http.StatusBadRequest)
	if rep.ErrorCode != api.CodeBusiness {
		t.Errorf("same password: error_code %q", rep.ErrorCode)
	}

	rr, rep = e.do(t, http.MethodPost, "/api/v1/auth/change-password", user, api.ChangePasswordRequest{OldPassword: "Wrong123", NewPassword: "Fresh1234"})
	wantStatus(t, rr, http.StatusUnauthorized)
	if rep.ErrorCode != api.CodeUnauthorized {
		t.Errorf("wrong password: error_code %q", rep.ErrorCode)
	}

	rr, _ = e.do(t, http.MethodPost, "/api/v1/auth/change-password", user, api.ChangePasswordRequest{OldPassword: "User1234", NewPassword: "Fresh1234"})
	wantStatus(t, rr, http.StatusOK)
	e.login(t, "user@challenge.com", "Fresh1234")
}

// --- customers --------------------------------------------------------------

func TestCustomerLifecycle(t *testing.T) {
	e := newEnv(t, options{})

	rr, rep := e.do(t, http.MethodPost, "/api/v1/customers", e.admin, cust("Ana", "García", 35, "1989-03-15"))
	wantStatus(t, rr, http.StatusCreated)
	var created customer.View
	decodeData(t, rep, &created)
	if created.ID == 0 {
		t.Fatal("created customer has no id")
	}
	if got := created.ProjectedDate.String(); got != "2064-03-15" {
		t.Errorf("projected_date: got %s, want 2064-03-15", got)
	}
	if created.RemainingYears != 39 {
		t.Errorf("remaining_years: got %d, want 39", created.RemainingYears)
	}
	if created.CreatedBy != adminEmail {
		t.Errorf("created_by: got %q", created.CreatedBy)
	}
	path := "/api/v1/customers/" + itoa(created.ID)

	rr, rep = e.do(t, http.MethodGet, path, e.admin, nil)
	wantStatus(t, rr, http.StatusOK)
	var got customer.View
	decodeData(t, rep, &got)
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("get (-want +got):\n%s", diff)
	}

	rr, rep = e.do(t, http.MethodPut, path, e.admin, cust("Ana María", "García", 36, "1988-01-10"))
	wantStatus(t, rr, http.StatusOK)
	decodeData(t, rep, &got)
	if got.FirstName != "Ana María" || got.Age != 36 {
		t.Errorf("update: got %+v", got)
	}

	rr, _ = e.do(t, http.MethodDelete, path, e.admin, nil)
	wantStatus(t, rr, http.StatusOK)

	rr, rep = e.do(t, http.MethodGet, path, e.admin, nil)
	wantStatus(t, rr, http.StatusNotFound)
	if rep.ErrorCode != api.CodeNotFound {
		t.Errorf("error_code after delete: got %q", rep.ErrorCode)
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCreateCustomer_Errors(t *testing.T) {
	e := newEnv(t, options{})
	rr, _ := e.do(t, http.MethodPost, "/api/v1/customers", e.admin, cust("Ana", "García", 35, "1989-03-15"))
	wantStatus(t, rr, http.StatusCreated)

	t.Run("duplicate", func(t *testing.T) {
		rr, rep := e.do(t, http.MethodPost, "/api/v1/customers", e.admin, cust("Ana", "García", 35, "1989-03-15"))
		wantStatus(t, rr, http.StatusConflict)
		if rep.ErrorCode != api.CodeDuplicate {
			t.Errorf("error_code: got %q", rep.ErrorCode)
		}
	})

	t.Run("inconsistent age", func(t *testing.T) {
		rr, rep := e.do(t, http.MethodPost, "/api/v1/customers", e.admin, cust("Luis", "Pérez", 50, "1989-03-15"))
		wantStatus(t, rr, http.StatusBadRequest)
		if rep.ErrorCode != api.CodeInconsistent {
			t.Errorf("error_code: got %q", rep.ErrorCode)
		}
		var data map[string]int
		decodeData(t, rep, &data)
		if diff := cmp.Diff(map[string]int{"provided_age": 50, "expected_age": 35}, data); diff != "" {
			t.Errorf("data (-want +got):\n%s", diff)
		}
	})

	t.Run("field validation", func(t *testing.T) {
		rr, rep := e.do(t, http.MethodPost, "/api/v1/customers", e.admin, customer.Request{FirstName: "A1", BirthDate: "2999-01-01"})
		wantStatus(t, rr, http.StatusBadRequest)
		if rep.ErrorCode != api.CodeValidation {
			t.Errorf("error_code: got %q", rep.ErrorCode)
		}
		var fields map[string]string
		decodeData(t, rep, &fields)
		for _, f := range []string{"first_name", "last_name", "age", "birth_date"} {
			if fields[f] == "" {
				t.Errorf("missing field error for %q in %v", f, fields)
			}
		}
	})

	t.Run("bad id", func(t *testing.T) {
		rr, rep := e.do(t, http.MethodGet, "/api/v1/customers/abc", e.admin, nil)
		wantStatus(t, rr, http.StatusBadRequest)
		if rep.ErrorCode != api.CodeInvalidArg {
			t.Errorf("error_code: got %q", rep.ErrorCode)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		rr, _ := e.do(t, http.MethodPut, "/api/v1/customers/999", e.admin, cust("Luis", "Pérez", 35, "1989-03-15"))
		wantStatus(t, rr, http.StatusNotFound)
	})
}

func TestPageCustomers(t *testing.T) {
	e := newEnv(t, options{})
	for _, c := range []customer.Request{
		cust("Ana", "Uno", 10, "2014-01-01"),
		cust("Bea", "Dos", 20, "2004-01-01"),
		cust("Cai", "Tres", 30, "1994-01-01"),
	} {
		rr, _ := e.do(t, http.MethodPost, "/api/v1/customers", e.admin, c)
		wantStatus(t, rr, http.StatusCreated)
	}

	rr, rep := e.do(t, http.MethodGet, "/api/v1/customers?page=1&size=2", e.admin, nil)
	wantStatus(t, rr, http.StatusOK)
	var p customer.Page
	decodeData(t, rep, &p)
	if p.TotalItems != 3 || p.TotalPages != 2 || p.Page != 1 || len(p.Items) != 1 {
		t.Errorf("page: got total=%d pages=%d page=%d items=%d", p.TotalItems, p.TotalPages, p.Page, len(p.Items))
	}

	rr, rep = e.do(t, http.MethodGet, "/api/v1/customers/all", e.admin, nil)
	wantStatus(t, rr, http.StatusOK)
	var all []customer.View
	decodeData(t, rep, &all)
	if len(all) != 3 {
		t.Errorf("all: got %d customers", len(all))
	}

	rr, rep = e.do(t, http.MethodGet, "/api/v1/customers?size=500", e.admin, nil)
	wantStatus(t, rr, http.StatusBadRequest)
	if rep.ErrorCode != api.CodeValidation {
		t.Errorf("size=500: error_code %q", rep.ErrorCode)
	}

	rr, rep = e.do(t, http.MethodGet, "/api/v1/customers?page=922337203685477581", e.admin, nil)
	wantStatus(t, rr, http.StatusBadRequest)
	if rep.ErrorCode != api.CodeValidation {
		t.Errorf("huge page: error_code %q", rep.ErrorCode)
	}

	rr, rep = e.do(t, http.MethodGet, "/api/v1/customers?page=x", e.admin, nil)
	wantStatus(t, rr, http.StatusBadRequest)
	if rep.ErrorCode != api.CodeInvalidArg {
		t.Errorf("page=x: error_code %q", rep.ErrorCode)
	}
}

func TestCreateBatch(t *testing.T) {
	e := newEnv(t, options{})

	rr, rep := e.do(t, http.MethodPost, "/api/v1/customers/batch", e.admin, api.BatchRequest{Customers: []customer.Request{
		cust("Ana", "Uno", 10, "2014-01-01"),
		cust("Bea", "Dos", 20, "2004-01-01"),
	}})
	wantStatus(t, rr, http.StatusCreated)
	var res customer.BatchResult
	decodeData(t, rep, &res)
	if res.Created != 2 || res.Failed != 0 {
		t.Errorf("all valid: created=%d failed=%d", res.Created, res.Failed)
	}

	rr, rep = e.do(t, http.MethodPost, "/api/v1/customers/batch", e.admin, api.BatchRequest{Customers: []customer.Request{
		cust("Ana", "Uno", 10, "2014-01-01"), // already exists
		cust("Cai", "Tres", 30, "1994-01-01"),
	}})
	wantStatus(t, rr, http.StatusMultiStatus)
	decodeData(t, rep, &res)
	if res.Created != 1 || res.Failed != 1 || len(res.Errors) != 1 || res.Errors[0].Index != 0 {
		t.Errorf("partial: got %+v", res)
	}
	if rep.Message != "1 of 2 customers created" {
		t.Errorf("message: got %q", rep.Message)
	}
}

func TestValidateBatch(t *testing.T) {
	e := newEnv(t, options{})

	rr, rep := e.do(t, http.MethodPost, "/api/v1/customers/batch/validate", e.admin, api.BatchRequest{Customers: []customer.Request{
		cust("Ana", "Uno", 10, "2014-01-01"),
		cust("Bea", "Dos", 60, "2004-01-01"),
	}})
	wantStatus(t, rr, http.StatusOK)
	var v customer.BatchValidation
	decodeData(t, rep, &v)
	if v.Valid || len(v.Problems) != 1 || v.Problems[0].Index != 1 {
		t.Errorf("validation: got %+v", v)
	}

	// A dry run stores nothing.
	rr, rep = e.do(t, http.MethodGet, "/api/v1/customers/all", e.admin, nil)
	wantStatus(t, rr, http.StatusOK)
	var all []customer.View
	decodeData(t, rep, &all)
	if len(all) != 0 {
		t.Errorf("dry run stored %d customers", len(all))
	}
}

// --- statistics -------------------------------------------------------------

func TestKPIs(t *testing.T) {
	e := newEnv(t, options{})

	rr, rep := e.do(t, http.MethodGet, "/api/v1/customers/kpis", e.admin, nil)
	wantStatus(t, rr, http.StatusOK)
	if !strings.Contains(string(rep.Data), `"min_age":null`) {
		t.Errorf("empty kpis: want null min_age, got %s", rep.Data)
	}

	for _, c := range []customer.Request{
		cust("Ana", "Uno", 10, "2014-01-01"),
		cust("Bea", "Dos", 20, "2004-01-01"),
		cust("Cai", "Tres", 25, "1999-01-01"),
	} {
		rr, _ := e.do(t, http.MethodPost, "/api/v1/customers", e.admin, c)
		wantStatus(t, rr, http.StatusCreated)
	}

	rr, rep = e.do(t, http.MethodGet, "/api/v1/customers/kpis", e.admin, nil)
	wantStatus(t, rr, http.StatusOK)
	var got api.StatsResponse
	decodeData(t, rep, &got)
	want := api.StatsResponse{
		TotalCustomers: 3,
		AverageAge:     18.33,
		StdDev:         7.64,
		MinAge:         intp(10),
		MaxAge:         intp(25),
		MedianAge:      20,
		AgeDistribution: compute.Histogram{{Label: "0-17", Count: 1}, {Label: "18-29", Count: 2}},
		GeneratedAt: today,
		Message:     "statistics computed for 3 active customers",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("kpis (-want +got):\n%s", diff)
	}
}

func TestKPIs_Archive(t *testing.T) {
	m := metrics.New()
	e := newEnv(t, options{archive: archive.New(archive.NewMemory(), m)})

	rr, rep := e.do(t, http.MethodGet, "/api/v1/customers/kpis?archive=true", e.admin, nil)
	wantStatus(t, rr, http.StatusOK)
	var got api.StatsResponse
	decodeData(t, rep, &got)
	const wantKey = "reports/2024/03/20/20240320T100000.000Z.json"
	if got.ArchiveKey != wantKey {
		t.Errorf("archive_key: got %q, want %q", got.ArchiveKey, wantKey)
	}

	rr, rep = e.do(t, http.MethodGet, "/api/v1/customers/kpis/archive", e.admin, nil)
	wantStatus(t, rr, http.StatusOK)
	var keys []string
	decodeData(t, rep, &keys)
	if diff := cmp.Diff([]string{wantKey}, keys); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

func TestKPIs_ArchiveDisabled(t *testing.T) {
	e := newEnv(t, options{})

	for _, path := range []string{"/api/v1/customers/kpis?archive=true", "/api/v1/customers/kpis/archive"} {
		rr, rep := e.do(t, http.MethodGet, path, e.admin, nil)
		wantStatus(t, rr, http.StatusBadRequest)
		if rep.ErrorCode != api.CodeBusiness {
			t.Errorf("%s: error_code %q", path, rep.ErrorCode)
		}
	}
}

// --- middleware -------------------------------------------------------------

func TestRequestID(t *testing.T) {
	e := newEnv(t, options{})

	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if id := rr.Header().Get(api.RequestIDHeader); id == "" {
		t.Error("no generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(api.RequestIDHeader, "req-42")
	rr = httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	if id := rr.Header().Get(api.RequestIDHeader); id != "req-42" {
		t.Errorf("request id: got %q, want req-42", id)
	}
}

func TestCORS(t *testing.T) {
	e := newEnv(t, options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/customers", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	wantStatus(t, rr, http.StatusNoContent)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin: got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got allow header %q", got)
	}
}

func TestMetricsRecordRoutePattern(t *testing.T) {
	e := newEnv(t, options{})
	e.do(t, http.MethodGet, "/api/v1/customers/abc", e.admin, nil)

	mfs, err := e.m.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := metrics.Sum(mfs["clientledger_http_requests_total"], map[string]string{
		"route": "GET /api/v1/customers/{id}",
		"code":  "400",
	})
	if got != 1 {
		t.Errorf("requests for route: got %v, want 1", got)
	}
}
