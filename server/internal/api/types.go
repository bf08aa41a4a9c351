package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clientledger/clientledger/server/internal/auth"
	"github.com/clientledger/clientledger/server/internal/compute"
	"github.com/clientledger/clientledger/server/internal/customer"
)

// envelope wraps every response body.
type envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	ErrorCode string    `json:"error_code,omitempty"`
	Path      string    `json:"path,omitempty"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"` // UP | DEGRADED
	Store  string `json:"store"`  // ok | error
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the body of POST /api/v1/auth/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// SessionResponse describes an issued token, or a newly registered account
// when Token is empty.
type SessionResponse struct {
	Token     string    `json:"token,omitempty"`
	TokenType string    `json:"token_type,omitempty"`
	ExpiresIn int64     `json:"expires_in,omitempty"` // seconds
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
}

func sessionResponse(s auth.Session) SessionResponse {
	return SessionResponse{
		Token:     s.Token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.TTL / time.Second),
		Email:     s.User.Email,
		FullName:  s.User.FirstName + " " + s.User.LastName,
		Role:      string(s.User.Role),
		IssuedAt:  s.IssuedAt,
	}
}

// ValidateResponse is the payload for GET /api/v1/auth/validate.
type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// BatchRequest is the body of the batch endpoints.
type BatchRequest struct {
	Customers []customer.Request `json:"customers"`
}

// StatsResponse is the payload for GET /api/v1/customers/kpis and for every
// message on the KPI stream. Floats are rounded to two decimals.
type StatsResponse struct {
	TotalCustomers  int               `json:"total_customers"`
	AverageAge      float64           `json:"average_age"`
	StdDev          float64           `json:"standard_deviation"`
	MinAge          *int              `json:"min_age"`
	MaxAge          *int              `json:"max_age"`
	MedianAge       float64           `json:"median_age"`
	AgeDistribution compute.Histogram `json:"age_distribution"`
	GeneratedAt     time.Time         `json:"generated_at"`
	Message         string            `json:"message"`
	ArchiveKey      string            `json:"archive_key,omitempty"`
}

// NewStatsResponse renders st for clients.
func NewStatsResponse(st customer.Stats) StatsResponse {
	r := StatsResponse{
		TotalCustomers:  st.Count,
		AverageAge:      round2(st.Mean),
		StdDev:          round2(st.StdDev),
		MedianAge:       round2(st.Median),
		AgeDistribution: st.Histogram,
		GeneratedAt:     st.GeneratedAt,
		Message:         st.Message,
	}
	if st.Count > 0 {
		lo, hi := st.Min, st.Max
		r.MinAge, r.MaxAge = &lo, &hi
	}
	return r
}

func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}
