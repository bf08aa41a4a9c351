package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/clientledger/clientledger/server/internal/auth"
	"github.com/clientledger/clientledger/server/internal/compute"
	"github.com/clientledger/clientledger/server/internal/customer"
)

// Stable error codes carried in the envelope.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeInconsistent   = "INCONSISTENT_AGE"
	CodeBusiness       = "BUSINESS_ERROR"
	CodeDuplicate      = "DUPLICATE_RESOURCE"
	CodeNotFound       = "RESOURCE_NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeInvalidArg     = "INVALID_ARGUMENT"
	CodeInternal       = "INTERNAL_SERVER_ERROR"
	tokenCodePrefix    = "TOKEN_"
	internalErrMessage = "an unexpected error occurred"
)

// requestError is a problem with the request itself: a malformed body or
// query parameter.
type requestError struct {
	code string
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(code, msg string) error { return &requestError{code: code, msg: msg} }

// fieldErrors is implemented by the validation errors of customer and auth.
type fieldErrors interface {
	error
	FieldErrors() map[string]string
}

// classify maps err to an HTTP status, error code, message and optional data.
func classify(err error) (int, string, string, any) {
	var (
		fe fieldErrors
		ie *compute.InconsistentAgeError
		te *auth.TokenError
		re *requestError
	)
	switch {
	case errors.As(err, &fe):
		return http.StatusBadRequest, CodeValidation, "validation failed", fe.FieldErrors()
	case errors.As(err, &ie):
		return http.StatusBadRequest, CodeInconsistent, ie.Error(), map[string]int{
			"provided_age": ie.Provided,
			"expected_age": ie.Expected,
		}
	case errors.As(err, &re):
		return http.StatusBadRequest, re.code, re.msg, nil
	case errors.Is(err, customer.ErrDuplicate), errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, CodeDuplicate, err.Error(), nil
	case errors.Is(err, customer.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error(), nil
	case errors.As(err, &te):
		return http.StatusUnauthorized, tokenCodePrefix + strings.ToUpper(string(te.Kind)), "token " + strings.ReplaceAll(string(te.Kind), "_", " "), nil
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrWrongPassword):
		return http.StatusUnauthorized, CodeUnauthorized, err.Error(), nil
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, CodeForbidden, err.Error(), nil
	case errors.Is(err, auth.ErrSamePassword), errors.Is(err, errArchiveDisabled):
		return http.StatusBadRequest, CodeBusiness, err.Error(), nil
	default:
		return http.StatusInternalServerError, CodeInternal, internalErrMessage, nil
	}
}

// fail writes the error envelope for err. It is also the auth.FailFunc used
// by the authentication middleware.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg, data := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		slog.Debug("api: request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "err", err)
	}
	jsonResp(w, status, envelope{
		Success:   false,
		Message:   msg,
		Data:      data,
		Timestamp: h.now(),
		ErrorCode: code,
		Path:      r.URL.Path,
	})
}
