package syncsdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoRefreshToken = errors.New("sdk: refresh token missing")
	ErrNoServerURL    = errors.New("sdk: server url missing")
	ErrInvalidEmail   = errors.New("sdk: invalid email")
	ErrInvalidToken   = errors.New("sdk: invalid token")
	ErrNoEndpoint     = errors.New("sdk: knowledge base has no endpoint")
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST"
	CodeRateLimited    = "E_RATE_LIMITED"
	CodeInternalError  = "E_INTERNAL_ERROR"
	CodeAccessDenied   = "E_ACCESS_DENIED"
	CodeUnknownError   = "E_UNKNOWN_ERR"

	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS" // token invalid, expired or malformed
	CodeAuthTokenRefreshFailed = "E_AUTH_TOKEN_REFRESH_FAILED"

	CodeKbNotFound      = "E_KB_NOT_FOUND"
	CodeKbConflict      = "E_KB_CONFLICT" // pushed change based on an outdated version
	CodeKbQuotaExceeded = "E_KB_QUOTA_EXCEEDED"
)

// SDKError is implemented by errors returned from the server.
type SDKError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

// APIError is the error body of every api endpoint: {"code": ..., "error": ...}
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

func (e *APIError) ErrorCode() string    { return e.Code }
func (e *APIError) ErrorMessage() string { return e.Message }

var _ SDKError = (*APIError)(nil)

// IsAuthError reports whether err means the credentials were rejected.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == 401 || apiErr.Code == CodeAuthInvalidCredentials
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			apiErr.Status = resp.StatusCode
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("%s: %w", operation, &APIError{
			Code:    CodeUnknownError,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Status:  resp.StatusCode,
		})
	}

	return nil
}
