package serversdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL       = errors.New("sdk: server url is required")
	ErrContainerNotFound = errors.New("sdk: container file not found")
)

// Error codes returned by the sync backend.
const (
	CodeInvalidRequest = "E_INVALID_REQUEST"
	CodeAccessDenied   = "E_ACCESS_DENIED"
	CodeRateLimited    = "E_RATE_LIMITED"
	CodeSaveNotFound   = "E_SAVE_NOT_FOUND"
	CodeSaveListFailed = "E_SAVE_LIST_FAILED"
	CodeSavePutFailed  = "E_SAVE_PUT_FAILED"
	CodeSaveGetFailed  = "E_SAVE_GET_FAILED"
	CodeInternalError  = "E_INTERNAL_ERROR"
	CodeUnknownError   = "E_UNKNOWN_ERR"
)

// SDKError is implemented by all coded errors coming back from the API.
type SDKError interface {
	error
	ErrorCode() string
}

// BaseError is the wire shape of a backend error payload.
type BaseError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BaseError) ErrorCode() string {
	return e.Code
}

// APIError is an error response decoded from the backend.
type APIError struct {
	BaseError
}

func NewAPIError(code string, message string) *APIError {
	return &APIError{BaseError{Code: code, Message: message}}
}

// HasErrorCode reports whether err carries a backend error with the given
// code anywhere in its chain.
func HasErrorCode(err error, code string) bool {
	var sdkErr SDKError
	return errors.As(err, &sdkErr) && sdkErr.ErrorCode() == code
}

// handleAPIError folds the three failure modes of a request into one error:
// transport errors wrap the operation name, decoded backend errors come back
// as a wrapped *APIError, and undecodable error responses get dumped
// verbatim.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("sdk: %s: %w", operation, requestErr)
	}

	// got a response, but the api returned an error
	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("api error: %s %s", operation, resp.Dump())
	}

	return nil
}
