package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

// Caller-facing codes returned in the {success:false, error:<code>} body.
const (
	ErrInvalidAccount          ErrorCode = "INVALID_ACCOUNT"
	ErrDuplicatedAirdrop       ErrorCode = "DUPLICATED_AIRDROP"
	ErrNotEnoughFunds          ErrorCode = "AIRDROP_NOT_ENOUGH_FUNDS"
	ErrSigningFailed           ErrorCode = "SIGNING_FAILED"
	ErrTransactionFailed       ErrorCode = "TRANSACTION_FAILED"
	ErrAirdrop                 ErrorCode = "AIRDROP_ERROR"
	ErrWrongAuthToken          ErrorCode = "WRONG_AUTH_TOKEN"
	ErrAuthTokenNotSet         ErrorCode = "AUTH_TOKEN_NOT_SET"
	ErrAirdropSecretSeedNotSet ErrorCode = "AIRDROP_SECRET_SEED_NOT_SET"
)

// Store-level codes, never sent to callers as-is.
const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf returns the code carried by err, or ErrAirdrop when err is not an APIError.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrAirdrop
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Code {
	case ErrInvalidAccount:
		return http.StatusBadRequest
	case ErrDuplicatedAirdrop, ErrConflict:
		return http.StatusConflict
	case ErrWrongAuthToken:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrNotEnoughFunds, ErrAuthTokenNotSet, ErrAirdropSecretSeedNotSet:
		return http.StatusServiceUnavailable
	case ErrSigningFailed, ErrTransactionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
