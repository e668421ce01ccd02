package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorNotConfigured       = "LINKER_NOT_CONFIGURED"
	ServiceErrorMissingParameters   = "LINKER_MISSING_PARAMETERS"
	ServiceErrorProviderNotFound    = "LINKER_PROVIDER_NOT_FOUND"
	ServiceErrorProviderUnreachable = "LINKER_PROVIDER_UNREACHABLE"
	ServiceErrorProviderRejected    = "LINKER_PROVIDER_REJECTED"
	ServiceErrorSignatureInvalid    = "LINKER_SIGNATURE_INVALID"
	ServiceErrorStateDecodeFailed   = "LINKER_STATE_DECODE_FAILED"
	ServiceErrorInternal            = "LINKER_INTERNAL_ERROR"
)

func NotConfiguredError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorNotConfigured)
}

func MissingParametersError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorMissingParameters)
}

func ProviderUnreachableError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadGateway).
		WithTextCode(ServiceErrorProviderUnreachable)
}

// ProviderRejectedError carries the provider's raw error body in metadata for
// log sinks; the message stays generic so secrets and provider internals do
// not leak through API responses.
func ProviderRejectedError(message string, statusCode int, body string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadGateway).
		WithTextCode(ServiceErrorProviderRejected).
		WithMetadata(map[string]any{
			"provider_status": statusCode,
			"provider_body":   strings.TrimSpace(body),
		})
}

func SignatureInvalidError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorSignatureInvalid)
}

func StateDecodeFailedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorStateDecodeFailed)
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not configured"), strings.Contains(msg, "is required for provider"):
		return ensureServiceErrorEnvelope(NotConfiguredError(err.Error()))
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorProviderNotFound)
	case strings.Contains(msg, "handshake state"), strings.Contains(msg, "correlation state"):
		return ensureServiceErrorEnvelope(StateDecodeFailedError(err.Error()))
	case strings.Contains(msg, "signature"):
		return ensureServiceErrorEnvelope(SignatureInvalidError(err.Error()))
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"), strings.Contains(msg, "connection refused"):
		return ensureServiceErrorEnvelope(ProviderUnreachableError(err.Error()))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorMissingParameters)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorMissingParameters
	case goerrors.CategoryNotFound:
		return ServiceErrorProviderNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorSignatureInvalid
	case goerrors.CategoryOperation:
		return ServiceErrorProviderRejected
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusBadRequest
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
