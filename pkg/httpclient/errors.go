package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
)

// UpstreamError is a 5xx answer from an upstream, returned by CircuitBreakerClient.
type UpstreamError struct {
	Name   string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s server error %d: %s", e.Name, e.Status, e.Body)
}

// Unwrap lets errors.Is(err, apperrors.ErrServiceUnavail) match upstream outages.
func (e *UpstreamError) Unwrap() error {
	return apperrors.ErrServiceUnavail
}

// upstreamErrorBody covers the error shapes seen upstream: the WordPress REST
// shape {"code","message"} used by WooCommerce and CoCart, and the nested
// {"error":{"code","message"}} shape used by gateways.
type upstreamErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads a non-2xx response and translates it into an AppError.
// The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var body upstreamErrorBody
	if json.Unmarshal(bodyBytes, &body) == nil {
		if body.Error != nil && body.Error.Message != "" {
			return mapDownstreamError(resp.StatusCode, body.Error.Code, body.Error.Message, serviceName)
		}
		if body.Message != "" {
			return mapDownstreamError(resp.StatusCode, body.Code, body.Message, serviceName)
		}
	}

	return mapDownstreamError(resp.StatusCode, "", string(bodyBytes), serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusGone:
		return apperrors.Gone(qualifiedMsg)
	case status == http.StatusUnprocessableEntity:
		return apperrors.PaymentFailed(qualifiedMsg)
	case status >= 500:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	default:
		if code == "" {
			code = "UPSTREAM_ERROR"
		}
		return &apperrors.AppError{Code: code, Message: qualifiedMsg, Status: status}
	}
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// IsUnavailable reports whether err means the upstream could not be reached or is failing.
func IsUnavailable(err error) bool {
	return errors.Is(err, apperrors.ErrServiceUnavail) || errors.Is(err, ErrCircuitOpen)
}
