package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/leadbridge/leadbridge/internal/errors"
)

// Codes for failures raised by the HTTP layer itself.
const (
	CodeUnauthorized     = "unauthorized"
	CodeRateLimited      = "rate_limited"
	CodeBodyTooLarge     = "body_too_large"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
)

// ErrorResponse is the envelope of every failed request. Details carries
// the upstream response body when the failure came from the CRM or the
// lead source; Status is the upstream HTTP status.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
	Status  int         `json:"status,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// writeError answers with the envelope matching err and logs it.
func (s *Server) writeError(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	code := errors.Code(err)
	body, upstreamStatus := errors.Details(err)

	resp := ErrorResponse{
		Success: false,
		Error:   err.Error(),
		Code:    code,
		Details: upstreamDetails(body),
		Status:  upstreamStatus,
	}

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		s.logger.ErrorWithContext(ctx, "request failed", "path", endpoint, "code", code, "error", err.Error())
	} else {
		s.logger.WarnWithContext(ctx, "request rejected", "path", endpoint, "code", code, "error", err.Error())
	}
	s.metrics.RecordError(code, endpoint, c.Request.Method)

	if wait := errors.RetryAfter(err); wait > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	_ = c.Error(err)
	c.JSON(status, resp)
}

// upstreamDetails embeds a JSON body as-is and any other body as a string.
func upstreamDetails(body string) interface{} {
	if body == "" {
		return nil
	}
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	return body
}
