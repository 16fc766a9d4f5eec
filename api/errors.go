package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geopods/podflow/internal/errs"
)

// httpStatusCode maps a typed evaluation-kernel error (spec.md §7) to its
// nearest HTTP status: the invalid-input kinds and invalidRequest -> 400,
// UpstreamUnavailable -> 502, Cancelled -> 408, anything else -> 500.
func httpStatusCode(err error) int {
	switch err.(type) {
	case *errs.InvalidCoordinates, *errs.DimensionMismatch, *errs.ConfigurationError, *errs.InterpolationUnavailable, *invalidRequest:
		return http.StatusBadRequest
	case *errs.UpstreamUnavailable:
		return http.StatusBadGateway
	case *errs.Cancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// abortOnError maps err to a status and aborts the context with it, then
// reports whether the context was aborted so callers can write `if
// abortOnError(ctx, err) { return }`.
func abortOnError(ctx *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	ctx.AbortWithError(httpStatusCode(err), err)
	return true
}
