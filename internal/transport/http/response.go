package httptransport

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-sentinel/internal/domain/analyzer"
	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/history"
	"ai-sentinel/internal/platform/errors"
)

// APIResponse is the envelope of every JSON endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a successful envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondError writes a failed envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondFailure maps a domain error onto a status code and writes it.
func RespondFailure(c *gin.Context, err error) {
	_ = c.Error(err)
	RespondError(c, statusFor(err), err.Error(), gin.H{"kind": kindOf(err)})
}

func statusFor(err error) int {
	var validation *detection.ValidationError
	switch {
	case stderrors.Is(err, analyzer.ErrBusy), stderrors.Is(err, analyzer.ErrNotIdle):
		return http.StatusConflict
	case stderrors.Is(err, analyzer.ErrNoFile):
		return http.StatusBadRequest
	case stderrors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case stderrors.As(err, &validation), errors.IsKind(err, errors.KindValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	if kind := detection.FailureKind(err); kind != errors.KindUnknown {
		return string(kind)
	}
	return string(errors.KindOf(err))
}
