package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/pkg/logctx"
	"github.com/fatflowers/paycoord/pkg/response"
)

// errorCode maps purchase errors to response codes. More specific sentinels
// come first: a ProviderError may wrap a context error.
func errorCode(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, purchase.ErrInvalidRequest):
		return response.APIResponseCodeInvalidPurchase
	case errors.Is(err, purchase.ErrNotReady), errors.Is(err, purchase.ErrClosed):
		return response.APIResponseCodeNotReady
	case errors.Is(err, purchase.ErrAlreadyProcessing):
		return response.APIResponseCodeAlreadyProcessing
	case errors.Is(err, purchase.ErrCancelled):
		return response.APIResponseCodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return response.APIResponseCodeTimeout
	case errors.Is(err, purchase.ErrConfiguration):
		return response.APIResponseCodeMisconfigured
	case errors.Is(err, purchase.ErrProvider):
		return response.APIResponseCodeProviderError
	default:
		return response.APIResponseCodeError
	}
}

func writeError(c *gin.Context, err error, data any) {
	code := errorCode(err)
	if code == response.APIResponseCodeError {
		logctx.FromGin(c, zap.S()).Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusOK, response.ErrorMsgT(code, err.Error(), data))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}
