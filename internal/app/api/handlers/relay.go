package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/paycoord/internal/platform/relay"
	"github.com/fatflowers/paycoord/pkg/response"
)

const (
	defaultPollWait = 25 * time.Second
	maxPollWait     = 60 * time.Second
)

// Relay is the device side of the relay bridge.
type Relay interface {
	Next(ctx context.Context) (*relay.Call, error)
	Resolve(id string, reply relay.Reply) error
	Dispatch(ev *relay.DeviceEvent) error
}

// ApiRelayNextCall long-polls for the next SDK call. It answers 204 when
// nothing was queued within the wait window.
func ApiRelayNextCall(b Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		wait := defaultPollWait
		if s := c.Query("wait"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				badRequest(c, errors.New("wait must be a positive duration"))
				return
			}
			wait = min(d, maxPollWait)
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		defer cancel()
		call, err := b.Next(ctx)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, response.OKT(call))
	}
}

func ApiRelayReply(b Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		var reply relay.Reply
		if err := c.ShouldBindJSON(&reply); err != nil {
			badRequest(c, err)
			return
		}
		if err := b.Resolve(c.Param("id"), reply); err != nil {
			c.JSON(http.StatusOK, response.ErrorMsgT[any](response.APIResponseCodeNotFound, err.Error(), nil))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// ApiRelayEvent accepts store listener events pushed by the device.
func ApiRelayEvent(b Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev relay.DeviceEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			badRequest(c, err)
			return
		}
		if err := b.Dispatch(&ev); err != nil {
			badRequest(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterRelayRoutes(r gin.IRouter, b Relay) {
	r.GET("/calls", ApiRelayNextCall(b))
	r.POST("/calls/:id", ApiRelayReply(b))
	r.POST("/events", ApiRelayEvent(b))
}
