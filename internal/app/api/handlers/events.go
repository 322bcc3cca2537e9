package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/paycoord/internal/app/service/eventlog"
	"github.com/fatflowers/paycoord/pkg/response"
)

type EventSearcher interface {
	Search(ctx context.Context, req *eventlog.SearchRequest) (*eventlog.SearchResponse, error)
}

// ApiSearchEvents lists stored purchase progress events.
func ApiSearchEvents(s EventSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req eventlog.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := s.Search(c.Request.Context(), &req)
		if err != nil {
			badRequest(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterEventRoutes(r gin.IRouter, s EventSearcher) {
	r.POST("/search", ApiSearchEvents(s))
}
