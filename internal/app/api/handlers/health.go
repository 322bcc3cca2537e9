package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/paycoord/internal/app/service/checkout"
	"github.com/fatflowers/paycoord/pkg/response"
)

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "ok"}))
}

// Readyz answers 503 until at least one provider finished setup.
func Readyz(mgr checkout.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := mgr.Status()
		if !st.Ready {
			c.JSON(http.StatusServiceUnavailable, response.ErrorT(response.APIResponseCodeNotReady, st))
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

func RegisterHealthRoutes(r gin.IRouter, mgr checkout.Manager) {
	r.GET("/healthz", Healthz)
	r.GET("/readyz", Readyz(mgr))
}
