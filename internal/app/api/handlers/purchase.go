package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/paycoord/internal/app/service/checkout"
	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/pkg/response"
)

func ApiPurchaseStatus(mgr checkout.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(mgr.Status()))
	}
}

// ApiPurchaseSetup configures the providers. A provider that fails setup is
// reported together with the resulting status; the others stay usable.
func ApiPurchaseSetup(mgr checkout.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := mgr.Setup(c.Request.Context()); err != nil {
			writeError(c, err, mgr.Status())
			return
		}
		c.JSON(http.StatusOK, response.OKT(mgr.Status()))
	}
}

// ApiPurchaseStart blocks until the purchase completes on the device.
func ApiPurchaseStart(mgr checkout.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkout.StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := mgr.Start(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// ApiPurchaseFinish acknowledges a purchase. An empty body finishes the
// purchase currently in flight.
func ApiPurchaseFinish(mgr checkout.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var res *purchase.Result
		if c.Request.ContentLength > 0 {
			res = &purchase.Result{}
			if err := c.ShouldBindJSON(res); err != nil {
				badRequest(c, err)
				return
			}
		}
		if err := mgr.Finish(c.Request.Context(), res); err != nil {
			writeError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, response.OKT(mgr.Status()))
	}
}

func ApiPurchaseReset(mgr checkout.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		mgr.Reset(c.Request.Context())
		c.JSON(http.StatusOK, response.OKT(mgr.Status()))
	}
}

func ApiPurchaseUnfinished(mgr checkout.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		items := mgr.Unfinished()
		if items == nil {
			items = []*purchase.Unfinished{}
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

func ApiPurchaseCatalog(mgr checkout.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(mgr.Catalog()))
	}
}

func RegisterPurchaseRoutes(r gin.IRouter, mgr checkout.Manager) {
	r.GET("/status", ApiPurchaseStatus(mgr))
	r.POST("/setup", ApiPurchaseSetup(mgr))
	r.POST("/start", ApiPurchaseStart(mgr))
	r.POST("/finish", ApiPurchaseFinish(mgr))
	r.POST("/reset", ApiPurchaseReset(mgr))
	r.GET("/unfinished", ApiPurchaseUnfinished(mgr))
	r.GET("/catalog", ApiPurchaseCatalog(mgr))
}
