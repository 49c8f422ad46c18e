package routes

import (
	"net/http"

	"carrier-service/controllers"
	"carrier-service/metrics"
	"carrier-service/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterSystemRoutes exposes health and Prometheus endpoints.
func RegisterSystemRoutes(r *gin.Engine, serviceName string) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
}

// RegisterCarrierRoutes sets up carrier account, rating and shipment routes.
func RegisterCarrierRoutes(r *gin.Engine, cc *controllers.CarrierController, sc *controllers.ShippingController, jwtSecret []byte) {
	auth := middleware.Auth(jwtSecret)

	carriers := r.Group("/carriers")
	carriers.Use(auth)
	carriers.GET("", cc.ListCarriers)
	carriers.PUT("/:carrier/config", cc.UpsertCarrier)
	carriers.DELETE("/:carrier/config", cc.DeactivateCarrier)
	carriers.POST("/:carrier/validate", cc.ValidateCredentials)
	carriers.GET("/:carrier/services", cc.GetServices)
	carriers.POST("/:carrier/rates", sc.GetRates)
	carriers.POST("/:carrier/shipments", sc.CreateShipment)
	carriers.POST("/:carrier/shipments/:shipment_id/label", sc.PurchaseLabel)
	carriers.GET("/:carrier/track/:tracking_number", sc.TrackShipment)

	shipping := r.Group("/shipping")
	shipping.Use(auth)
	shipping.POST("/rates", sc.GetAllRates)
	shipping.POST("/rates/best", sc.FindBestRate)

	shipments := r.Group("/shipments")
	shipments.Use(auth)
	shipments.GET("", sc.ListShipments)
}
