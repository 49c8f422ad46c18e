package controllers

import (
	"net/http"
	"strconv"

	"carrier-service/middleware"
	"carrier-service/models"
	"carrier-service/services"

	"github.com/gin-gonic/gin"
)

// ShippingController handles HTTP requests for rating and shipments.
type ShippingController struct {
	shippingService services.ShippingService
}

// NewShippingController creates a new ShippingController.
func NewShippingController(svc services.ShippingService) *ShippingController {
	return &ShippingController{shippingService: svc}
}

// GetAllRates handles POST /shipping/rates
func (sc *ShippingController) GetAllRates(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var details models.ShipmentDetails
	if err := ctx.ShouldBindJSON(&details); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	rates, svcErr := sc.shippingService.GetAllRates(ctx.Request.Context(), userID, details)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"rates": rates})
}

// FindBestRate handles POST /shipping/rates/best
func (sc *ShippingController) FindBestRate(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var details models.ShipmentDetails
	if err := ctx.ShouldBindJSON(&details); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	best, svcErr := sc.shippingService.FindBestRate(ctx.Request.Context(), userID, details)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, models.BestRateResponse{Rate: best})
}

// GetRates handles POST /carriers/:carrier/rates
func (sc *ShippingController) GetRates(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var details models.ShipmentDetails
	if err := ctx.ShouldBindJSON(&details); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	rates, svcErr := sc.shippingService.GetRates(ctx.Request.Context(), userID, ctx.Param("carrier"), details)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"rates": rates})
}

// CreateShipment handles POST /carriers/:carrier/shipments
func (sc *ShippingController) CreateShipment(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req models.CreateShipmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	shipment, svcErr := sc.shippingService.CreateShipment(ctx.Request.Context(), userID, ctx.Param("carrier"), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"shipment": shipment})
}

// PurchaseLabel handles POST /carriers/:carrier/shipments/:shipment_id/label
func (sc *ShippingController) PurchaseLabel(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	label, svcErr := sc.shippingService.PurchaseLabel(ctx.Request.Context(), userID, ctx.Param("carrier"), ctx.Param("shipment_id"))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"label": label})
}

// TrackShipment handles GET /carriers/:carrier/track/:tracking_number
func (sc *ShippingController) TrackShipment(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	trackingNumber := ctx.Param("tracking_number")
	if trackingNumber == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Tracking number is required"})
		return
	}

	status, svcErr := sc.shippingService.TrackShipment(ctx.Request.Context(), userID, ctx.Param("carrier"), trackingNumber)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, status)
}

// ListShipments handles GET /shipments
func (sc *ShippingController) ListShipments(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(ctx)

	list, total, svcErr := sc.shippingService.ListShipments(ctx.Request.Context(), userID, page, limit)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, models.ShipmentListResponse{Shipments: list, Total: total, Page: page, Limit: limit})
}

func requireUser(ctx *gin.Context) (string, bool) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

func respondError(ctx *gin.Context, svcErr *services.ServiceError) {
	body := gin.H{"error": svcErr.Message}
	if svcErr.Code != "" {
		body["code"] = svcErr.Code
	}
	ctx.JSON(svcErr.StatusCode, body)
}

// parsePaginationParams extracts and validates page/limit query params.
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const maxLimit = 100
	pageInt, limitInt := 1, 20
	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		pageInt = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("limit", "20")); err == nil && l > 0 {
		if l > maxLimit {
			l = maxLimit
		}
		limitInt = l
	}
	return pageInt, limitInt
}
