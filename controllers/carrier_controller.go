package controllers

import (
	"net/http"

	"carrier-service/models"
	"carrier-service/services"

	"github.com/gin-gonic/gin"
)

// CarrierController manages per-user carrier accounts.
type CarrierController struct {
	shippingService services.ShippingService
}

func NewCarrierController(svc services.ShippingService) *CarrierController {
	return &CarrierController{shippingService: svc}
}

// ListCarriers handles GET /carriers
func (cc *CarrierController) ListCarriers(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	cfgs, svcErr := cc.shippingService.ListCarriers(ctx.Request.Context(), userID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"carriers": cfgs})
}

// UpsertCarrier handles PUT /carriers/:carrier/config
func (cc *CarrierController) UpsertCarrier(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req models.CarrierConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	cfg, svcErr := cc.shippingService.UpsertCarrier(ctx.Request.Context(), userID, ctx.Param("carrier"), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"carrier": cfg})
}

// DeactivateCarrier handles DELETE /carriers/:carrier/config
func (cc *CarrierController) DeactivateCarrier(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	if svcErr := cc.shippingService.DeactivateCarrier(ctx.Request.Context(), userID, ctx.Param("carrier")); svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// ValidateCredentials handles POST /carriers/:carrier/validate
func (cc *CarrierController) ValidateCredentials(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	valid, svcErr := cc.shippingService.ValidateCredentials(ctx.Request.Context(), userID, ctx.Param("carrier"))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"valid": valid})
}

// GetServices handles GET /carriers/:carrier/services
func (cc *CarrierController) GetServices(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	list, svcErr := cc.shippingService.GetServices(ctx.Request.Context(), userID, ctx.Param("carrier"))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"services": list})
}
