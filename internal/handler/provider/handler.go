package provider

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/slotbook/internal/middleware"
	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/service/booking"
	"github.com/jwalitptl/slotbook/internal/service/catalog"
	"github.com/jwalitptl/slotbook/pkg/auth"
	apperrors "github.com/jwalitptl/slotbook/pkg/errors"
	"github.com/jwalitptl/slotbook/pkg/httputil"
	"github.com/jwalitptl/slotbook/pkg/validator"
)

// Handler serves the provider console: dashboard, incoming bookings and
// the provider's own services.
type Handler struct {
	bookings *booking.Service
	catalog  *catalog.Service
	auth     *middleware.AuthMiddleware
}

func NewHandler(bookings *booking.Service, catalog *catalog.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{bookings: bookings, catalog: catalog, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	provider := r.Group("/provider")
	provider.Use(h.auth.Authenticate(), h.auth.RequireRole(auth.RoleProvider))
	{
		provider.GET("/dashboard", h.GetDashboard)
		provider.GET("/bookings", h.ListBookings)
		provider.PUT("/bookings/:id/status", h.UpdateBookingStatus)

		provider.GET("/services", h.ListServices)
		provider.POST("/services", h.CreateService)
		provider.PUT("/services/:id", h.UpdateService)
		provider.DELETE("/services/:id", h.DeleteService)
	}
}

func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("authentication required"))
	}
	return p, ok
}

func (h *Handler) GetDashboard(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	dashboard, err := h.bookings.Dashboard(c.Request.Context(), p.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *Handler) ListBookings(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.bookings.ListForProvider(c.Request.Context(), p.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req model.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return
	}

	b, err := h.bookings.UpdateStatus(c.Request.Context(), p, c.Param("id"), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) ListServices(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.catalog.ListForProvider(c.Request.Context(), p.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateService(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req model.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return
	}

	svc, err := h.catalog.Create(c.Request.Context(), p, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    svc,
		"message": "Service created successfully",
	})
}

func (h *Handler) UpdateService(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req model.UpdateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return
	}

	svc, err := h.catalog.Update(c.Request.Context(), p, c.Param("id"), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    svc,
		"message": "Service updated successfully",
	})
}

func (h *Handler) DeleteService(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Service deleted successfully",
	})
}
