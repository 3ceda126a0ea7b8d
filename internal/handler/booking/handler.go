package booking

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/slotbook/internal/middleware"
	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/service/booking"
	apperrors "github.com/jwalitptl/slotbook/pkg/errors"
	"github.com/jwalitptl/slotbook/pkg/httputil"
	"github.com/jwalitptl/slotbook/pkg/validator"
)

const msgCreated = "Booking created successfully!"

// Handler serves the customer side of bookings. Every route requires an
// authenticated caller.
type Handler struct {
	service *booking.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *booking.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	bookings.Use(h.auth.Authenticate())
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.ListBookings)
	}
}

func (h *Handler) CreateBooking(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("authentication required"))
		return
	}

	var req model.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return
	}

	b, err := h.service.Create(c.Request.Context(), p, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": msgCreated,
		"booking": b,
	})
}

func (h *Handler) ListBookings(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("authentication required"))
		return
	}

	list, err := h.service.ListForUser(c.Request.Context(), p.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
