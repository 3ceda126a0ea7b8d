package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/service/catalog"
	"github.com/jwalitptl/slotbook/pkg/httputil"
	"github.com/jwalitptl/slotbook/pkg/validator"
)

// Handler serves the public service catalogue and slot availability.
type Handler struct {
	service *catalog.Service
}

func NewHandler(service *catalog.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	services := r.Group("/services")
	{
		services.GET("", h.ListServices)
		services.GET("/categories", h.ListCategories)
		services.GET("/search", h.SearchServices)
		services.GET("/:id", h.GetService)
		services.GET("/:id/slots", h.GetAvailableSlots)
	}
}

func (h *Handler) ListServices(c *gin.Context) {
	var q model.ListServicesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return
	}

	services, err := h.service.List(c.Request.Context(), &q)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.service.Categories(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
		"count":      len(categories),
	})
}

func (h *Handler) SearchServices(c *gin.Context) {
	var q model.SearchServicesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return
	}

	services, err := h.service.Search(c.Request.Context(), &q)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"services": services,
		"count":    len(services),
		"query":    q,
	})
}

func (h *Handler) GetService(c *gin.Context) {
	svc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *Handler) GetAvailableSlots(c *gin.Context) {
	slots, err := h.service.AvailableSlots(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"availableSlots": slots})
}
