package session

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/readmit/readmit/internal/domain/patient"
	"github.com/readmit/readmit/internal/platform/auth"
)

// Handler exposes sessions over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the session routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sessions", auth.RequireRole("admin", "physician", "nurse", "analyst"))
	g.POST("", h.Start)
	g.GET("/:id", h.Get)
	g.POST("/:id/events", h.Apply)
	g.DELETE("/:id", h.End)
}

func (h *Handler) Start(c echo.Context) error {
	v, err := h.svc.Start(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	v, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// Apply decodes one Event from the body and applies it.
func (h *Handler) Apply(c echo.Context) error {
	var ev Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event body")
	}
	v, err := h.svc.Apply(c.Request().Context(), c.Param("id"), ev)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) End(c echo.Context) error {
	if err := h.svc.End(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidTab), errors.Is(err, ErrInvalidRiskFilter), errors.Is(err, ErrUnknownEvent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
