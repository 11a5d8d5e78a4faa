package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/pkg/pagination"
)

// Handler provides HTTP handlers for the patient list and detail overlay.
type Handler struct {
	svc *Service
}

// NewHandler creates a new patient handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the patient routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id", h.GetPatient)
}

// ListPatients returns the filtered working set, paginated.
func (h *Handler) ListPatients(c echo.Context) error {
	criteria := Criteria{
		Search: c.QueryParam("search"),
		Risk:   c.QueryParam("risk"),
	}
	items, err := h.svc.Search(c.Request().Context(), criteria)
	if errors.Is(err, ErrInvalidRiskFilter) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Paginate(items, pg))
}

// GetPatient returns the detail overlay for one patient.
func (h *Handler) GetPatient(c echo.Context) error {
	d, err := h.svc.GetDetail(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
