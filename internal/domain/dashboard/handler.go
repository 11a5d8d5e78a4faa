package dashboard

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/readmit/readmit/internal/domain/risk"
	"github.com/readmit/readmit/internal/platform/auth"
)

// Handler serves the dashboard tab and the risk classifier.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	read.GET("/dashboard", h.GetDashboard)
	read.GET("/risk/classify", h.Classify)
}

func (h *Handler) GetDashboard(c echo.Context) error {
	vm, err := h.svc.Overview(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, vm)
}

// Classify exposes the risk thresholds so clients never reimplement them.
func (h *Handler) Classify(c echo.Context) error {
	score, err := strconv.ParseFloat(c.QueryParam("score"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "score must be a number")
	}
	cl := risk.Classify(score)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"score":   cl.Score,
		"label":   cl.Label,
		"tier":    cl.Tier,
		"percent": cl.Percent(),
	})
}
