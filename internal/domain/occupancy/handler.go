package occupancy

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/occupancy")
	g.GET("/summary", h.Summary)
	g.GET("/export.xlsx", h.Export)
}

func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(apperr.Internal("occupancy summary", err))
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Export(c echo.Context) error {
	data, err := h.svc.ExportXLSX(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(apperr.Internal("occupancy export", err))
	}
	name := fmt.Sprintf("occupancy-%s.xlsx", time.Now().UTC().Format("20060102-1504"))
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+name)
	return c.Blob(http.StatusOK, xlsxMIME, data)
}
