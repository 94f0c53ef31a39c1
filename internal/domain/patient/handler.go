package patient

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.List)
	api.GET("/patients/:id", h.Get)
	api.POST("/patients/:id/discharge", h.Discharge)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), Filter{
		Status: Status(c.QueryParam("status")),
		Ward:   c.QueryParam("ward"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// Get accepts either the record uuid or a PAT- identifier.
func (h *Handler) Get(c echo.Context) error {
	raw := c.Param("id")
	var (
		p   *Patient
		err error
	)
	if strings.HasPrefix(raw, "PAT-") {
		p, err = h.svc.GetByPatientID(c.Request().Context(), raw)
	} else {
		id, perr := uuid.Parse(raw)
		if perr != nil {
			return apperr.ToHTTP(apperr.Validation("invalid patient id %q", raw))
		}
		p, err = h.svc.Get(c.Request().Context(), id)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid patient id %q", c.Param("id")))
	}
	p, err := h.svc.Discharge(c.Request().Context(), auth.ActorFrom(c), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}
