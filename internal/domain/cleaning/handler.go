package cleaning

import (
	"net/http"

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
	jobs := api.Group("/cleaning/jobs")
	jobs.GET("", h.ListJobs)
	jobs.GET("/:id", h.GetJob)
	jobs.POST("/:id/start", h.Start)
	jobs.POST("/:id/assign", h.Assign)
	jobs.POST("/:id/complete", h.Complete)
	jobs.DELETE("/:id", h.Delete)

	staff := api.Group("/cleaning/staff")
	staff.GET("", h.ListStaff)
	staff.GET("/:id", h.GetStaff)
	staff.POST("", h.CreateStaff)
}

func parseUUID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.ToHTTP(apperr.Validation("invalid %s id %q", what, raw))
	}
	return id, nil
}

func (h *Handler) ListJobs(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := JobFilter{
		Status: JobStatus(c.QueryParam("status")),
		Ward:   c.QueryParam("ward"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if raw := c.QueryParam("staff_id"); raw != "" {
		id, err := parseUUID(raw, "staff")
		if err != nil {
			return err
		}
		f.StaffID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetJob(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "cleaning job")
	if err != nil {
		return err
	}
	j, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, j)
}

func (h *Handler) Start(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "cleaning job")
	if err != nil {
		return err
	}
	j, err := h.svc.Start(c.Request().Context(), auth.ActorFrom(c), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, j)
}

type assignRequest struct {
	StaffID string `json:"staff_id"`
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "cleaning job")
	if err != nil {
		return err
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	staffID, err := parseUUID(req.StaffID, "staff")
	if err != nil {
		return err
	}
	j, err := h.svc.Assign(c.Request().Context(), auth.ActorFrom(c), id, staffID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, j)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "cleaning job")
	if err != nil {
		return err
	}
	j, err := h.svc.Complete(c.Request().Context(), auth.ActorFrom(c), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, j)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "cleaning job")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), auth.ActorFrom(c), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListStaff(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListStaff(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetStaff(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "staff")
	if err != nil {
		return err
	}
	m, err := h.svc.GetStaff(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var in StaffInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.CreateStaff(c.Request().Context(), auth.ActorFrom(c), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}
