package bedrequest

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bedtrack/bedtrack/internal/domain/patient"
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
	g := api.Group("/bed-requests")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/deny", h.Deny)
	g.POST("/:id/fulfill", h.Fulfill)
	g.POST("/:id/cancel", h.Cancel)
	g.DELETE("/:id", h.Delete)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.ToHTTP(apperr.Validation("invalid request id %q", c.Param("id")))
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Status: Status(c.QueryParam("status")),
		Ward:   c.QueryParam("ward"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if c.QueryParam("mine") == "true" {
		f.RequestedBy = auth.ActorFrom(c).ID
	} else {
		f.RequestedBy = c.QueryParam("requested_by")
	}
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// Get accepts either the record uuid or a REQ- identifier.
func (h *Handler) Get(c echo.Context) error {
	raw := c.Param("id")
	var (
		r   *Request
		err error
	)
	if strings.HasPrefix(raw, "REQ-") {
		r, err = h.svc.GetByRequestID(c.Request().Context(), raw)
	} else {
		id, perr := parseID(c)
		if perr != nil {
			return perr
		}
		r, err = h.svc.Get(c.Request().Context(), id)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Create(c.Request().Context(), auth.ActorFrom(c), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Update(c.Request().Context(), auth.ActorFrom(c), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

type approveRequest struct {
	BedID string `json:"bed_id"`
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	bedID, err := uuid.Parse(req.BedID)
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid bed id %q", req.BedID))
	}
	r, err := h.svc.Approve(c.Request().Context(), auth.ActorFrom(c), id, bedID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Deny(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Deny(c.Request().Context(), auth.ActorFrom(c), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

type fulfilment struct {
	Request *Request         `json:"request"`
	Patient *patient.Patient `json:"patient"`
}

func (h *Handler) Fulfill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, p, err := h.svc.Fulfill(c.Request().Context(), auth.ActorFrom(c), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, fulfilment{Request: r, Patient: p})
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Cancel(c.Request().Context(), auth.ActorFrom(c), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.SoftDelete(c.Request().Context(), auth.ActorFrom(c), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
