package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/settings", h.Get)
	api.PUT("/settings", h.Update)
	api.POST("/settings/reload", h.Reload, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Current())
}

// updateRequest fields left out of the body keep their current value.
type updateRequest struct {
	ReservationTTLHours  *float64        `json:"reservation_ttl_hours"`
	CriticalOccupancyPct *int            `json:"critical_occupancy_pct"`
	EmergencyWard        *string         `json:"emergency_ward"`
	WardCapacity         *map[string]int `json:"ward_capacity"`
}

func (h *Handler) Update(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := h.store.Current()
	if req.ReservationTTLHours != nil {
		in.ReservationTTLHours = *req.ReservationTTLHours
	}
	if req.CriticalOccupancyPct != nil {
		in.CriticalOccupancyPct = *req.CriticalOccupancyPct
	}
	if req.EmergencyWard != nil {
		in.EmergencyWard = *req.EmergencyWard
	}
	if req.WardCapacity != nil {
		in.WardCapacity = *req.WardCapacity
	}
	s, err := h.store.Update(c.Request().Context(), auth.ActorFrom(c), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Reload(c echo.Context) error {
	s, err := h.store.Reload(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(apperr.Internal("reload settings", err))
	}
	return c.JSON(http.StatusOK, s)
}
