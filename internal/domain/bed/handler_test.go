package bed_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/domain/bed/bedtest"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
)

func newTestHandler() (*bed.Handler, *bedtest.Repo, *echo.Echo) {
	repo := bedtest.NewRepo()
	svc := bed.NewService(repo, auth.DefaultPolicy(), realtime.Nop{}, zerolog.Nop())
	return bed.NewHandler(svc), repo, echo.New()
}

func newContext(e *echo.Echo, method, body string, actor auth.Actor) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Create(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := newContext(e, http.MethodPost, `{"bed_number":"ICU-001","ward":"ICU","equipment_type":"Ventilator"}`, manager)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var b bed.Bed
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	if b.EquipmentType != "Ventilator" || b.Status != bed.StatusAvailable {
		t.Errorf("unexpected bed %+v", b)
	}
}

func TestHandler_TransitionInvalidIs409(t *testing.T) {
	h, repo, e := newTestHandler()
	b := repo.Add(&bed.Bed{BedNumber: "ICU-001", Ward: "ICU", Status: bed.StatusMaintenance})

	c, _ := newContext(e, http.MethodPut, `{"status":"reserved"}`, manager)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())

	err := h.Transition(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", he.Code)
	}
	if body := he.Message.(apperr.Body); body.Error != apperr.KindInvalidTransition {
		t.Errorf("expected invalid_transition, got %s", body.Error)
	}
}

func TestHandler_GetInvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newContext(e, http.MethodGet, "", manager)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListFilters(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.Add(&bed.Bed{BedNumber: "ICU-001", Ward: "ICU", Status: bed.StatusAvailable})
	repo.Add(&bed.Bed{BedNumber: "GW-001", Ward: "General Ward", Status: bed.StatusAvailable})

	req := httptest.NewRequest(http.MethodGet, "/?ward=ICU", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []bed.Bed `json:"data"`
		Total int       `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Data[0].BedNumber != "ICU-001" {
		t.Errorf("unexpected list %+v", resp)
	}
}

func TestHandler_Reconcile(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := newContext(e, http.MethodPost, `{"Maternity":2}`, admin)

	if err := h.Reconcile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report bed.ReconcileReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Created["Maternity"]) != 2 || report.Created["Maternity"][0] != "MAT-001" {
		t.Errorf("unexpected report %+v", report)
	}
}
