package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bedtrack/bedtrack/internal/config"
	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/domain/bed/bedtest"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/db"
)

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "core", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "workflows"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2026-03-01 09:30:00") {
		t.Errorf("applied row = %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("pending row = %q", lines[3])
	}
}

func TestPrintReconcileReport_SortedByWard(t *testing.T) {
	var buf bytes.Buffer
	printReconcileReport(&buf, &bed.ReconcileReport{
		Created: map[string][]string{"ICU": {"BED-011", "BED-012"}},
		Removed: map[string][]string{"General Ward": {"BED-004"}},
		Skipped: map[string]int{"General Ward": 1},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[1]); fields[0] != "General" || fields[3] != "1" || fields[4] != "1" {
		t.Errorf("general ward row = %q", lines[1])
	}
	if fields := strings.Fields(lines[2]); fields[0] != "ICU" || fields[1] != "2" {
		t.Errorf("icu row = %q", lines[2])
	}
}

func TestAuthMiddleware_Development(t *testing.T) {
	cfg := &config.Config{Env: "development"}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-Role", auth.RoleWardStaff)
	req.Header.Set("X-Dev-Ward", "ICU")
	c := e.NewContext(req, httptest.NewRecorder())

	var got auth.Actor
	err := authMiddleware(cfg)(func(c echo.Context) error {
		got = auth.ActorFrom(c)
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Role != auth.RoleWardStaff || got.Ward != "ICU" {
		t.Errorf("actor = %+v", got)
	}
}

func TestAuthMiddleware_JWTRejectsMissingToken(t *testing.T) {
	cfg := &config.Config{Env: "production", AuthSigningKey: "test-secret"}
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	called := false
	err := authMiddleware(cfg)(func(echo.Context) error {
		called = true
		return nil
	})(c)
	if called {
		t.Fatal("handler must not run without a token")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("err = %v, want 401", err)
	}
}

func TestBedInventory_Stats(t *testing.T) {
	repo := bedtest.NewRepo()
	repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusOccupied})
	repo.Add(&bed.Bed{BedNumber: "BED-002", Ward: "ICU", Status: bed.StatusAvailable})
	repo.Add(&bed.Bed{BedNumber: "BED-003", Ward: "ICU", Status: bed.StatusAvailable})

	counts, err := bedInventory{repo}.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("counts = %+v", counts)
	}
	if counts[0].Status != bed.StatusAvailable || counts[0].Count != 2 {
		t.Errorf("available = %+v", counts[0])
	}
}
