package occupancy_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bedtrack/bedtrack/internal/domain/alert"
	"github.com/bedtrack/bedtrack/internal/domain/alert/alerttest"
	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/domain/bed/bedtest"
	"github.com/bedtrack/bedtrack/internal/domain/occupancy"
	"github.com/bedtrack/bedtrack/internal/domain/settings"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
	"github.com/bedtrack/bedtrack/internal/platform/realtime/realtimetest"
)

type fixture struct {
	svc     *occupancy.Service
	beds    *bed.Service
	bedRepo *bedtest.Repo
	alerts  *alerttest.Sink
}

func newFixture(criticalPct int) *fixture {
	f := &fixture{bedRepo: bedtest.NewRepo(), alerts: &alerttest.Sink{}}
	f.beds = bed.NewService(f.bedRepo, auth.DefaultPolicy(), nil, zerolog.Nop())
	s := settings.Defaults()
	s.CriticalOccupancyPct = criticalPct
	f.svc = occupancy.NewService(f.beds, f.alerts, settings.Static(s), zerolog.Nop())
	return f
}

func (f *fixture) add(number, ward string, status bed.Status) *bed.Bed {
	return f.bedRepo.Add(&bed.Bed{BedNumber: number, Ward: ward, Status: status})
}

func TestSummary(t *testing.T) {
	f := newFixture(90)
	f.add("ICU-001", "ICU", bed.StatusOccupied)
	f.add("ICU-002", "ICU", bed.StatusReserved)
	f.add("ICU-003", "ICU", bed.StatusAvailable)
	f.add("ICU-004", "ICU", bed.StatusCleaning)
	f.add("GW-001", "General Ward", bed.StatusMaintenance)
	f.add("GW-002", "General Ward", bed.StatusAvailable)
	f.add("GW-003", "General Ward", bed.StatusOccupied)

	sum, err := f.svc.Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Wards, 2)

	gw, icu := sum.Wards[0], sum.Wards[1]
	assert.Equal(t, "General Ward", gw.Ward)
	assert.Equal(t, occupancy.WardSummary{
		Ward: "ICU", Total: 4, Available: 1, Occupied: 1, Cleaning: 1, Reserved: 1, OccupancyPct: 50,
	}, icu)
	assert.Equal(t, 3, gw.Total)
	assert.Equal(t, 1, gw.Maintenance)
	assert.Equal(t, 33.3, gw.OccupancyPct)

	assert.Equal(t, 7, sum.Hospital.Total)
	assert.Equal(t, 42.9, sum.Hospital.OccupancyPct)
}

func TestCheckThresholds_OncePerCrossing(t *testing.T) {
	f := newFixture(75)
	ctx := context.Background()
	f.add("ICU-001", "ICU", bed.StatusOccupied)
	f.add("ICU-002", "ICU", bed.StatusOccupied)
	f.add("ICU-003", "ICU", bed.StatusReserved)
	last := f.add("ICU-004", "ICU", bed.StatusAvailable)
	f.add("GW-001", "General Ward", bed.StatusAvailable)

	alerted, err := f.svc.CheckThresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ICU"}, alerted)

	alerted, err = f.svc.CheckThresholds(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerted, "still over the threshold; no repeat")

	note := "reserved for REQ-000009"
	_, err = f.beds.Apply(ctx, last, bed.Change{To: bed.StatusReserved, Notes: &note})
	require.NoError(t, err)
	alerted, _ = f.svc.CheckThresholds(ctx)
	assert.Empty(t, alerted)

	crit := f.alerts.BySeverity(alert.SeverityCritical)
	require.Len(t, crit, 1)
	assert.Equal(t, "ICU", crit[0].Ward)
	assert.Contains(t, crit[0].Message, "75.0%")

	// 4 of 7 taken.
	for _, n := range []string{"ICU-005", "ICU-006", "ICU-007"} {
		f.add(n, "ICU", bed.StatusAvailable)
	}
	alerted, _ = f.svc.CheckThresholds(ctx)
	assert.Empty(t, alerted, "dropped below the threshold")

	// 9 of 12 taken.
	for _, n := range []string{"ICU-008", "ICU-009", "ICU-010", "ICU-011", "ICU-012"} {
		f.add(n, "ICU", bed.StatusOccupied)
	}
	alerted, _ = f.svc.CheckThresholds(ctx)
	assert.Equal(t, []string{"ICU"}, alerted, "a new crossing alerts again")
	assert.Len(t, f.alerts.BySeverity(alert.SeverityCritical), 2)
}

func TestWatcher_ChecksOnBedEvents(t *testing.T) {
	f := newFixture(50)
	f.add("ICU-001", "ICU", bed.StatusOccupied)
	rec := &realtimetest.Recorder{}
	w := occupancy.NewWatcher(rec, f.svc)
	ctx := context.Background()

	require.NoError(t, w.Broadcast(ctx, realtime.NewEvent("request:created", "bed_request", "x", nil)))
	assert.Empty(t, f.alerts.All(), "other events do not trigger a check")

	require.NoError(t, w.Broadcast(ctx, realtime.NewEvent(bed.EventBedUpdated, "bed", "x", nil)))
	require.NoError(t, w.Publish(ctx, "ward:ICU", realtime.NewEvent(bed.EventBedUpdated, "bed", "x", nil)))
	assert.Len(t, f.alerts.BySeverity(alert.SeverityCritical), 1)
	assert.Len(t, rec.Deliveries(), 3, "every event is forwarded")
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(90)
	f.add("ICU-001", "ICU", bed.StatusOccupied)
	f.add("GW-001", "General Ward", bed.StatusAvailable)

	data, err := f.svc.ExportXLSX(context.Background())
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"Summary", "Beds"}, wb.GetSheetList())

	summary, err := wb.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, summary, 4, "header, two wards, hospital total")
	assert.Equal(t, "Ward", summary[0][0])
	assert.Equal(t, "General Ward", summary[1][0])
	assert.Equal(t, "All wards", summary[3][0])

	inventory, err := wb.GetRows("Beds")
	require.NoError(t, err)
	require.Len(t, inventory, 3)
	assert.Equal(t, []string{"GW-001", "General Ward", "available", bed.DefaultEquipment}, inventory[1][:4])
}

func TestHandler_Export(t *testing.T) {
	f := newFixture(90)
	f.add("ICU-001", "ICU", bed.StatusOccupied)
	h := occupancy.NewHandler(f.svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := h.Export(echo.New().NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty workbook")
	}
}
