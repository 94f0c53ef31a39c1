package bed_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/domain/bed/bedtest"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/realtime/realtimetest"
)

var (
	admin    = auth.Actor{ID: "admin-1", Role: auth.RoleAdmin}
	manager  = auth.Actor{ID: "mgr-1", Role: auth.RoleBedManager}
	icuNurse = auth.Actor{ID: "nurse-1", Role: auth.RoleWardStaff, Ward: "ICU"}
	erNurse  = auth.Actor{ID: "er-1", Role: auth.RoleERStaff}
)

type scheduled struct{ beds []*bed.Bed }

func (s *scheduled) ScheduleCleaning(_ context.Context, b *bed.Bed) error {
	s.beds = append(s.beds, b)
	return nil
}

func newService() (*bed.Service, *bedtest.Repo, *realtimetest.Recorder, *scheduled) {
	repo := bedtest.NewRepo()
	rec := &realtimetest.Recorder{}
	svc := bed.NewService(repo, auth.DefaultPolicy(), rec, zerolog.Nop())
	sched := &scheduled{}
	svc.SetCleaningScheduler(sched)
	return svc, repo, rec, sched
}

func TestCreate_Defaults(t *testing.T) {
	svc, _, rec, _ := newService()

	b, err := svc.Create(context.Background(), manager, bed.CreateInput{BedNumber: " BED-010 ", Ward: "ICU"})
	require.NoError(t, err)
	assert.Equal(t, "BED-010", b.BedNumber)
	assert.Equal(t, bed.StatusAvailable, b.Status)
	assert.Equal(t, bed.DefaultEquipment, b.EquipmentType)
	assert.Equal(t, 1, rec.Count(bed.EventBedUpdated))
	assert.Contains(t, rec.Topics(bed.EventBedUpdated), "ward:ICU")
}

func TestCreate_Rejections(t *testing.T) {
	svc, repo, _, _ := newService()
	repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusAvailable})

	_, err := svc.Create(context.Background(), manager, bed.CreateInput{Ward: "ICU"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "missing number: %v", err)

	_, err = svc.Create(context.Background(), manager, bed.CreateInput{BedNumber: "BED-002", Ward: "ICU", Status: bed.StatusOccupied})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "occupied on create: %v", err)

	_, err = svc.Create(context.Background(), manager, bed.CreateInput{BedNumber: "BED-001", Ward: "ICU"})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "duplicate: %v", err)

	_, err = svc.Create(context.Background(), erNurse, bed.CreateInput{BedNumber: "BED-003", Ward: "ICU"})
	assert.True(t, apperr.Is(err, apperr.KindPermission), "er staff: %v", err)
}

func TestTransition_FollowsTable(t *testing.T) {
	svc, repo, rec, _ := newService()
	b := repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusAvailable})

	updated, err := svc.Transition(context.Background(), icuNurse, b.ID, bed.StatusMaintenance, nil)
	require.NoError(t, err)
	assert.Equal(t, bed.StatusMaintenance, updated.Status)
	assert.Equal(t, 1, rec.Count(bed.EventBedUpdated))

	_, err = svc.Transition(context.Background(), icuNurse, b.ID, bed.StatusCleaning, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	stored, _ := repo.GetByID(context.Background(), b.ID)
	assert.Equal(t, bed.StatusMaintenance, stored.Status, "rejected transition must leave state unchanged")
}

func TestTransition_OccupiedNeedsPatient(t *testing.T) {
	svc, repo, _, _ := newService()
	b := repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusAvailable})

	_, err := svc.Transition(context.Background(), manager, b.ID, bed.StatusOccupied, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestTransition_LeavingOccupiedClearsPatientAndSchedulesCleaning(t *testing.T) {
	svc, repo, _, sched := newService()
	pid := uuid.New()
	b := repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusOccupied, PatientID: &pid})

	notes := "deep clean"
	updated, err := svc.Transition(context.Background(), manager, b.ID, bed.StatusCleaning, &notes)
	require.NoError(t, err)
	assert.Nil(t, updated.PatientID)
	assert.Equal(t, "deep clean", updated.Notes)
	require.Len(t, sched.beds, 1)
	assert.Equal(t, b.ID, sched.beds[0].ID)

	// cleaning -> maintenance does not queue a second job
	_, err = svc.Transition(context.Background(), manager, b.ID, bed.StatusMaintenance, nil)
	require.NoError(t, err)
	assert.Len(t, sched.beds, 1)
}

func TestTransition_OccupiedToMaintenanceAlsoSchedulesCleaning(t *testing.T) {
	svc, repo, _, sched := newService()
	pid := uuid.New()
	b := repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusOccupied, PatientID: &pid})

	_, err := svc.Transition(context.Background(), manager, b.ID, bed.StatusMaintenance, nil)
	require.NoError(t, err)
	assert.Len(t, sched.beds, 1)
}

func TestTransition_WardScope(t *testing.T) {
	svc, repo, _, _ := newService()
	b := repo.Add(&bed.Bed{BedNumber: "GW-001", Ward: "General Ward", Status: bed.StatusAvailable})

	_, err := svc.Transition(context.Background(), icuNurse, b.ID, bed.StatusMaintenance, nil)
	assert.True(t, apperr.Is(err, apperr.KindPermission))
}

func TestApply_LostRaceIsConflict(t *testing.T) {
	svc, repo, _, _ := newService()
	b := repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusAvailable})

	observed, _ := repo.GetByID(context.Background(), b.ID)
	_, err := svc.Apply(context.Background(), observed, bed.Change{To: bed.StatusReserved})
	require.NoError(t, err)

	// second writer still holds the stale "available" snapshot
	_, err = svc.Apply(context.Background(), observed, bed.Change{To: bed.StatusMaintenance})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "current status: reserved")
}

func TestApply_PropagatesStoreError(t *testing.T) {
	svc, repo, _, _ := newService()
	b := repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusAvailable})
	repo.FailApply[b.ID] = errors.New("connection reset")

	_, err := svc.Apply(context.Background(), b, bed.Change{To: bed.StatusReserved})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestDelete_RejectsOccupiedAndReserved(t *testing.T) {
	svc, repo, _, _ := newService()
	pid := uuid.New()
	occupied := repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusOccupied, PatientID: &pid})
	reserved := repo.Add(&bed.Bed{BedNumber: "BED-002", Ward: "ICU", Status: bed.StatusReserved})
	free := repo.Add(&bed.Bed{BedNumber: "BED-003", Ward: "ICU", Status: bed.StatusAvailable})

	assert.True(t, apperr.Is(svc.Delete(context.Background(), admin, occupied.ID), apperr.KindConflict))
	assert.True(t, apperr.Is(svc.Delete(context.Background(), admin, reserved.ID), apperr.KindConflict))
	assert.True(t, apperr.Is(svc.Delete(context.Background(), manager, free.ID), apperr.KindPermission))
	require.NoError(t, svc.Delete(context.Background(), admin, free.ID))

	_, err := repo.GetByID(context.Background(), free.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDelete_BedReservedMeanwhileIsKept(t *testing.T) {
	svc, repo, _, _ := newService()
	b := repo.Add(&bed.Bed{BedNumber: "BED-001", Ward: "ICU", Status: bed.StatusAvailable})
	repo.ShiftBeforeDelete[b.ID] = bed.StatusReserved

	err := svc.Delete(context.Background(), admin, b.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	stored, err := repo.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, bed.StatusReserved, stored.Status)
}

func TestFindAvailable(t *testing.T) {
	svc, repo, _, _ := newService()
	repo.Add(&bed.Bed{BedNumber: "ICU-001", Ward: "ICU", Status: bed.StatusAvailable, EquipmentType: "Standard Bed"})
	repo.Add(&bed.Bed{BedNumber: "ICU-002", Ward: "ICU", Status: bed.StatusAvailable, EquipmentType: "Ventilator"})

	b, err := svc.FindAvailable(context.Background(), "ICU", bed.DefaultEquipmentFor("ICU"))
	require.NoError(t, err)
	assert.Equal(t, "ICU-002", b.BedNumber)

	_, err = svc.FindAvailable(context.Background(), "Maternity", bed.DefaultEquipmentFor("Maternity"))
	assert.True(t, apperr.Is(err, apperr.KindNoCapacity))
}

func TestReconcileCapacity(t *testing.T) {
	svc, repo, _, _ := newService()
	pid := uuid.New()
	repo.Add(&bed.Bed{BedNumber: "ICU-001", Ward: "ICU", Status: bed.StatusOccupied, PatientID: &pid})
	repo.Add(&bed.Bed{BedNumber: "ICU-002", Ward: "ICU", Status: bed.StatusAvailable, EverOccupied: true})
	repo.Add(&bed.Bed{BedNumber: "ICU-003", Ward: "ICU", Status: bed.StatusAvailable})
	repo.Add(&bed.Bed{BedNumber: "ICU-004", Ward: "ICU", Status: bed.StatusReserved})

	report, err := svc.ReconcileCapacity(context.Background(), admin, map[string]int{"ICU": 1, "General Ward": 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"GW-001", "GW-002"}, report.Created["General Ward"])
	assert.Equal(t, []string{"ICU-003"}, report.Removed["ICU"])
	assert.Equal(t, 2, report.Skipped["ICU"], "occupied, reserved and previously used beds stay")

	gw, _ := repo.ListByWard(context.Background(), "General Ward")
	assert.Len(t, gw, 2)
	icu, _ := repo.ListByWard(context.Background(), "ICU")
	assert.Len(t, icu, 3)
}

func TestReconcileCapacity_ContinuesNumbering(t *testing.T) {
	svc, repo, _, _ := newService()
	repo.Add(&bed.Bed{BedNumber: "ICU-007", Ward: "ICU", Status: bed.StatusAvailable})

	report, err := svc.ReconcileCapacity(context.Background(), admin, map[string]int{"ICU": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"ICU-008"}, report.Created["ICU"])

	created, err := repo.GetByNumber(context.Background(), "ICU-008")
	require.NoError(t, err)
	assert.Equal(t, "ICU Monitor", created.EquipmentType)
}

func TestReconcileCapacity_AdminOnly(t *testing.T) {
	svc, _, _, _ := newService()
	_, err := svc.ReconcileCapacity(context.Background(), manager, map[string]int{"ICU": 1})
	assert.True(t, apperr.Is(err, apperr.KindPermission))
}

func TestStats(t *testing.T) {
	svc, repo, _, _ := newService()
	repo.Add(&bed.Bed{BedNumber: "ICU-001", Ward: "ICU", Status: bed.StatusAvailable})
	repo.Add(&bed.Bed{BedNumber: "ICU-002", Ward: "ICU", Status: bed.StatusAvailable})
	repo.Add(&bed.Bed{BedNumber: "ICU-003", Ward: "ICU", Status: bed.StatusReserved})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []bed.WardCount{
		{Ward: "ICU", Status: bed.StatusAvailable, Count: 2},
		{Ward: "ICU", Status: bed.StatusReserved, Count: 1},
	}, stats)
}
