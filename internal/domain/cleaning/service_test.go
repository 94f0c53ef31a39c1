package cleaning_test

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
	"github.com/bedtrack/bedtrack/internal/domain/cleaning"
	"github.com/bedtrack/bedtrack/internal/domain/cleaning/cleaningtest"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/db/dbtest"
	"github.com/bedtrack/bedtrack/internal/platform/realtime/realtimetest"
)

var (
	manager = auth.Actor{ID: "mgr-1", Role: auth.RoleBedManager}
	cleaner = auth.Actor{ID: "cln-1", Role: auth.RoleCleaningStaff}
	erNurse = auth.Actor{ID: "er-1", Role: auth.RoleERStaff}
)

type fixture struct {
	svc     *cleaning.Service
	beds    *bed.Service
	bedRepo *bedtest.Repo
	jobs    *cleaningtest.JobRepo
	staff   *cleaningtest.StaffRepo
	tx      *dbtest.Tx
	rec     *realtimetest.Recorder
}

func newFixture() *fixture {
	f := &fixture{
		bedRepo: bedtest.NewRepo(),
		jobs:    cleaningtest.NewJobRepo(),
		staff:   cleaningtest.NewStaffRepo(),
		rec:     &realtimetest.Recorder{},
	}
	policy := auth.DefaultPolicy()
	f.beds = bed.NewService(f.bedRepo, policy, f.rec, zerolog.Nop())
	f.tx = dbtest.NewTx(f.bedRepo, f.jobs, f.staff)
	f.svc = cleaning.NewService(f.jobs, f.staff, f.beds, f.tx, policy, f.rec, zerolog.Nop())
	f.beds.SetCleaningScheduler(f.svc)
	return f
}

// vacate adds an occupied bed and moves it to cleaning, returning the bed
// and the job that was queued for it.
func (f *fixture) vacate(t *testing.T, number string) (*bed.Bed, *cleaning.Job) {
	t.Helper()
	pid := uuid.New()
	b := f.bedRepo.Add(&bed.Bed{BedNumber: number, Ward: "ICU", Floor: "2", RoomNumber: "204",
		Status: bed.StatusOccupied, PatientID: &pid})
	_, err := f.beds.Transition(context.Background(), manager, b.ID, bed.StatusCleaning, nil)
	require.NoError(t, err)
	jobs := f.jobs.ForBed(b.ID)
	require.Len(t, jobs, 1)
	return b, jobs[0]
}

func (f *fixture) addStaff(t *testing.T, code, name string) *cleaning.Staff {
	t.Helper()
	s, err := f.svc.CreateStaff(context.Background(), manager, cleaning.StaffInput{StaffCode: code, Name: name})
	require.NoError(t, err)
	return s
}

func TestVacatingBedQueuesOneJob(t *testing.T) {
	f := newFixture()
	b, job := f.vacate(t, "ICU-001")

	assert.Equal(t, cleaning.JobPending, job.Status)
	assert.Equal(t, "ICU-001", job.BedNumber)
	assert.Equal(t, "ICU", job.Ward)
	assert.Equal(t, "2", job.Floor)
	assert.Equal(t, "204", job.RoomNumber)
	assert.Equal(t, 1, f.rec.Count(cleaning.EventJobCreated))

	again, err := f.svc.AutoCreate(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID, "open job must be reused")
	assert.Len(t, f.jobs.ForBed(b.ID), 1)
	assert.Equal(t, 1, f.rec.Count(cleaning.EventJobCreated))
}

func TestStart_PendingOnly(t *testing.T) {
	f := newFixture()
	_, job := f.vacate(t, "ICU-001")

	started, err := f.svc.Start(context.Background(), cleaner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, cleaning.JobActive, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, 1, f.rec.Count(cleaning.EventJobStarted))

	_, err = f.svc.Start(context.Background(), cleaner, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "second start: %v", err)

	_, err = f.svc.Start(context.Background(), erNurse, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermission), "er staff: %v", err)
}

func TestAssign_MovesActiveSlot(t *testing.T) {
	f := newFixture()
	_, job := f.vacate(t, "ICU-001")
	alice := f.addStaff(t, "CS-01", "Alice")
	bob := f.addStaff(t, "CS-02", "Bob")
	ctx := context.Background()

	assigned, err := f.svc.Assign(ctx, manager, job.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedStaffID)
	assert.Equal(t, alice.ID, *assigned.AssignedStaffID)
	assert.Equal(t, "Alice", assigned.AssignedStaffName)

	a, _ := f.staff.GetByID(ctx, alice.ID)
	assert.Equal(t, 1, a.ActiveJobs)
	assert.Equal(t, cleaning.StaffBusy, a.Status)

	// same staff again changes nothing
	_, err = f.svc.Assign(ctx, manager, job.ID, alice.ID)
	require.NoError(t, err)
	a, _ = f.staff.GetByID(ctx, alice.ID)
	assert.Equal(t, 1, a.ActiveJobs)

	_, err = f.svc.Assign(ctx, manager, job.ID, bob.ID)
	require.NoError(t, err)
	a, _ = f.staff.GetByID(ctx, alice.ID)
	b, _ := f.staff.GetByID(ctx, bob.ID)
	assert.Equal(t, 0, a.ActiveJobs)
	assert.Equal(t, cleaning.StaffAvailable, a.Status)
	assert.Equal(t, 1, b.ActiveJobs)
	assert.Equal(t, cleaning.StaffBusy, b.Status)
}

func TestAssign_Rejections(t *testing.T) {
	f := newFixture()
	_, job := f.vacate(t, "ICU-001")
	ctx := context.Background()

	_, err := f.svc.Assign(ctx, manager, job.ID, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown staff: %v", err)

	alice := f.addStaff(t, "CS-01", "Alice")
	_, err = f.svc.Assign(ctx, cleaner, job.ID, alice.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermission), "cleaner assigning: %v", err)

	_, err = f.svc.Start(ctx, cleaner, job.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, cleaner, job.ID)
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, manager, job.ID, alice.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "completed job: %v", err)
}

func TestComplete_ReturnsBedAndCreditsStaff(t *testing.T) {
	f := newFixture()
	b, job := f.vacate(t, "ICU-001")
	alice := f.addStaff(t, "CS-01", "Alice")
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, cleaner, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "pending job: %v", err)

	_, err = f.svc.Assign(ctx, manager, job.ID, alice.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, cleaner, job.ID)
	require.NoError(t, err)
	f.rec.Reset()

	done, err := f.svc.Complete(ctx, cleaner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, cleaning.JobCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	a, _ := f.staff.GetByID(ctx, alice.ID)
	assert.Equal(t, 0, a.ActiveJobs)
	assert.Equal(t, 1, a.CompletedJobs)
	assert.Equal(t, cleaning.StaffAvailable, a.Status)

	stored, _ := f.bedRepo.GetByID(ctx, b.ID)
	assert.Equal(t, bed.StatusAvailable, stored.Status)
	assert.NotNil(t, stored.LastCleanedAt)
	assert.Equal(t, []string{cleaning.EventJobCompleted, bed.EventBedUpdated}, f.rec.Types())

	_, err = f.svc.Complete(ctx, cleaner, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "second complete: %v", err)
}

func TestComplete_BedInMaintenanceReturnsToService(t *testing.T) {
	f := newFixture()
	b, job := f.vacate(t, "ICU-001")
	ctx := context.Background()

	_, err := f.beds.Transition(ctx, manager, b.ID, bed.StatusMaintenance, nil)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, cleaner, job.ID)
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, cleaner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, cleaning.JobCompleted, done.Status)

	stored, _ := f.bedRepo.GetByID(ctx, b.ID)
	assert.Equal(t, bed.StatusAvailable, stored.Status)
	assert.NotNil(t, stored.LastCleanedAt)
}

func TestComplete_BedAlreadyAvailableKeepsStatus(t *testing.T) {
	f := newFixture()
	b, job := f.vacate(t, "ICU-001")
	ctx := context.Background()

	_, err := f.beds.Transition(ctx, manager, b.ID, bed.StatusAvailable, nil)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, cleaner, job.ID)
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, cleaner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, cleaning.JobCompleted, done.Status)

	stored, _ := f.bedRepo.GetByID(ctx, b.ID)
	assert.Equal(t, bed.StatusAvailable, stored.Status)
	assert.Nil(t, stored.LastCleanedAt)
}

func TestComplete_RollsBackWhenBedWriteFails(t *testing.T) {
	f := newFixture()
	b, job := f.vacate(t, "ICU-001")
	alice := f.addStaff(t, "CS-01", "Alice")
	ctx := context.Background()
	_, err := f.svc.Assign(ctx, manager, job.ID, alice.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, cleaner, job.ID)
	require.NoError(t, err)

	f.bedRepo.FailApply[b.ID] = errors.New("connection reset")
	_, err = f.svc.Complete(ctx, cleaner, job.ID)
	require.Error(t, err)

	stored, _ := f.jobs.GetByID(ctx, job.ID)
	assert.Equal(t, cleaning.JobActive, stored.Status, "job must stay active")
	a, _ := f.staff.GetByID(ctx, alice.ID)
	assert.Equal(t, 1, a.ActiveJobs)
	assert.Equal(t, 0, a.CompletedJobs)
	bd, _ := f.bedRepo.GetByID(ctx, b.ID)
	assert.Equal(t, bed.StatusCleaning, bd.Status)
	assert.Equal(t, 0, f.rec.Count(cleaning.EventJobCompleted))
}

func TestDelete_ReleasesAssignee(t *testing.T) {
	f := newFixture()
	_, job := f.vacate(t, "ICU-001")
	alice := f.addStaff(t, "CS-01", "Alice")
	ctx := context.Background()
	_, err := f.svc.Assign(ctx, manager, job.ID, alice.ID)
	require.NoError(t, err)

	require.Error(t, f.svc.Delete(ctx, cleaner, job.ID))

	require.NoError(t, f.svc.Delete(ctx, manager, job.ID))
	_, err = f.svc.Get(ctx, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	a, _ := f.staff.GetByID(ctx, alice.ID)
	assert.Equal(t, 0, a.ActiveJobs)
	assert.Equal(t, cleaning.StaffAvailable, a.Status)
}

func TestDelete_CompletedRejected(t *testing.T) {
	f := newFixture()
	_, job := f.vacate(t, "ICU-001")
	ctx := context.Background()
	_, err := f.svc.Start(ctx, cleaner, job.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, cleaner, job.ID)
	require.NoError(t, err)

	err = f.svc.Delete(ctx, manager, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCreateStaff_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateStaff(ctx, manager, cleaning.StaffInput{Name: "Alice"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CreateStaff(ctx, manager, cleaning.StaffInput{StaffCode: "CS-01"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CreateStaff(ctx, cleaner, cleaning.StaffInput{StaffCode: "CS-01", Name: "Alice"})
	assert.True(t, apperr.Is(err, apperr.KindPermission))

	s := f.addStaff(t, " CS-01 ", "Alice")
	assert.Equal(t, "CS-01", s.StaffCode)
	assert.Equal(t, cleaning.StaffAvailable, s.Status)

	_, err = f.svc.CreateStaff(ctx, manager, cleaning.StaffInput{StaffCode: "CS-01", Name: "Other"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestList_FiltersByStatusAndStaff(t *testing.T) {
	f := newFixture()
	_, j1 := f.vacate(t, "ICU-001")
	f.vacate(t, "ICU-002")
	alice := f.addStaff(t, "CS-01", "Alice")
	ctx := context.Background()
	_, err := f.svc.Assign(ctx, manager, j1.ID, alice.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, cleaner, j1.ID)
	require.NoError(t, err)

	items, total, err := f.svc.List(ctx, cleaning.JobFilter{Status: cleaning.JobPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "ICU-002", items[0].BedNumber)

	items, _, err = f.svc.List(ctx, cleaning.JobFilter{StaffID: &alice.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, j1.ID, items[0].ID)

	_, _, err = f.svc.List(ctx, cleaning.JobFilter{Status: "dirty"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
