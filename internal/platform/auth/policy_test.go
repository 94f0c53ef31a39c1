package auth

import (
	"testing"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

func TestPolicy_Evaluate(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name   string
		actor  Actor
		action Action
		res    Resource
		want   bool
	}{
		{"admin bypass", Actor{ID: "a", Role: RoleAdmin}, ActionSettingsUpdate, Resource{}, true},
		{"manager approves", Actor{ID: "m", Role: RoleBedManager}, ActionRequestApprove, Resource{}, true},
		{"er staff cannot approve", Actor{ID: "e", Role: RoleERStaff}, ActionRequestApprove, Resource{}, false},
		{"owner cancels own request", Actor{ID: "e1", Role: RoleERStaff}, ActionRequestCancel, Resource{OwnerID: "e1"}, true},
		{"other er staff cannot cancel", Actor{ID: "e2", Role: RoleERStaff}, ActionRequestCancel, Resource{OwnerID: "e1"}, false},
		{"manager cancels any", Actor{ID: "m", Role: RoleBedManager}, ActionRequestCancel, Resource{OwnerID: "e1"}, true},
		{"ward staff own ward", Actor{ID: "w", Role: RoleWardStaff, Ward: "ICU"}, ActionTransferRequest, Resource{Ward: "ICU"}, true},
		{"ward staff other ward", Actor{ID: "w", Role: RoleWardStaff, Ward: "ICU"}, ActionTransferRequest, Resource{Ward: "Maternity"}, false},
		{"settings admin only", Actor{ID: "m", Role: RoleBedManager}, ActionSettingsUpdate, Resource{}, false},
		{"unknown action denied", Actor{ID: "m", Role: RoleBedManager}, Action("nope"), Resource{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Evaluate(tt.actor, tt.action, tt.res); got.Allowed != tt.want {
				t.Errorf("Evaluate = %+v, want allowed=%v", got, tt.want)
			}
		})
	}
}

func TestPolicy_AuthorizeReturnsPermissionError(t *testing.T) {
	err := DefaultPolicy().Authorize(Actor{ID: "e2", Role: RoleERStaff}, ActionRequestCancel, Resource{OwnerID: "e1"})
	if !apperr.Is(err, apperr.KindPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}
