package auth

import (
	"fmt"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

// Action names an operation subject to permission checks.
type Action string

const (
	ActionBedCreate        Action = "bed.create"
	ActionBedUpdate        Action = "bed.update"
	ActionBedStatus        Action = "bed.status"
	ActionBedDelete        Action = "bed.delete"
	ActionBedCapacity      Action = "bed.capacity"
	ActionRequestCreate    Action = "request.create"
	ActionRequestUpdate    Action = "request.update"
	ActionRequestApprove   Action = "request.approve"
	ActionRequestDeny      Action = "request.deny"
	ActionRequestFulfill   Action = "request.fulfill"
	ActionRequestCancel    Action = "request.cancel"
	ActionRequestDelete    Action = "request.delete"
	ActionTransferRequest  Action = "transfer.request"
	ActionTransferReview   Action = "transfer.review"
	ActionTransferModify   Action = "transfer.modify"
	ActionCleaningWork     Action = "cleaning.work"
	ActionCleaningAssign   Action = "cleaning.assign"
	ActionCleaningManage   Action = "cleaning.manage"
	ActionPatientDischarge Action = "patient.discharge"
	ActionAlertAck         Action = "alert.ack"
	ActionSettingsUpdate   Action = "settings.update"
)

// Resource carries the record attributes a rule may look at.
type Resource struct {
	OwnerID string
	Ward    string
}

// Rule grants an action to a set of roles. Owner rules additionally let the
// record's creator act regardless of role; WardScoped rules restrict ward
// staff to resources in their own ward.
type Rule struct {
	Roles      []string
	Owner      bool
	WardScoped bool
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Policy is the single permission function consulted by every lifecycle
// operation.
type Policy struct {
	rules map[Action]Rule
}

func NewPolicy(rules map[Action]Rule) *Policy {
	return &Policy{rules: rules}
}

// DefaultPolicy returns the hospital's role matrix.
func DefaultPolicy() *Policy {
	managers := []string{RoleBedManager}
	return NewPolicy(map[Action]Rule{
		ActionBedCreate:        {Roles: managers},
		ActionBedUpdate:        {Roles: []string{RoleBedManager, RoleWardStaff}, WardScoped: true},
		ActionBedStatus:        {Roles: []string{RoleBedManager, RoleWardStaff}, WardScoped: true},
		ActionBedDelete:        {},
		ActionBedCapacity:      {},
		ActionRequestCreate:    {Roles: []string{RoleERStaff, RoleBedManager}},
		ActionRequestUpdate:    {Roles: managers, Owner: true},
		ActionRequestApprove:   {Roles: managers},
		ActionRequestDeny:      {Roles: managers},
		ActionRequestFulfill:   {Roles: []string{RoleERStaff, RoleBedManager, RoleWardStaff}},
		ActionRequestCancel:    {Roles: managers, Owner: true},
		ActionRequestDelete:    {Roles: managers},
		ActionTransferRequest:  {Roles: []string{RoleWardStaff, RoleBedManager}, WardScoped: true},
		ActionTransferReview:   {Roles: managers},
		ActionTransferModify:   {Roles: managers, Owner: true},
		ActionCleaningWork:     {Roles: []string{RoleCleaningStaff, RoleWardStaff, RoleBedManager}},
		ActionCleaningAssign:   {Roles: []string{RoleBedManager, RoleWardStaff}},
		ActionCleaningManage:   {Roles: managers},
		ActionPatientDischarge: {Roles: []string{RoleWardStaff, RoleBedManager}, WardScoped: true},
		ActionAlertAck:         {Roles: []string{RoleBedManager, RoleWardStaff, RoleERStaff}},
		ActionSettingsUpdate:   {},
	})
}

// Evaluate decides whether actor may perform action on res. Admins are
// always allowed; unknown actions are denied.
func (p *Policy) Evaluate(actor Actor, action Action, res Resource) Decision {
	if actor.Role == RoleAdmin {
		return Decision{Allowed: true, Reason: "admin role"}
	}
	rule, ok := p.rules[action]
	if !ok {
		return Decision{Allowed: false, Reason: "no policy for " + string(action)}
	}
	if rule.Owner && res.OwnerID != "" && actor.ID == res.OwnerID {
		return Decision{Allowed: true, Reason: "resource owner"}
	}
	if !hasRole(rule.Roles, actor.Role) {
		if rule.Owner && res.OwnerID != "" {
			return Decision{Allowed: false, Reason: "only the requester or a bed manager may " + verb(action)}
		}
		return Decision{Allowed: false, Reason: fmt.Sprintf("role %q may not %s", actor.Role, verb(action))}
	}
	if rule.WardScoped && actor.Role == RoleWardStaff && res.Ward != "" && actor.Ward != res.Ward {
		return Decision{Allowed: false, Reason: fmt.Sprintf("ward staff of %s may not act on %s", actor.Ward, res.Ward)}
	}
	return Decision{Allowed: true, Reason: "policy match"}
}

// Authorize is Evaluate returning a PermissionError on denial.
func (p *Policy) Authorize(actor Actor, action Action, res Resource) error {
	d := p.Evaluate(actor, action, res)
	if !d.Allowed {
		return apperr.Permission("%s", d.Reason)
	}
	return nil
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func verb(a Action) string {
	switch a {
	case ActionRequestCancel:
		return "cancel this request"
	case ActionRequestUpdate:
		return "update this request"
	case ActionTransferModify:
		return "modify this transfer"
	}
	return string(a)
}
