package rbac

// Resource names a back-office area guarded by permissions.
type Resource string

const (
	ResourceWaitlist       Resource = "waitlist"
	ResourceEmailCampaigns Resource = "email_campaigns"
	ResourceAdminUsers     Resource = "admin_users"
	ResourceAnalytics      Resource = "analytics"
	ResourceSettings       Resource = "settings"
	ResourceAuditLogs      Resource = "audit_logs"
	ResourceSessions       Resource = "sessions"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSend   Action = "send"
	ActionExport Action = "export"
)

// Actions lists every known action.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionSend, ActionExport}
}

// PermissionRule grants Action on Resource to Role (and every role above it).
// When Conditions is set, every key must equal the caller-supplied context value.
type PermissionRule struct {
	Role       Role              `json:"role"`
	Resource   Resource          `json:"resource"`
	Action     Action            `json:"action"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

func (r PermissionRule) matches(ctx map[string]string) bool {
	for k, want := range r.Conditions {
		if got, ok := ctx[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// ResourceRestriction narrows the default grants for one resource.
// MinRole applies to every action; Deny subtracts actions from a specific role.
type ResourceRestriction struct {
	Resource Resource
	MinRole  Role
	Deny     map[Role][]Action
}

func (r ResourceRestriction) denies(role Role, action Action) bool {
	if r.MinRole != "" && !HasRole(role, r.MinRole) {
		return true
	}
	for _, a := range r.Deny[role] {
		if a == action {
			return true
		}
	}
	return false
}

// Condition keys understood by the default rules.
const (
	CondTarget = "target" // "self" when the caller acts on its own record
)

func grants(role Role, res Resource, actions ...Action) []PermissionRule {
	out := make([]PermissionRule, 0, len(actions))
	for _, a := range actions {
		out = append(out, PermissionRule{Role: role, Resource: res, Action: a})
	}
	return out
}

// DefaultRules is the static role → resource → action table.
func DefaultRules() []PermissionRule {
	var rules []PermissionRule
	add := func(r ...PermissionRule) { rules = append(rules, r...) }

	add(grants(RoleViewer, ResourceWaitlist, ActionRead)...)
	add(grants(RoleViewer, ResourceEmailCampaigns, ActionRead)...)
	add(grants(RoleViewer, ResourceAnalytics, ActionRead)...)
	add(PermissionRule{Role: RoleViewer, Resource: ResourceSessions, Action: ActionRead, Conditions: map[string]string{CondTarget: "self"}})
	add(PermissionRule{Role: RoleViewer, Resource: ResourceSessions, Action: ActionDelete, Conditions: map[string]string{CondTarget: "self"}})

	add(grants(RoleEditor, ResourceWaitlist, ActionCreate, ActionUpdate, ActionExport)...)
	add(grants(RoleEditor, ResourceEmailCampaigns, ActionCreate, ActionUpdate)...)
	add(PermissionRule{Role: RoleEditor, Resource: ResourceAdminUsers, Action: ActionUpdate, Conditions: map[string]string{CondTarget: "self"}})

	add(grants(RoleAdmin, ResourceWaitlist, ActionDelete)...)
	add(grants(RoleAdmin, ResourceEmailCampaigns, ActionDelete, ActionSend)...)
	add(grants(RoleAdmin, ResourceAnalytics, ActionExport)...)
	add(grants(RoleAdmin, ResourceAdminUsers, ActionRead, ActionCreate, ActionUpdate, ActionDelete)...)
	add(grants(RoleAdmin, ResourceSettings, ActionRead, ActionUpdate)...)
	add(grants(RoleAdmin, ResourceAuditLogs, ActionRead)...)
	add(grants(RoleAdmin, ResourceSessions, ActionRead, ActionDelete)...)

	return rules
}

// DefaultRestrictions are the resource-specific limits that beat default grants.
func DefaultRestrictions() []ResourceRestriction {
	return []ResourceRestriction{
		// Admins may manage editors and viewers but not remove admin-level accounts.
		{Resource: ResourceAdminUsers, Deny: map[Role][]Action{RoleAdmin: {ActionDelete}}},
		{Resource: ResourceSettings, MinRole: RoleAdmin},
		// Audit history is append-only; dynamic rules cannot grant edits below super_admin.
		{Resource: ResourceAuditLogs, MinRole: RoleAdmin, Deny: map[Role][]Action{RoleAdmin: {ActionUpdate, ActionDelete, ActionExport}}},
	}
}
