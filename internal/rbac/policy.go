package rbac

// Layer names the precedence layer that produced a decision.
type Layer string

const (
	LayerSuperAdmin  Layer = "super_admin"
	LayerOverride    Layer = "override"
	LayerRestriction Layer = "restriction"
	LayerDefault     Layer = "default"
	LayerNone        Layer = "none"
)

// Request is one permission question.
type Request struct {
	Role      Role
	Overrides Overrides
	Resource  Resource
	Action    Action
	// Context carries caller-supplied values for conditional rules (see CondTarget).
	Context map[string]string
}

type Decision struct {
	Allowed bool
	Layer   Layer
}

// Policy evaluates permissions in a fixed order:
// super_admin, explicit override, resource restriction, default grant.
// A Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	rules        map[Role]map[Resource]map[Action][]PermissionRule
	restrictions map[Resource]ResourceRestriction
}

// NewPolicy builds the default table plus extra rules (e.g. loaded from the database).
func NewPolicy(extra ...PermissionRule) *Policy {
	return NewCustomPolicy(append(DefaultRules(), extra...), DefaultRestrictions())
}

func NewCustomPolicy(rules []PermissionRule, restrictions []ResourceRestriction) *Policy {
	p := &Policy{
		rules:        make(map[Role]map[Resource]map[Action][]PermissionRule),
		restrictions: make(map[Resource]ResourceRestriction, len(restrictions)),
	}
	for _, r := range rules {
		byRes, ok := p.rules[r.Role]
		if !ok {
			byRes = make(map[Resource]map[Action][]PermissionRule)
			p.rules[r.Role] = byRes
		}
		byAct, ok := byRes[r.Resource]
		if !ok {
			byAct = make(map[Action][]PermissionRule)
			byRes[r.Resource] = byAct
		}
		byAct[r.Action] = append(byAct[r.Action], r)
	}
	for _, r := range restrictions {
		p.restrictions[r.Resource] = r
	}
	return p
}

func (p *Policy) Evaluate(req Request) Decision {
	if IsSuperAdmin(req.Role) {
		return Decision{Allowed: true, Layer: LayerSuperAdmin}
	}
	if eff, ok := req.Overrides.Lookup(req.Resource, req.Action); ok {
		return Decision{Allowed: eff == EffectAllow, Layer: LayerOverride}
	}
	if !req.Role.Valid() {
		return Decision{Allowed: false, Layer: LayerNone}
	}
	if r, ok := p.restrictions[req.Resource]; ok && r.denies(req.Role, req.Action) {
		return Decision{Allowed: false, Layer: LayerRestriction}
	}
	// Grants are inherited: a role holds every grant of the roles below it.
	for _, role := range Roles() {
		if !HasRole(req.Role, role) {
			continue
		}
		for _, rule := range p.rules[role][req.Resource][req.Action] {
			if rule.matches(req.Context) {
				return Decision{Allowed: true, Layer: LayerDefault}
			}
		}
	}
	return Decision{Allowed: false, Layer: LayerNone}
}

func (p *Policy) Allowed(req Request) bool {
	return p.Evaluate(req).Allowed
}

var defaultPolicy = NewPolicy()

func DefaultPolicy() *Policy { return defaultPolicy }

// HasPermission evaluates against the default policy with no caller context.
func HasPermission(role Role, overrides Overrides, res Resource, act Action) bool {
	return defaultPolicy.Allowed(Request{Role: role, Overrides: overrides, Resource: res, Action: act})
}
