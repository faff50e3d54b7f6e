package rbac

import (
	"fmt"
	"sort"
)

// Effect is the outcome an override forces.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Override is a per-admin exception to the role defaults: either Allow(resource, action)
// or Deny(resource, action). Overrides outrank restrictions and default grants.
type Override struct {
	Effect   Effect   `json:"effect"`
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

func Allow(res Resource, act Action) Override {
	return Override{Effect: EffectAllow, Resource: res, Action: act}
}

func Deny(res Resource, act Action) Override {
	return Override{Effect: EffectDeny, Resource: res, Action: act}
}

func (o Override) Validate() error {
	if o.Effect != EffectAllow && o.Effect != EffectDeny {
		return fmt.Errorf("rbac: override effect must be allow or deny, got %q", o.Effect)
	}
	if o.Resource == "" || o.Action == "" {
		return fmt.Errorf("rbac: override requires resource and action")
	}
	return nil
}

type Overrides []Override

// Lookup returns the explicit effect for resource/action. Deny wins when both are present.
func (os Overrides) Lookup(res Resource, act Action) (Effect, bool) {
	found := false
	for _, o := range os {
		if o.Resource != res || o.Action != act {
			continue
		}
		if o.Effect == EffectDeny {
			return EffectDeny, true
		}
		if o.Effect == EffectAllow {
			found = true
		}
	}
	if found {
		return EffectAllow, true
	}
	return "", false
}

func (os Overrides) Validate() error {
	for _, o := range os {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OverridesFromActionMap converts the "resource → allowed actions" shape kept on admin
// rows. Listing a resource makes it authoritative: listed actions are allowed and every
// other known action on that resource is denied.
func OverridesFromActionMap(m map[string][]string) Overrides {
	resources := make([]string, 0, len(m))
	for r := range m {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	var out Overrides
	for _, r := range resources {
		res := Resource(r)
		allowed := make(map[Action]bool, len(m[r]))
		for _, a := range m[r] {
			act := Action(a)
			if !allowed[act] {
				allowed[act] = true
				out = append(out, Allow(res, act))
			}
		}
		for _, act := range Actions() {
			if !allowed[act] {
				out = append(out, Deny(res, act))
			}
		}
	}
	return out
}
