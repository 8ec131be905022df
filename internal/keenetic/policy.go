package keenetic

import (
	"encoding/json"
	"fmt"
)

// defaultPolicyName is how the router reports a host with no access
// restriction applied.
const defaultPolicyName = "default"

// Policy is a router access-control profile assigned to a host. The zero
// value means "no restriction". Active policies carry the router-side
// profile name (e.g. "Policy0").
type Policy struct {
	name string
}

// Unrestricted is the policy of a host with no access profile applied.
var Unrestricted = Policy{}

// NamedPolicy returns the policy for a router profile name. The literal
// name "default" (or an empty string) maps to Unrestricted.
func NamedPolicy(name string) Policy {
	if name == "" || name == defaultPolicyName {
		return Unrestricted
	}
	return Policy{name: name}
}

// Restricted reports whether an access profile is applied.
func (p Policy) Restricted() bool {
	return p.name != ""
}

func (p Policy) String() string {
	if p.name == "" {
		return defaultPolicyName
	}
	return p.name
}

// MarshalJSON serializes the policy in the router's wire form. The router
// expects active policies as a bare profile-name string but the default
// policy as the structured marker {"no": true}; that asymmetry is part of
// the rci API contract and must be preserved.
func (p Policy) MarshalJSON() ([]byte, error) {
	if p.name == "" {
		return []byte(`{"no":true}`), nil
	}
	return json.Marshal(p.name)
}

// Toggle flips between the unrestricted policy and the given restricted
// profile. Toggling twice returns the original policy.
func (p Policy) Toggle(restricted string) Policy {
	if p.Restricted() {
		return Unrestricted
	}
	return NamedPolicy(restricted)
}

// Device is one host known to the router's hotspot, reconciled from the
// name and policy inventory endpoints.
type Device struct {
	MAC    string
	Name   string
	Policy Policy
}

func (d Device) String() string {
	return fmt.Sprintf("%s %s policy=%s", d.MAC, d.Name, d.Policy)
}
