/*
Package authz provides pure capability checks.

PURPOSE:
  Authorization decisions as data, independent of rendering or HTTP:
  - HasCapability(role, resource, action): one pure function instead of
    role checks scattered through handlers
  - CapabilitySet: organization feature flags evaluated ONCE per
    session/organization and injected into the domain layer, instead of
    booleans queried repeatedly

  Authentication (sessions, tokens) is out of scope here; this package
  only answers "may this role do this action on this resource".

USAGE:
  if !authz.HasCapability(role, authz.ResourceLoans, authz.ActionApprove) {
      // 403
  }

  caps := authz.NewCapabilitySet(authz.FeatureMpesa)
  allowed := make(map[loan.DisbursementMethod]bool)
  for method, ok := range caps.DisbursementMethods() {
      allowed[loan.DisbursementMethod(method)] = ok
  }
  svc.AllowedMethods = allowed
*/
package authz

// =============================================================================
// ROLES, RESOURCES, ACTIONS
// =============================================================================

type Role string

const (
	RoleTeller        Role = "teller"
	RoleLoanOfficer   Role = "loan_officer"
	RoleBranchManager Role = "branch_manager"
	RoleAdmin         Role = "admin"
)

type Resource string

const (
	ResourceProducts  Resource = "products"
	ResourceMembers   Resource = "members"
	ResourceLoans     Resource = "loans"
	ResourceFloats    Resource = "floats"
	ResourceShortages Resource = "shortages"
	ResourceVaults    Resource = "vaults"
	ResourceHandovers Resource = "handovers"
)

type Action string

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionApprove  Action = "approve"
	ActionDisburse Action = "disburse"
	ActionResolve  Action = "resolve"
)

// grants is the full capability matrix. Admin is handled separately
// (all capabilities).
var grants = map[Role]map[Resource][]Action{
	RoleTeller: {
		ResourceMembers:   {ActionRead},
		ResourceLoans:     {ActionRead},
		ResourceFloats:    {ActionRead, ActionWrite},
		ResourceHandovers: {ActionRead, ActionWrite},
		ResourceProducts:  {ActionRead},
	},
	RoleLoanOfficer: {
		ResourceMembers:  {ActionRead, ActionWrite},
		ResourceLoans:    {ActionRead, ActionWrite, ActionApprove},
		ResourceProducts: {ActionRead},
	},
	RoleBranchManager: {
		ResourceMembers:   {ActionRead, ActionWrite},
		ResourceLoans:     {ActionRead, ActionWrite, ActionApprove, ActionDisburse},
		ResourceFloats:    {ActionRead, ActionWrite, ActionApprove},
		ResourceShortages: {ActionRead, ActionApprove, ActionResolve},
		ResourceVaults:    {ActionRead, ActionWrite, ActionApprove},
		ResourceHandovers: {ActionRead},
		ResourceProducts:  {ActionRead, ActionWrite},
	},
}

// HasCapability reports whether role may perform action on resource.
// Pure: no session, no rendering, no I/O.
func HasCapability(role Role, resource Resource, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	for _, a := range grants[role][resource] {
		if a == action {
			return true
		}
	}
	return false
}

// =============================================================================
// FEATURE CAPABILITIES
// =============================================================================

type Feature string

const (
	FeatureMpesa Feature = "mpesa_integration"
	FeatureBank  Feature = "bank_integration"
)

// CapabilitySet is an organization's enabled features, evaluated once
// and injected where needed.
type CapabilitySet map[Feature]bool

func NewCapabilitySet(features ...Feature) CapabilitySet {
	set := make(CapabilitySet, len(features))
	for _, f := range features {
		set[f] = true
	}
	return set
}

func (c CapabilitySet) Has(f Feature) bool { return c[f] }

// DisbursementMethods maps the feature set onto the payment rails an
// organization may offer. Cash and cheque are always available.
func (c CapabilitySet) DisbursementMethods() map[string]bool {
	methods := map[string]bool{
		"cash":   true,
		"cheque": true,
	}
	if c.Has(FeatureMpesa) {
		methods["mpesa"] = true
	}
	if c.Has(FeatureBank) {
		methods["bank_transfer"] = true
	}
	return methods
}
