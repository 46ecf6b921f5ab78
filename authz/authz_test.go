package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkopo/sacco-engine/authz"
)

// =============================================================================
// CAPABILITY MATRIX
// =============================================================================

func TestHasCapability(t *testing.T) {
	cases := []struct {
		name     string
		role     authz.Role
		resource authz.Resource
		action   authz.Action
		want     bool
	}{
		{"teller writes floats", authz.RoleTeller, authz.ResourceFloats, authz.ActionWrite, true},
		{"teller reads loans", authz.RoleTeller, authz.ResourceLoans, authz.ActionRead, true},
		{"teller cannot approve loans", authz.RoleTeller, authz.ResourceLoans, authz.ActionApprove, false},
		{"teller cannot touch vaults", authz.RoleTeller, authz.ResourceVaults, authz.ActionRead, false},
		{"teller initiates handovers", authz.RoleTeller, authz.ResourceHandovers, authz.ActionWrite, true},

		{"loan officer approves loans", authz.RoleLoanOfficer, authz.ResourceLoans, authz.ActionApprove, true},
		{"loan officer cannot disburse", authz.RoleLoanOfficer, authz.ResourceLoans, authz.ActionDisburse, false},
		{"loan officer cannot write products", authz.RoleLoanOfficer, authz.ResourceProducts, authz.ActionWrite, false},
		{"loan officer has no float access", authz.RoleLoanOfficer, authz.ResourceFloats, authz.ActionRead, false},

		{"manager disburses loans", authz.RoleBranchManager, authz.ResourceLoans, authz.ActionDisburse, true},
		{"manager resolves shortages", authz.RoleBranchManager, authz.ResourceShortages, authz.ActionResolve, true},
		{"manager approves floats", authz.RoleBranchManager, authz.ResourceFloats, authz.ActionApprove, true},
		{"manager writes vaults", authz.RoleBranchManager, authz.ResourceVaults, authz.ActionWrite, true},
		{"manager cannot write handovers", authz.RoleBranchManager, authz.ResourceHandovers, authz.ActionWrite, false},

		{"admin can do anything", authz.RoleAdmin, authz.ResourceShortages, authz.ActionResolve, true},
		{"unknown role has nothing", authz.Role("intern"), authz.ResourceLoans, authz.ActionRead, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := authz.HasCapability(tc.role, tc.resource, tc.action)
			assert.Equal(t, tc.want, got)
		})
	}
}

// =============================================================================
// FEATURE CAPABILITIES
// =============================================================================

func TestCapabilitySet_DisbursementMethods(t *testing.T) {
	// GIVEN: Organizations with different integrations enabled
	// WHEN: Mapping features onto payment rails
	// THEN: Cash and cheque are always on, the rest are gated

	none := authz.NewCapabilitySet().DisbursementMethods()
	assert.True(t, none["cash"])
	assert.True(t, none["cheque"])
	assert.False(t, none["mpesa"])
	assert.False(t, none["bank_transfer"])

	mpesaOnly := authz.NewCapabilitySet(authz.FeatureMpesa).DisbursementMethods()
	assert.True(t, mpesaOnly["mpesa"])
	assert.False(t, mpesaOnly["bank_transfer"])

	all := authz.NewCapabilitySet(authz.FeatureMpesa, authz.FeatureBank).DisbursementMethods()
	assert.True(t, all["mpesa"])
	assert.True(t, all["bank_transfer"])
}

func TestCapabilitySet_Has(t *testing.T) {
	set := authz.NewCapabilitySet(authz.FeatureBank)
	assert.True(t, set.Has(authz.FeatureBank))
	assert.False(t, set.Has(authz.FeatureMpesa))
}
