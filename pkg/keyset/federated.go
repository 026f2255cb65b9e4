package keyset

import "fmt"

// BackendSet describes the set of physical backends a federated query
// spans, identified by a stable sorted member list. Two BackendSets are
// the "same" topology iff their Members slices are identical.
type BackendSet struct {
	Topology Topology
	Members  []string
}

// ValidateFederatedOrdering enforces that keyset pagination is only
// offered on a federated topology when every backend enforces the same
// global total order (GlobalOrderGuaranteed) — otherwise a page boundary
// computed from one backend's rows cannot be trusted to bound the
// others, and the caller must fall back to offset pagination or refuse
// pagination entirely.
func ValidateFederatedOrdering(set BackendSet, globalOrderGuaranteed bool) error {
	if set.Topology != TopologyFederated {
		return nil
	}
	if !globalOrderGuaranteed {
		return newErr(ReasonFederatedOrderingUnsafe, "federated backend set has no guaranteed global total order for keyset pagination")
	}
	return nil
}

// ValidateBackendSetUnchanged rejects a cursor minted against one
// federated backend-set membership when replayed against a different
// membership (a backend added or removed between pages would silently
// corrupt the page boundary).
func ValidateBackendSetUnchanged(mintedAgainst, current BackendSet) error {
	if !sameMembers(mintedAgainst.Members, current.Members) {
		return newErr(ReasonBackendSetChanged, fmt.Sprintf(
			"backend set changed from %d member(s) to %d member(s) since the cursor was minted",
			len(mintedAgainst.Members), len(current.Members)))
	}
	return nil
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
