package tenantrewrite

import (
	"sort"
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlast"
)

// target is one base-table reference eligible for tenant-predicate
// injection, tagged per spec.md §4.2's target-collection tuple.
type target struct {
	cteName         string
	effectiveName   string
	physicalName    string
	scopeIndex      int
	appearanceIndex int
	scope           *scope
}

// collectTargets gathers every eligible base-table reference across all
// scopes. CTE-name references and names on the global allowlist are
// excluded here (they are not "eligible" references at all).
func collectTargets(scopes []*scope, cteNames map[string]bool, allowlist map[string]bool) []*target {
	var targets []*target
	for _, s := range scopes {
		for i, f := range s.sel.From {
			if f.Table == "" {
				continue
			}
			lower := strings.ToLower(f.Table)
			if cteNames[lower] {
				continue
			}
			if allowlist != nil && allowlist[lower] {
				continue
			}
			effective := f.Alias
			if effective == "" {
				effective = f.Table
			}
			targets = append(targets, &target{
				cteName:         s.cteName,
				effectiveName:   effective,
				physicalName:    f.Table,
				scopeIndex:      s.index,
				appearanceIndex: i,
				scope:           s,
			})
		}
	}
	return targets
}

// sortTargets orders targets lexicographically by
// (cte_name, effective_name, physical_name, scope_index, appearance_index)
// for deterministic injection order.
func sortTargets(targets []*target) {
	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.cteName != b.cteName {
			return a.cteName < b.cteName
		}
		if a.effectiveName != b.effectiveName {
			return a.effectiveName < b.effectiveName
		}
		if a.physicalName != b.physicalName {
			return a.physicalName < b.physicalName
		}
		if a.scopeIndex != b.scopeIndex {
			return a.scopeIndex < b.scopeIndex
		}
		return a.appearanceIndex < b.appearanceIndex
	})
}
