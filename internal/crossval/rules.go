package crossval

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// budgetRollupTolerance allows children to exceed the parent budget by 5%
// before a rollup violation fires.
const budgetRollupTolerance = 1.05

// ownerCapacity is the number of high-priority items one owner may carry.
const ownerCapacity = 5

// DetectCycles walks the depends_on graph depth-first with an explicit
// recursion stack and reports each cycle once, with its full id path.
func DetectCycles(items []model.Item, rels []model.Relationship) []model.Inconsistency {
	adj := map[string][]string{}
	for _, r := range rels {
		if r.Type != model.RelationDependsOn {
			continue
		}
		adj[r.SourceID] = append(adj[r.SourceID], r.TargetID)
	}
	for id := range adj {
		sort.Strings(adj[id])
	}

	ids := make([]string, 0, len(items))
	for i := range items {
		ids = append(ids, items[i].ID)
	}
	sort.Strings(ids)

	const (
		white = 0 // unvisited
		grey  = 1 // on the recursion stack
		black = 2 // fully explored
	)
	color := map[string]int{}
	var stack []string
	var findings []model.Inconsistency
	reported := map[string]bool{}

	type frame struct {
		id   string
		next int
	}

	for _, start := range ids {
		if color[start] != white {
			continue
		}
		frames := []frame{{id: start}}
		color[start] = grey
		stack = append(stack[:0], start)

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if f.next >= len(adj[f.id]) {
				color[f.id] = black
				stack = stack[:len(stack)-1]
				frames = frames[:len(frames)-1]
				continue
			}
			target := adj[f.id][f.next]
			f.next++

			switch color[target] {
			case white:
				color[target] = grey
				stack = append(stack, target)
				frames = append(frames, frame{id: target})
			case grey:
				cycle := extractCycle(stack, target)
				key := cycleKey(cycle)
				if !reported[key] {
					reported[key] = true
					findings = append(findings, model.Inconsistency{
						Rule:      "circular_dependency",
						Severity:  model.SeverityError,
						ItemIDs:   append([]string(nil), cycle...),
						CyclePath: append(append([]string(nil), cycle...), cycle[0]),
						Message:   fmt.Sprintf("dependency cycle: %s", strings.Join(append(append([]string(nil), cycle...), cycle[0]), " -> ")),
					})
				}
			}
		}
	}
	return findings
}

// extractCycle slices the recursion stack from the first occurrence of the
// back-edge target.
func extractCycle(stack []string, target string) []string {
	for i, id := range stack {
		if id == target {
			return stack[i:]
		}
	}
	return stack
}

// cycleKey is rotation-invariant so the same cycle entered from different
// start nodes is reported once.
func cycleKey(cycle []string) string {
	sorted := append([]string(nil), cycle...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// CheckDependencyDates flags depends_on pairs where the dependency is
// still active when the dependent starts. The dependency's end date must
// precede the dependent's start date.
func CheckDependencyDates(items []model.Item, rels []model.Relationship) []model.Inconsistency {
	byID := indexByID(items)
	var findings []model.Inconsistency
	for _, r := range rels {
		if r.Type != model.RelationDependsOn {
			continue
		}
		dependent, okA := byID[r.SourceID]
		dependency, okB := byID[r.TargetID]
		if !okA || !okB {
			continue
		}
		start, okStart := dateField(dependent, model.FieldStartDate)
		end, okEnd := dateField(dependency, model.FieldEndDate)
		if !okStart || !okEnd {
			continue
		}
		if !end.Before(start) {
			findings = append(findings, model.Inconsistency{
				Rule:     "dependency_date_overlap",
				Severity: model.SeverityWarning,
				ItemIDs:  []string{r.SourceID, r.TargetID},
				Message: fmt.Sprintf("dependency %s ends %s, after dependent %s starts %s",
					r.TargetID, end.Format("2006-01-02"), r.SourceID, start.Format("2006-01-02")),
			})
		}
	}
	return findings
}

// CheckBudgetRollup verifies that children budgets of part_of parents stay
// within the parent budget plus tolerance.
func CheckBudgetRollup(items []model.Item, rels []model.Relationship) []model.Inconsistency {
	byID := indexByID(items)
	children := map[string][]string{}
	for _, r := range rels {
		if r.Type != model.RelationPartOf {
			continue
		}
		children[r.TargetID] = append(children[r.TargetID], r.SourceID)
	}

	parents := make([]string, 0, len(children))
	for id := range children {
		parents = append(parents, id)
	}
	sort.Strings(parents)

	var findings []model.Inconsistency
	for _, parentID := range parents {
		parent, ok := byID[parentID]
		if !ok {
			continue
		}
		parentBudget, ok := parent.FloatValue(model.FieldBudget)
		if !ok || parentBudget <= 0 {
			continue
		}

		var sum float64
		ids := []string{parentID}
		for _, childID := range children[parentID] {
			child, ok := byID[childID]
			if !ok {
				continue
			}
			if b, ok := child.FloatValue(model.FieldBudget); ok {
				sum += b
				ids = append(ids, childID)
			}
		}
		if sum > parentBudget*budgetRollupTolerance {
			findings = append(findings, model.Inconsistency{
				Rule:     "budget_rollup",
				Severity: model.SeverityError,
				ItemIDs:  ids,
				Message:  fmt.Sprintf("children budgets %.2f exceed parent budget %.2f with tolerance", sum, parentBudget),
			})
		}
	}
	return findings
}

// CheckOwnerCapacity flags owners carrying more high-priority items than
// the capacity bound.
func CheckOwnerCapacity(items []model.Item) []model.Inconsistency {
	byOwner := map[string][]string{}
	for i := range items {
		owner := items[i].StringValue(model.FieldOwner)
		if owner == "" || items[i].StringValue(model.FieldPriority) != "high" {
			continue
		}
		byOwner[owner] = append(byOwner[owner], items[i].ID)
	}

	owners := make([]string, 0, len(byOwner))
	for o := range byOwner {
		owners = append(owners, o)
	}
	sort.Strings(owners)

	var findings []model.Inconsistency
	for _, owner := range owners {
		ids := byOwner[owner]
		if len(ids) <= ownerCapacity {
			continue
		}
		sort.Strings(ids)
		findings = append(findings, model.Inconsistency{
			Rule:     "owner_capacity",
			Severity: model.SeverityWarning,
			ItemIDs:  ids,
			Message:  fmt.Sprintf("owner %q holds %d high-priority items", owner, len(ids)),
		})
	}
	return findings
}

func indexByID(items []model.Item) map[string]*model.Item {
	byID := make(map[string]*model.Item, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	return byID
}

func dateField(it *model.Item, key string) (time.Time, bool) {
	f, ok := it.Fields[key]
	if !ok {
		return time.Time{}, false
	}
	t, ok := f.Value.(time.Time)
	return t, ok
}
