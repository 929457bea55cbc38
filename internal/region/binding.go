package region

import "strings"

// BoundRegion pairs a matched Region with the invert contribution its
// token carried (a `~prefix` inverts only that single region's
// contribution to the binding, spec §4.5).
type BoundRegion struct {
	Region *Region
	Invert bool
}

// Binding is the result of parsing an observer's
// `regions = [tag_or_name_list] [= unite_rule]` expression (spec
// §4.5).
type Binding struct {
	Regions   []BoundRegion
	UniteRule string
}

// ParseBinding resolves a region-reference string against registry.
// The string is split on '=' into the tag-or-name list and an
// optional unite rule; the list is split on ',' into tokens, each
// looked up via Registry.ByNameOrTag, with a leading '~' inverting
// that token's matches.
//
// A region name is bound at most once (spec §8 S4: "zoneA,~r2" over
// r1/r2 both tagged zoneA must match {r1} only). Tokens are applied in
// order: a later `~name` token targeting a region an earlier token
// already bound positively excludes it from the set entirely, rather
// than contributing a second, contradictory inverted entry for the
// same region; a `~name` token with no prior match for that region
// still binds it, inverted, same as before. Any other re-mention of
// an already-bound region simply overwrites its entry, last token
// wins.
func ParseBinding(expr string, registry *Registry) Binding {
	head, uniteRule := splitUniteRule(expr)

	bound := make(map[string]BoundRegion)
	var order []string

	for _, tok := range strings.Split(head, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		invert := false
		if strings.HasPrefix(tok, "~") {
			invert = true
			tok = strings.TrimPrefix(tok, "~")
		}
		for _, reg := range registry.ByNameOrTag(tok) {
			if invert {
				if _, matched := bound[reg.Name]; matched {
					delete(bound, reg.Name)
					continue
				}
			}
			if _, seen := bound[reg.Name]; !seen {
				order = append(order, reg.Name)
			}
			bound[reg.Name] = BoundRegion{Region: reg, Invert: invert}
		}
	}

	regions := make([]BoundRegion, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		if br, ok := bound[name]; ok {
			regions = append(regions, br)
		}
	}

	return Binding{Regions: regions, UniteRule: uniteRule}
}

func splitUniteRule(expr string) (head, uniteRule string) {
	parts := strings.SplitN(expr, "=", 2)
	head = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		uniteRule = strings.TrimSpace(parts[1])
	}
	return head, uniteRule
}

// Contains evaluates a binding's combined membership test for (x, y):
// a point counts if any non-inverted region contains it, or any
// inverted region does NOT contain it — i.e. each BoundRegion
// contributes its own (possibly inverted) test, and the binding as a
// whole is the logical OR of its contributions.
func (b Binding) Contains(x, y float64) bool {
	for _, br := range b.Regions {
		contains := br.Region.Contains(x, y)
		if br.Invert {
			contains = !contains
		}
		if contains {
			return true
		}
	}
	return false
}
