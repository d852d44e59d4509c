// Package dispatch resolves which extraction pipelines run for a set of
// chunk categories. The mapping is configuration, not logic: it comes from
// the registry's pipeline table and stays reviewable as data.
package dispatch

import "sort"

// Dispatcher answers "which pipelines for these categories". Safe for
// concurrent use; the table is never mutated after construction.
type Dispatcher struct {
	table map[string][]string
}

func New(table map[string][]string) *Dispatcher {
	return &Dispatcher{table: table}
}

// Pipelines returns the union of pipelines mapped from the given categories,
// deduplicated, in a deterministic order (categories sorted, then table row
// order). Categories mapped to nothing and unknown categories contribute
// nothing; they are not errors.
func (d *Dispatcher) Pipelines(categories []string) []string {
	uniq := make([]string, 0, len(categories))
	seenCat := make(map[string]bool, len(categories))
	for _, c := range categories {
		if c == "" || seenCat[c] {
			continue
		}
		seenCat[c] = true
		uniq = append(uniq, c)
	}
	sort.Strings(uniq)

	var out []string
	seen := make(map[string]bool)
	for _, c := range uniq {
		for _, p := range d.table[c] {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Categories lists the mapped categories, sorted. Used to validate override
// tables and to report coverage.
func (d *Dispatcher) Categories() []string {
	out := make([]string, 0, len(d.table))
	for c := range d.table {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
