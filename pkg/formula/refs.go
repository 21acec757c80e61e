package formula

import "sort"

// FieldReferences returns the distinct field names a formula reads,
// sorted for deterministic output. A formula with no references
// returns an empty slice.
func FieldReferences(n Node) []string {
	seen := make(map[string]struct{})
	Walk(n, func(node Node) {
		if ref, ok := node.(*FieldRef); ok {
			seen[ref.Name] = struct{}{}
		}
	})

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
