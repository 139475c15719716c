package runner

import "sort"

// gridCombos expands grid search params into the Cartesian product of
// their values. Keys are walked in sorted order so the combo sequence is
// deterministic.
func gridCombos(params map[string][]any) []map[string]any {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]any{{}}
	for _, key := range keys {
		next := make([]map[string]any, 0, len(combos)*len(params[key]))
		for _, combo := range combos {
			for _, value := range params[key] {
				expanded := make(map[string]any, len(combo)+1)
				for k, v := range combo {
					expanded[k] = v
				}
				expanded[key] = value
				next = append(next, expanded)
			}
		}
		combos = next
	}
	return combos
}
