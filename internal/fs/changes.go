package fs

import "sort"

// Classify buckets every path from the current scan against the persisted
// hash table. A path absent from prior is new; present with a different hash
// is modified; present with an equal hash is unchanged. Paths recorded in
// prior but missing from the scan are deleted. Buckets are sorted for
// deterministic processing order.
func Classify(scan map[string]string, prior map[string]string) ChangeSet {
	var cs ChangeSet

	for path, hash := range scan {
		prev, ok := prior[path]
		switch {
		case !ok:
			cs.New = append(cs.New, path)
		case prev != hash:
			cs.Modified = append(cs.Modified, path)
		default:
			cs.Unchanged = append(cs.Unchanged, path)
		}
	}

	for path := range prior {
		if _, ok := scan[path]; !ok {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	sort.Strings(cs.New)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Unchanged)
	sort.Strings(cs.Deleted)

	return cs
}
