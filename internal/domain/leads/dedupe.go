package leads

// Dedupe returns one canonical record per UniquePropertyID, in order of the
// key's first appearance. Within a group a promoted record (LeadID set) beats
// an unpromoted one; otherwise the newer CreatedDay wins and an empty
// (unparseable) day never wins. Equal candidates keep the earlier record.
// Records without a UniquePropertyID are passed through unmerged.
func Dedupe(records []Lead) []Lead {
	out := make([]Lead, 0, len(records))
	index := make(map[string]int, len(records))

	for _, rec := range records {
		if rec.UniquePropertyID == "" {
			out = append(out, rec)
			continue
		}
		pos, seen := index[rec.UniquePropertyID]
		if !seen {
			index[rec.UniquePropertyID] = len(out)
			out = append(out, rec)
			continue
		}
		if preferred(rec, out[pos]) {
			out[pos] = rec
		}
	}
	return out
}

// preferred reports whether candidate should replace current.
func preferred(candidate, current Lead) bool {
	if candidate.Promoted() != current.Promoted() {
		return candidate.Promoted()
	}
	if candidate.CreatedDay == "" {
		return false
	}
	if current.CreatedDay == "" {
		return true
	}
	return candidate.CreatedDay > current.CreatedDay
}
