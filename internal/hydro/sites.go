package hydro

import "strings"

// MergeSites concatenates the lists, dropping blanks and duplicates while
// keeping first-seen order.
func MergeSites(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// ResolveSites merges explicit sites with the metadata site column when
// fromMetadata is set. An empty result is an error.
func ResolveSites(explicit []string, meta *Metadata, column string, fromMetadata bool) ([]string, error) {
	var derived []string
	if fromMetadata {
		if meta == nil {
			return nil, ErrNoMetadata
		}
		if !meta.HasColumn(column) {
			return nil, &ValidationError{Field: "metadata", Value: column, Msg: "metadata does not contain the site column " + column}
		}
		derived = meta.Values(column)
	}
	sites := MergeSites(explicit, derived)
	if len(sites) == 0 {
		return nil, ErrNoSites
	}
	return sites, nil
}
