package engine

import (
	"fmt"
	"strings"
)

// SortKey orders results by one field.
type SortKey struct {
	Field      string
	Descending bool
}

// ParseSortDescriptors parses a comma-separated list of "field [ASC|DESC]"
// tokens. Direction defaults to ascending when omitted.
func ParseSortDescriptors(spec string) ([]SortKey, error) {
	var keys []SortKey
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		parts := strings.Fields(token)
		switch len(parts) {
		case 1:
			keys = append(keys, SortKey{Field: parts[0]})
		case 2:
			switch strings.ToUpper(parts[1]) {
			case "ASC":
				keys = append(keys, SortKey{Field: parts[0]})
			case "DESC":
				keys = append(keys, SortKey{Field: parts[0], Descending: true})
			default:
				return nil, fmt.Errorf("invalid sort direction %q in %q", parts[1], token)
			}
		default:
			return nil, fmt.Errorf("malformed sort token %q", token)
		}
	}
	return keys, nil
}
