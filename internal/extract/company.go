// Package extract turns conference web pages into candidate company names:
// it cleans raw text into names, discovers sponsor sub-pages and scrapes a
// site into a deduplicated company list.
package extract

import "strings"

// Company is one extracted company candidate.
type Company struct {
	Name       string
	SourceURL  string
	SourceHint string
}

// Key is the identity used for deduplication.
func (c Company) Key() string {
	return strings.ToLower(c.Name)
}

// Dedupe drops companies whose lower-cased name was already seen. Order is
// first-seen and the first record wins.
func Dedupe(companies []Company) []Company {
	seen := make(map[string]struct{}, len(companies))
	out := make([]Company, 0, len(companies))
	for _, c := range companies {
		k := c.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Names returns the company names in order.
func Names(companies []Company) []string {
	out := make([]string, len(companies))
	for i, c := range companies {
		out[i] = c.Name
	}
	return out
}
