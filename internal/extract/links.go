package extract

import (
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const sponsorPathMarker = "/sponsors/"

// FindSponsorLinks returns the absolute, fragment-free URLs of anchors whose
// href contains "/sponsors/" and that stay on baseURL's host. The result is
// sorted and free of duplicates.
func FindSponsorLinks(doc *goquery.Document, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.Contains(href, sponsorPathMarker) {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		u.Fragment = ""
		u.RawFragment = ""
		if u.Host != base.Host {
			return
		}
		seen[u.String()] = struct{}{}
	})

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	slices.Sort(links)
	return links
}
