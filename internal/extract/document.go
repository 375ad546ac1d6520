package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Source hints recorded on extracted companies.
const (
	HintImgAlt            = "img alt"
	HintSponsorH1         = "sponsor page h1"
	HintSponsorTitle      = "sponsor page title"
	HintSponsorImgAlt     = "sponsor page img alt"
	HintNearHeadingPrefix = "near heading: "

	headingHintRunes = 30
)

// ParseHTML parses an HTML document.
func ParseHTML(raw string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// ExtractFromHTML parses raw and runs ExtractFromDocument on it.
func ExtractFromHTML(raw, baseURL string) ([]Company, error) {
	doc, err := ParseHTML(raw)
	if err != nil {
		return nil, err
	}
	return ExtractFromDocument(doc, baseURL), nil
}

// ExtractFromDocument collects company names from image alt texts and from
// links that sit next to a sponsor/exhibitor/partner style heading.
func ExtractFromDocument(doc *goquery.Document, baseURL string) []Company {
	var out []Company

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if name, ok := Normalize(img.AttrOr("alt", "")); ok {
			out = append(out, Company{Name: name, SourceURL: baseURL, SourceHint: HintImgAlt})
		}
	})

	doc.Find("h1, h2, h3, h4").Each(func(_ int, h *goquery.Selection) {
		heading := strings.ToLower(joinedText(h))
		if !containsAny(heading, headingKeywords) {
			return
		}
		parent := h.Parent()
		if parent.Length() == 0 {
			return
		}
		hint := HintNearHeadingPrefix + truncateRunes(heading, headingHintRunes)
		parent.Find("a").Each(func(_ int, a *goquery.Selection) {
			if name, ok := Normalize(joinedText(a)); ok {
				out = append(out, Company{Name: name, SourceURL: baseURL, SourceHint: hint})
			}
		})
	})

	return Dedupe(out)
}

// ExtractSponsorName picks the company name of a single sponsor page: the
// first h1, then the page title up to the first "|", then the first image alt
// text that normalizes. The returned hint says which one matched.
func ExtractSponsorName(doc *goquery.Document) (name, hint string, ok bool) {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if name, ok := Normalize(joinedText(h1)); ok {
			return name, HintSponsorH1, true
		}
	}

	if title := doc.Find("title").First(); title.Length() > 0 {
		text, _, _ := strings.Cut(strings.TrimSpace(title.Text()), "|")
		if name, ok := Normalize(text); ok {
			return name, HintSponsorTitle, true
		}
	}

	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		name, ok = Normalize(img.AttrOr("alt", ""))
		return !ok
	})
	if ok {
		return name, HintSponsorImgAlt, true
	}
	return "", "", false
}

// joinedText concatenates the trimmed, non-empty text nodes below the
// selection with single spaces.
func joinedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
