package extract

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Word lists used by Normalize. They are compared against lower-cased text.
var (
	placeholderNames = []string{"img", "image"}

	stopwords = []string{
		"logo", "sponsor", "exhibitor", "partner", "attendee", "companies",
		"blog", "quick reads", "boardroom", "agenda", "session",
	}

	ctaPhrases = []string{
		"see all attendees", "view all attendees", "see all sponsors", "download brochure",
		"register", "learn more", "contact", "book a meeting",
	}

	eventKeywords = []string{"field service", "west", "east", "conference", "summit"}

	businessSecondWords = []string{
		"technologies", "technology", "digital", "consulting", "planning", "solutions",
		"systems", "services", "software", "networks", "group", "global", "medical",
	}

	legalSuffixes = []string{"inc", "llc", "ltd", "corp", "corporation", "company", "co", "gmbh", "plc"}

	headingKeywords = []string{"sponsor", "exhibitor", "partner", "attendee", "companies"}
)

// Table accessors return copies so callers cannot mutate the heuristics.

func Stopwords() []string { return slices.Clone(stopwords) }

func CTAPhrases() []string { return slices.Clone(ctaPhrases) }

func PlaceholderNames() []string { return slices.Clone(placeholderNames) }

func EventKeywords() []string { return slices.Clone(eventKeywords) }

func BusinessSecondWords() []string { return slices.Clone(businessSecondWords) }

func LegalSuffixes() []string { return slices.Clone(legalSuffixes) }

func HeadingKeywords() []string { return slices.Clone(headingKeywords) }

const maxNameTokens = 7

// Word boundaries count any Unicode letter, digit or underscore as a word
// character; RE2's \b is ASCII only.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:[^\p{L}\p{N}_]|$)`
)

var (
	imageExtension = regexp.MustCompile(`(?i)` + wordStart + `(?:png|jpg|jpeg|svg|webp|gif)` + wordEnd)
	opaqueID       = regexp.MustCompile(`^[A-Za-z0-9]{20,}$`)
	eventCode      = regexp.MustCompile(`^20\p{Nd}{2} \p{Nd}{3,}` + wordEnd)
	yearToken      = regexp.MustCompile(wordStart + `20\p{Nd}{2}` + wordEnd)
	trailingSepRun = regexp.MustCompile(`[ |\-–—:]+$`)
)

// collapseSpace joins the fields of s with single ASCII spaces. Any Unicode
// space separates fields, &nbsp; included.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize cleans a raw text candidate into a company name. It returns false
// when the text looks like anything other than a name: captions, sentence
// fragments, URLs, file names, ids, navigation labels, event titles or a
// two-word personal name.
//
// A returned name is a fixed point: Normalize(name) yields name again.
func Normalize(raw string) (string, bool) {
	s := raw
	for {
		s = collapseSpace(s)
		lower := strings.ToLower(s)

		switch {
		case s == "":
			return "", false
		case slices.Contains(placeholderNames, lower):
			return "", false
		case strings.HasSuffix(s, ".") || strings.HasSuffix(s, ",") || strings.HasSuffix(s, ";"):
			return "", false
		case strings.HasPrefix(lower, "and "):
			return "", false
		case len(strings.Fields(s)) > maxNameTokens:
			return "", false
		case strings.Contains(s, "?") || strings.Contains(lower, "http") || strings.Contains(s, "/"):
			return "", false
		case imageExtension.MatchString(s):
			return "", false
		case opaqueID.MatchString(s):
			return "", false
		case eventCode.MatchString(s):
			return "", false
		case slices.Contains(stopwords, lower):
			return "", false
		case utf8.RuneCountInString(s) < 2:
			return "", false
		}

		stripped := collapseSpace(trailingSepRun.ReplaceAllString(s, ""))
		if stripped != s {
			// Run the whole chain again on the shorter text.
			s = stripped
			continue
		}
		break
	}

	lower := strings.ToLower(s)
	if slices.Contains(ctaPhrases, lower) {
		return "", false
	}
	if yearToken.MatchString(s) && containsAny(lower, eventKeywords) {
		return "", false
	}
	if looksLikePersonName(s) {
		return "", false
	}
	return s, true
}

// looksLikePersonName reports whether s is two Title-case words that are not
// rescued by a business second word or a legal-entity suffix.
func looksLikePersonName(s string) bool {
	words := strings.Fields(s)
	if len(words) != 2 || !isTitleWord(words[0]) || !isTitleWord(words[1]) {
		return false
	}
	if slices.Contains(businessSecondWords, strings.ToLower(words[1])) {
		return false
	}
	return !containsAny(strings.ToLower(s), legalSuffixes)
}

// isTitleWord: first rune upper case, the rest has at least one cased rune and
// none of them upper case.
func isTitleWord(w string) bool {
	first, size := utf8.DecodeRuneInString(w)
	if first == utf8.RuneError || !unicode.IsUpper(first) {
		return false
	}
	cased := false
	for _, r := range w[size:] {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			return false
		case unicode.IsLower(r):
			cased = true
		}
	}
	return cased
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
