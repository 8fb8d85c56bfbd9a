package filter

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"

	"github.com/amishk599/jobinbox/internal/model"
)

// Ensure Pipeline implements model.ListingFilter.
var _ model.ListingFilter = (*Pipeline)(nil)

// Rules are the configured keyword lists. Empty lists disable their stage.
type Rules struct {
	DescExclude    []string `yaml:"desc_exclude"`
	TitleExclude   []string `yaml:"title_exclude"`
	TitleInclude   []string `yaml:"title_include"`
	Languages      []string `yaml:"languages"` // ISO 639-1 codes
	CompanyExclude []string `yaml:"company_exclude"`
}

// LanguageDetector guesses the ISO 639-1 language of a text.
// ok is false when no confident guess could be made.
type LanguageDetector interface {
	Detect(text string) (lang string, ok bool)
}

type whatlangDetector struct{}

func (whatlangDetector) Detect(text string) (string, bool) {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "", false
	}
	code := info.Lang.Iso6391()
	return code, code != ""
}

// Pipeline applies the rules in a fixed order and stops at the first stage
// that rejects a listing:
// description exclude, title exclude, title include, language, company exclude.
type Pipeline struct {
	descExclude    *termSet
	titleExclude   *termSet
	titleInclude   *termSet
	companyExclude *termSet
	languages      map[string]bool
	detector       LanguageDetector
}

// New compiles rules into a Pipeline. Matching is case-insensitive substring
// matching under Unicode case folding; blank terms are ignored.
func New(rules Rules) *Pipeline {
	p := &Pipeline{
		descExclude:    newTermSet(rules.DescExclude),
		titleExclude:   newTermSet(rules.TitleExclude),
		titleInclude:   newTermSet(rules.TitleInclude),
		companyExclude: newTermSet(rules.CompanyExclude),
		detector:       whatlangDetector{},
	}
	for _, lang := range rules.Languages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if p.languages == nil {
			p.languages = make(map[string]bool)
		}
		p.languages[lang] = true
	}
	return p
}

// Match returns true if the listing survives every stage.
func (p *Pipeline) Match(l model.Listing) bool {
	if p.descExclude.containedIn(l.Description) {
		return false
	}
	if p.titleExclude.containedIn(l.Title) {
		return false
	}
	if p.titleInclude != nil && !p.titleInclude.containedIn(l.Title) {
		return false
	}
	if !p.languageAllowed(l.Description) {
		return false
	}
	if p.companyExclude.containedIn(l.Company) {
		return false
	}
	return true
}

// Apply returns the listings that pass, preserving order.
func (p *Pipeline) Apply(listings []model.Listing) []model.Listing {
	kept := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if p.Match(l) {
			kept = append(kept, l)
		}
	}
	return kept
}

// languageAllowed accepts any listing whose language cannot be determined.
func (p *Pipeline) languageAllowed(text string) bool {
	if len(p.languages) == 0 || strings.TrimSpace(text) == "" {
		return true
	}
	lang, ok := p.detector.Detect(text)
	if !ok {
		return true
	}
	return p.languages[lang]
}

// termSet is a compiled list of case-folded terms.
type termSet struct {
	matcher *ahocorasick.Matcher
}

func newTermSet(terms []string) *termSet {
	var folded []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		folded = append(folded, fold(t))
	}
	if len(folded) == 0 {
		return nil
	}
	return &termSet{matcher: ahocorasick.NewStringMatcher(folded)}
}

// containedIn reports whether any term occurs in text. A nil set matches nothing.
func (s *termSet) containedIn(text string) bool {
	if s == nil || text == "" {
		return false
	}
	return len(s.matcher.MatchThreadSafe([]byte(fold(text)))) > 0
}

// fold builds a fresh Caser per call; Casers are not safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}
