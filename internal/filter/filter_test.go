package filter

import (
	"testing"

	"github.com/amishk599/jobinbox/internal/model"
)

func listing(title, company, desc string) model.Listing {
	return model.Listing{Title: title, Company: company, Description: desc}
}

type stubDetector struct {
	lang string
	ok   bool
}

func (d stubDetector) Detect(string) (string, bool) { return d.lang, d.ok }

func TestPipeline_Match(t *testing.T) {
	tests := []struct {
		name      string
		rules     Rules
		listing   model.Listing
		wantMatch bool
	}{
		{
			name:      "title exclude wins over include",
			rules:     Rules{TitleExclude: []string{"Senior", "Intern"}, TitleInclude: []string{"Engineer"}},
			listing:   listing("Senior Intern Advocate", "Acme", ""),
			wantMatch: false,
		},
		{
			name:      "title exclude alone",
			rules:     Rules{TitleExclude: []string{"Senior", "Intern"}},
			listing:   listing("Senior Intern Advocate", "Acme", ""),
			wantMatch: false,
		},
		{
			name:      "title include passes",
			rules:     Rules{TitleExclude: []string{"Senior", "Intern"}, TitleInclude: []string{"Engineer"}},
			listing:   listing("Data Engineer", "Acme", ""),
			wantMatch: true,
		},
		{
			name:      "title include misses",
			rules:     Rules{TitleExclude: []string{"Senior", "Intern"}, TitleInclude: []string{"Engineer"}},
			listing:   listing("Marketing Lead", "Acme", ""),
			wantMatch: false,
		},
		{
			name:      "case insensitive description exclude",
			rules:     Rules{DescExclude: []string{"SECURITY CLEARANCE"}},
			listing:   listing("Engineer", "Acme", "Active security clearance required"),
			wantMatch: false,
		},
		{
			name:      "company exclude",
			rules:     Rules{CompanyExclude: []string{"staffing"}},
			listing:   listing("Engineer", "Best Staffing LLC", ""),
			wantMatch: false,
		},
		{
			name:      "unicode case folding",
			rules:     Rules{TitleInclude: []string{"ÉQUIPE"}},
			listing:   listing("Chef d'équipe", "Acme", ""),
			wantMatch: true,
		},
		{
			name:      "blank terms are ignored",
			rules:     Rules{TitleExclude: []string{"", "  "}, TitleInclude: []string{" "}},
			listing:   listing("Anything", "Acme", ""),
			wantMatch: true,
		},
		{
			name:      "empty rules pass all",
			rules:     Rules{},
			listing:   listing("Any Role", "Anyone", "anything"),
			wantMatch: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.rules)
			if got := p.Match(tt.listing); got != tt.wantMatch {
				t.Errorf("Match() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestPipeline_Languages(t *testing.T) {
	tests := []struct {
		name      string
		detector  stubDetector
		desc      string
		wantMatch bool
	}{
		{"allowed language", stubDetector{"en", true}, "We are hiring", true},
		{"other language", stubDetector{"de", true}, "Wir stellen ein", false},
		{"detection failure accepted", stubDetector{"", false}, "???", true},
		{"empty description accepted", stubDetector{"de", true}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Rules{Languages: []string{"EN", "fr"}})
			p.detector = tt.detector
			if got := p.Match(listing("Engineer", "Acme", tt.desc)); got != tt.wantMatch {
				t.Errorf("Match() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestPipeline_LanguageDetectionDefault(t *testing.T) {
	p := New(Rules{Languages: []string{"en"}})
	english := "We are looking for an experienced software engineer to join our growing platform team and help us build reliable services."
	if !p.Match(listing("Engineer", "Acme", english)) {
		t.Error("expected English description to pass")
	}
}

func TestPipeline_Apply_PreservesOrder(t *testing.T) {
	p := New(Rules{TitleInclude: []string{"engineer"}})
	in := []model.Listing{
		listing("Backend Engineer", "A", ""),
		listing("Designer", "B", ""),
		listing("Platform Engineer", "C", ""),
	}
	got := p.Apply(in)
	if len(got) != 2 || got[0].Company != "A" || got[1].Company != "C" {
		t.Fatalf("Apply() = %+v", got)
	}
	if len(p.Apply(nil)) != 0 {
		t.Error("Apply(nil) should be empty")
	}
}
