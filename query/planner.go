package query

import (
	"regexp"
	"strings"
)

// PeriodRule extracts a four-digit fiscal year from a query.
type PeriodRule struct {
	Name    string
	Pattern *regexp.Regexp
	// Extract turns the submatches of Pattern into a year. Returning false
	// lets the next rule try.
	Extract func(submatches []string) (string, bool)
}

// Plan is the outcome of inspecting a query.
type Plan struct {
	FiscalYear  string   // empty when no period was found
	Variants    []string // spellings of FiscalYear to look for in chunk metadata
	WantsLatest bool
}

// HasFiscalYear reports whether a period was detected.
func (p Plan) HasFiscalYear() bool {
	return p.FiscalYear != ""
}

// Planner detects fiscal periods and recency intent in queries.
type Planner struct {
	rules    []PeriodRule
	keywords []string
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithRules replaces the period rule table.
func WithRules(rules ...PeriodRule) PlannerOption {
	return func(p *Planner) {
		p.rules = rules
	}
}

// WithRecencyKeywords replaces the recency keyword set. Keywords are
// matched case-insensitively as substrings.
func WithRecencyKeywords(keywords ...string) PlannerOption {
	return func(p *Planner) {
		p.keywords = make([]string, len(keywords))
		for i, kw := range keywords {
			p.keywords[i] = strings.ToLower(kw)
		}
	}
}

// DefaultRecencyKeywords are the phrases that mark a query as asking for the
// most recent filings.
var DefaultRecencyKeywords = []string{
	"latest", "recent", "newest", "most recent", "current",
	"last quarter", "this year", "this quarter", "updated", "new",
}

var (
	bareYearPattern     = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	fyPattern           = regexp.MustCompile(`(?i)\bFY\s*(\d{2,4})\b`)
	fiscalPhrasePattern = regexp.MustCompile(`(?i)\bfiscal\s+(?:year\s+)?(\d{4})\b`)
)

// DefaultRules is the standard detection order: a bare year, then an FY
// tag, then a spelled out "fiscal year" phrase.
var DefaultRules = []PeriodRule{
	{
		Name:    "bare-year",
		Pattern: bareYearPattern,
		Extract: func(m []string) (string, bool) { return m[1], true },
	},
	{
		Name:    "fy-tag",
		Pattern: fyPattern,
		Extract: func(m []string) (string, bool) { return expandFYDigits(m[1]) },
	},
	{
		Name:    "fiscal-phrase",
		Pattern: fiscalPhrasePattern,
		Extract: func(m []string) (string, bool) { return m[1], true },
	},
}

// expandFYDigits maps "24" to "2024" and keeps four digit years. Three
// digits are ambiguous and rejected.
func expandFYDigits(digits string) (string, bool) {
	switch len(digits) {
	case 2:
		return "20" + digits, true
	case 4:
		return digits, true
	default:
		return "", false
	}
}

// NewPlanner creates a Planner with the default rules and keywords.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		rules: DefaultRules,
	}
	WithRecencyKeywords(DefaultRecencyKeywords...)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultPlanner uses DefaultRules and DefaultRecencyKeywords.
var DefaultPlanner = NewPlanner()

// DetectFiscalYear returns the first fiscal year referenced by q.
func (p *Planner) DetectFiscalYear(q string) (string, bool) {
	for _, rule := range p.rules {
		for _, m := range rule.Pattern.FindAllStringSubmatch(q, -1) {
			if year, ok := rule.Extract(m); ok {
				return year, true
			}
		}
	}
	return "", false
}

// WantsLatest reports whether q contains any recency keyword.
func (p *Planner) WantsLatest(q string) bool {
	lower := strings.ToLower(q)
	for _, kw := range p.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Plan inspects q once for both period and recency signals.
func (p *Planner) Plan(q string) Plan {
	plan := Plan{WantsLatest: p.WantsLatest(q)}
	if year, ok := p.DetectFiscalYear(q); ok {
		plan.FiscalYear = year
		plan.Variants = FiscalYearVariants(year)
	}
	return plan
}

// FiscalYearVariants lists the common spellings of a four-digit year as it
// appears in fiscal_year metadata.
func FiscalYearVariants(year string) []string {
	short := year
	if len(year) >= 2 {
		short = year[len(year)-2:]
	}
	return []string{
		year,
		"FY" + year,
		"FY" + short,
		"fiscal " + year,
		"fiscal year " + year,
		"Fiscal Year " + year,
		"FY " + year,
		"FY " + short,
	}
}

// MatchesAnyVariant reports whether value contains any variant, ignoring case.
func MatchesAnyVariant(value string, variants []string) bool {
	lower := strings.ToLower(value)
	for _, v := range variants {
		if strings.Contains(lower, strings.ToLower(v)) {
			return true
		}
	}
	return false
}
