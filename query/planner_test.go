package query

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFiscalYear(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		want   string
		wantOK bool
	}{
		{"bare year", "Acme capital expenditure 2024", "2024", true},
		{"older bare year", "revenue in 1999 vs today", "1999", true},
		{"fy four digits", "FY2023 operating margin", "2023", true},
		{"fy with space", "guidance for FY 2025", "2025", true},
		{"fy two digits", "Acme FY24 results", "2024", true},
		{"fy lowercase", "fy23 capex", "2023", true},
		{"fy three digits rejected", "FY202 draft", "", false},
		{"fiscal phrase", "fiscal 2022 cash flow", "2022", true},
		{"fiscal year phrase", "Fiscal Year 2021 outlook", "2021", true},
		{"bare year wins over fy", "FY23 compared with 2024", "2024", true},
		{"no year", "what is the debt load", "", false},
		{"number too long", "order 120245 units", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DefaultPlanner.DetectFiscalYear(tt.query)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFiscalYearVariants(t *testing.T) {
	assert.Equal(t, []string{
		"2024", "FY2024", "FY24", "fiscal 2024", "fiscal year 2024",
		"Fiscal Year 2024", "FY 2024", "FY 24",
	}, FiscalYearVariants("2024"))
}

func TestMatchesAnyVariant(t *testing.T) {
	variants := FiscalYearVariants("2024")
	assert.True(t, MatchesAnyVariant("FY24", variants))
	assert.True(t, MatchesAnyVariant("fy2024", variants))
	assert.True(t, MatchesAnyVariant("fiscal year 2024", variants))
	assert.False(t, MatchesAnyVariant("FY23", variants))
	assert.False(t, MatchesAnyVariant("FY2023", variants))
	assert.False(t, MatchesAnyVariant("Unknown", variants))
}

func TestWantsLatest(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"What is the LATEST revenue guidance", true},
		{"most recent 10-Q", true},
		{"this quarter results", true},
		{"any news on margins", true}, // substring match on "new"
		{"historical revenue", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPlanner.WantsLatest(tt.query))
		})
	}
}

func TestPlan(t *testing.T) {
	plan := DefaultPlanner.Plan("latest Acme FY24 capex")
	assert.True(t, plan.HasFiscalYear())
	assert.Equal(t, "2024", plan.FiscalYear)
	assert.Contains(t, plan.Variants, "FY24")
	assert.True(t, plan.WantsLatest)

	plan = DefaultPlanner.Plan("debt covenants")
	assert.False(t, plan.HasFiscalYear())
	assert.Empty(t, plan.Variants)
	assert.False(t, plan.WantsLatest)
}

func TestPlanner_CustomRulesAndKeywords(t *testing.T) {
	p := NewPlanner(
		WithRules(PeriodRule{
			Name:    "calendar",
			Pattern: regexp.MustCompile(`CY(\d{4})`),
			Extract: func(m []string) (string, bool) { return m[1], true },
		}),
		WithRecencyKeywords("Fresh"),
	)

	year, ok := p.DetectFiscalYear("CY2020 and 2024")
	assert.True(t, ok)
	assert.Equal(t, "2020", year)
	assert.True(t, p.WantsLatest("fresh numbers"))
	assert.False(t, p.WantsLatest("latest numbers"))
}
