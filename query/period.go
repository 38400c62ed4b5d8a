package query

import (
	"regexp"
	"strconv"
)

// Unparsable is returned by ParseYear and ParseQuarter when the input
// carries no recognizable period.
const Unparsable = -1

var (
	fourDigitYear  = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)
	fyShortYear    = regexp.MustCompile(`(?i)\bFY\s*(\d{2})\b`)
	quarterPrefix  = regexp.MustCompile(`(?i)Q\s?([1-4])(?:\D|$)`)
	quarterPostfix = regexp.MustCompile(`(?i)(?:^|\D)([1-4])Q(?:[^A-Za-z]|$)`)
)

// ParseYear extracts a year from free-text fiscal_year metadata such as
// "FY2024", "fiscal year 2023" or "FY24".
func ParseYear(s string) int {
	if m := fourDigitYear.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		return year
	}
	if m := fyShortYear.FindStringSubmatch(s); m != nil {
		yy, _ := strconv.Atoi(m[1])
		return 2000 + yy
	}
	return Unparsable
}

// ParseQuarter extracts a quarter number from text such as "Q3", "2024Q2"
// or "4Q".
func ParseQuarter(s string) int {
	if m := quarterPrefix.FindStringSubmatch(s); m != nil {
		q, _ := strconv.Atoi(m[1])
		return q
	}
	if m := quarterPostfix.FindStringSubmatch(s); m != nil {
		q, _ := strconv.Atoi(m[1])
		return q
	}
	return Unparsable
}
