package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter narrows record sets. All fields are optional; the zero value
// matches every record. Text fields match case-insensitively as substrings,
// QueryRegex applies a regular expression to the query text, and Year/Month
// match exactly. Present fields are ANDed together.
type Filter struct {
	State      string `json:"state,omitempty"`
	District   string `json:"district,omitempty"`
	Block      string `json:"block,omitempty"`
	Season     string `json:"season,omitempty"`
	Sector     string `json:"sector,omitempty"`
	Category   string `json:"category,omitempty"`
	Crop       string `json:"crop,omitempty"`
	QueryType  string `json:"query_type,omitempty"`
	QueryRegex string `json:"query_regex,omitempty"`
	Year       *int   `json:"year,omitempty"`
	Month      *int   `json:"month,omitempty"`

	re *regexp.Regexp
}

// IsZero reports whether no filter field is set.
func (f *Filter) IsZero() bool {
	if f == nil {
		return true
	}
	return f.State == "" && f.District == "" && f.Block == "" &&
		f.Season == "" && f.Sector == "" && f.Category == "" &&
		f.Crop == "" && f.QueryType == "" && f.QueryRegex == "" &&
		f.Year == nil && f.Month == nil
}

// Compile validates and pre-compiles the QueryRegex pattern. The pattern is
// compiled case-insensitively. Calling Compile is required before Match when
// QueryRegex is set; search entry points do this during validation so that a
// bad pattern surfaces as a request error rather than silently matching
// nothing.
func (f *Filter) Compile() error {
	if f == nil || f.QueryRegex == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + f.QueryRegex)
	if err != nil {
		return fmt.Errorf("invalid query_regex: %w", err)
	}
	f.re = re
	return nil
}

// Match evaluates the filter against a record in process. Substring matches
// are case-insensitive; an uncompiled non-empty QueryRegex rejects the
// record.
func (f *Filter) Match(r *Record) bool {
	if f == nil || r == nil {
		return r != nil
	}
	for _, pair := range [][2]string{
		{f.State, r.State},
		{f.District, r.District},
		{f.Block, r.Block},
		{f.Season, r.Season},
		{f.Sector, r.Sector},
		{f.Category, r.Category},
		{f.Crop, r.Crop},
		{f.QueryType, r.QueryType},
	} {
		if pair[0] == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(pair[1]), strings.ToLower(pair[0])) {
			return false
		}
	}
	if f.QueryRegex != "" {
		if f.re == nil || !f.re.MatchString(r.QueryText) {
			return false
		}
	}
	if f.Year != nil && (r.Year == nil || *r.Year != *f.Year) {
		return false
	}
	if f.Month != nil && (r.Month == nil || *r.Month != *f.Month) {
		return false
	}
	return true
}
