// Package cli formats command line output for Sahayak.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agridesk/sahayak/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
	// OutputCompact is one line per hit, for piping into other tools.
	OutputCompact SearchOutputFormat = "compact"
)

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		writeSearchResultsCompact(w, response)
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%s search)\n\n",
		response.Count, response.QueryTime, response.Mode)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	rec := result.Record
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", result.Rank, result.Score)
	fmt.Fprintf(w, "ID: %s\n", rec.ID)
	if loc := location(rec); loc != "" {
		fmt.Fprintf(w, "Where: %s\n", loc)
	}
	if topic := topic(rec); topic != "" {
		fmt.Fprintf(w, "Topic: %s\n", topic)
	}
	fmt.Fprintf(w, "Q: %s\n", rec.QueryText)
	fmt.Fprintf(w, "A: %s\n", Truncate(rec.AnswerText, 300))
	fmt.Fprintln(w)
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for _, result := range response.Results {
		rec := result.Record
		fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\t%s\n",
			result.Rank, result.Score, rec.ID,
			Truncate(rec.QueryText, 60), Truncate(rec.AnswerText, 80))
	}
}

// location joins the place columns that are set, broadest first.
func location(rec *models.Record) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{rec.State, rec.District, rec.Block} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}

func topic(rec *models.Record) string {
	parts := make([]string, 0, 2)
	if rec.Category != "" {
		parts = append(parts, rec.Category)
	}
	if rec.Crop != "" {
		parts = append(parts, rec.Crop)
	}
	return strings.Join(parts, " | ")
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteRecords writes plain records, most useful for the latest-records view.
func WriteRecords(w io.Writer, records []*models.Record, format SearchOutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, rec := range records {
		embedded := " "
		if rec.HasEmbedding() {
			embedded = "*"
		}
		fmt.Fprintf(w, "%s %s  %s  %s\n", embedded, rec.CreatedOn.Format("2006-01-02"),
			rec.ID, Truncate(rec.QueryText, 70))
	}
	return nil
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
