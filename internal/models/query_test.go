package models

import (
	"testing"
	"time"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *SearchQuery
		wantErr bool
	}{
		{"empty query", &SearchQuery{Query: ""}, true},
		{"valid query", &SearchQuery{Query: "hello"}, false},
		{"sets default top_k", &SearchQuery{Query: "x", TopK: 0}, false},
		{"caps top_k at 100", &SearchQuery{Query: "x", TopK: 200}, false},
		{"bad regex filter", &SearchQuery{Query: "x", Filters: Filter{QueryRegex: "("}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if tt.query.TopK == 0 {
					t.Error("expected default top_k to be set")
				}
				if tt.query.TopK > 100 {
					t.Errorf("expected top_k capped at 100, got %d", tt.query.TopK)
				}
			}
		})
	}
}

func TestRecord_EmbeddingText(t *testing.T) {
	r := &Record{
		Category:   "Weed Management",
		QueryType:  "Agriculture",
		QueryText:  "how to control weeds in paddy",
		AnswerText: "use pretilachlor 30 days after transplanting",
	}
	want := "Category: Weed Management. QueryType: Agriculture. Query: how to control weeds in paddy. Answer: use pretilachlor 30 days after transplanting"
	if got := r.EmbeddingText(); got != want {
		t.Errorf("EmbeddingText() = %q, want %q", got, want)
	}
}

func TestFilter_Match(t *testing.T) {
	year := 2024
	month := 6
	rec := &Record{
		State:     "Maharashtra",
		District:  "Pune",
		Category:  "Plant Protection",
		Crop:      "Paddy Dhan",
		QueryType: "Agriculture",
		QueryText: "Attack of stem borer on paddy",
		Year:      &year,
		Month:     &month,
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero filter matches", Filter{}, true},
		{"substring case-insensitive", Filter{State: "maha"}, true},
		{"substring miss", Filter{State: "kerala"}, false},
		{"multiple fields anded", Filter{State: "Maha", Crop: "dhan"}, true},
		{"anded miss", Filter{State: "Maha", Crop: "wheat"}, false},
		{"year match", Filter{Year: &year}, true},
		{"year mismatch", Filter{Year: intPtr(2020)}, false},
		{"month match", Filter{Month: &month}, true},
		{"regex match", Filter{QueryRegex: "stem\\s+borer"}, true},
		{"regex case-insensitive", Filter{QueryRegex: "ATTACK"}, true},
		{"regex miss", Filter{QueryRegex: "^borer"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.filter.Compile(); err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if got := tt.filter.Match(rec); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("nil year on record rejects year filter", func(t *testing.T) {
		f := Filter{Year: &year}
		if f.Match(&Record{State: "Maharashtra"}) {
			t.Error("expected no match when record year is nil")
		}
	})
}

func TestIngestTask_Clone(t *testing.T) {
	now := time.Now()
	task := &IngestTask{ID: 1, Status: TaskProcessing, Inserted: 5, StartedAt: &now}
	c := task.Clone()
	c.Inserted = 99
	*c.StartedAt = now.Add(time.Hour)
	if task.Inserted != 5 {
		t.Errorf("clone mutated original inserted: %d", task.Inserted)
	}
	if !task.StartedAt.Equal(now) {
		t.Error("clone shares started_at pointer with original")
	}
}

func intPtr(v int) *int { return &v }
