package e2e

import (
	"testing"
)

func TestBuildCorpus_RecordsPopulated(t *testing.T) {
	c := BuildCorpus()
	if c.TotalRecords != len(c.Records) {
		t.Errorf("TotalRecords = %d, len(Records) = %d", c.TotalRecords, len(c.Records))
	}
	if c.TotalRecords < 50 {
		t.Errorf("expected at least 50 records, got %d", c.TotalRecords)
	}
	for i, rec := range c.Records {
		if rec.ID == "" || rec.State == "" || rec.District == "" {
			t.Errorf("record %d: missing id or location: %+v", i, rec)
		}
		if rec.Category == "" || rec.Crop == "" || rec.QueryType == "" {
			t.Errorf("record %d: missing topic fields", i)
		}
		if rec.QueryText == "" || rec.AnswerText == "" {
			t.Errorf("record %d: missing query or answer text", i)
		}
		if rec.CreatedOn.IsZero() {
			t.Errorf("record %d: zero CreatedOn", i)
		}
		if rec.Year == nil || rec.Month == nil {
			t.Errorf("record %d: year/month not set", i)
		}
	}
}

// Unique embedding texts are what make the top-rank assertions in the
// end-to-end tests sound: two records with the same canonical text would
// get identical embeddings and tie.
func TestBuildCorpus_UniqueIDsAndEmbeddingTexts(t *testing.T) {
	c := BuildCorpus()
	ids := make(map[string]bool)
	texts := make(map[string]string)
	for _, rec := range c.Records {
		if ids[rec.ID] {
			t.Errorf("duplicate record ID %q", rec.ID)
		}
		ids[rec.ID] = true
		text := rec.EmbeddingText()
		if other, dup := texts[text]; dup {
			t.Errorf("records %q and %q share embedding text %q", other, rec.ID, text)
		}
		texts[text] = rec.ID
	}
}

func TestBuildCorpus_QueryCasesTargetTheirRecords(t *testing.T) {
	c := BuildCorpus()
	if c.TotalQueries == 0 {
		t.Fatal("expected at least one query test case")
	}
	for i, tc := range c.TestCases {
		if tc.Query == "" {
			t.Errorf("test case %d: empty query", i)
		}
		if len(tc.ExpectedRecordIDs) == 0 {
			t.Errorf("test case %d: no expected record IDs", i)
			continue
		}
		for _, id := range tc.ExpectedRecordIDs {
			rec := c.RecordByID(id)
			if rec == nil {
				t.Errorf("test case %d: expected record %q not in corpus", i, id)
				continue
			}
			if tc.Query != rec.EmbeddingText() {
				t.Errorf("test case %d: query is not the embedding text of %q", i, id)
			}
		}
	}
}

func TestCorpus_RecordByID(t *testing.T) {
	c := BuildCorpus()
	if got := c.RecordByID(c.Records[0].ID); got != c.Records[0] {
		t.Errorf("RecordByID(%q) = %v, want first record", c.Records[0].ID, got)
	}
	if got := c.RecordByID("no-such-id"); got != nil {
		t.Errorf("RecordByID(no-such-id) = %v, want nil", got)
	}
}
