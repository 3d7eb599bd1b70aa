package podcast

import (
	"errors"
	"strings"
	"testing"

	"papercast/internal/services"
)

func TestNewPaper(t *testing.T) {
	paper, err := NewPaper("2501.01234", "Scaling Laws Revisited", []string{"A. Researcher", " "}, "https://huggingface.co/papers/2501.01234")
	if err != nil {
		t.Fatalf("NewPaper: %v", err)
	}
	if len(paper.Authors) != 1 {
		t.Fatalf("blank authors should be dropped: %v", paper.Authors)
	}
	if paper.CollectedAt.IsZero() {
		t.Fatal("collected_at should be set")
	}
}

func TestNewPaperRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		title   string
		authors []string
		url     string
	}{
		{"empty id", "", "t", []string{"a"}, "https://example.com"},
		{"empty title", "x", "", []string{"a"}, "https://example.com"},
		{"long title", "x", strings.Repeat("t", MaxTitleLength+1), []string{"a"}, "https://example.com"},
		{"no authors", "x", "t", nil, "https://example.com"},
		{"bad url scheme", "x", "t", []string{"a"}, "ftp://example.com"},
		{"no host", "x", "t", []string{"a"}, "https://"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPaper(tc.id, tc.title, tc.authors, tc.url)
			if err == nil {
				t.Fatal("expected construction error")
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker, got %v", err)
			}
		})
	}
}

func TestSetSummaryBounds(t *testing.T) {
	paper, err := NewPaper("x", "t", []string{"a"}, "https://example.com/p")
	if err != nil {
		t.Fatalf("NewPaper: %v", err)
	}
	if err := paper.SetSummary(strings.Repeat("s", MaxSummaryLength+1)); err == nil {
		t.Fatal("over-long summary should be rejected")
	}
	if err := paper.SetSummary("a concise summary"); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}
	if paper.Summary != "a concise summary" {
		t.Fatalf("summary = %q", paper.Summary)
	}
}
