package engagement

import (
	"strings"
	"testing"

	"signal-radar/internal/model"
)

func TestWriteCSVQuotesSpecialFields(t *testing.T) {
	var b strings.Builder
	leads := []model.Lead{{
		Name:         `Ann "The Boss" Lee`,
		JobTitle:     "CTO, Founder",
		ProfileURL:   "https://linkedin.com/in/ann",
		Connections:  500,
		Followers:    1200,
		CompanyName:  "Acme",
		ReactionType: "Like, Comment",
	}}
	if err := WriteCSV(&b, leads); err != nil {
		t.Fatalf("WriteCSV error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", b.String())
	}
	if lines[0] != "Name,Job Title,Location,Industry,Profile URL,Total Connections,Follower Count,Company Name,Employee Size,Company Location,Company Profile URL,Reaction Type" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	want := `"Ann ""The Boss"" Lee","CTO, Founder",,,https://linkedin.com/in/ann,500,1200,Acme,,,,"Like, Comment"`
	if lines[1] != want {
		t.Fatalf("unexpected row:\n got %s\nwant %s", lines[1], want)
	}
}
