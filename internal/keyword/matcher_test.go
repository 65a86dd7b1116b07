package keyword

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"signal-radar/internal/model"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	got := Normalize("  We're   HIRING!\nJoin\tus -- now ")
	if got != "we re hiring join us now" {
		t.Fatalf("unexpected normalized text %q", got)
	}
}

func TestFindMatchesIgnoresCaseAndPunctuation(t *testing.T) {
	t.Parallel()

	got := FindMatches("We're Hiring!", []string{"hiring"})
	if len(got) != 1 || got[0] != "hiring" {
		t.Fatalf("expected hiring match, got %v", got)
	}
}

func TestFindMatchesKeepsOrderAndOriginalCase(t *testing.T) {
	t.Parallel()

	text := "Series A funding closed, we hired 3 engineers"
	got := FindMatches(text, []string{"Funding", "nope", "Hire", "series-a"})
	want := []string{"Funding", "Hire", "series-a"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFindMatchesSkipsBlankKeywords(t *testing.T) {
	t.Parallel()

	if got := FindMatches("anything", []string{"", "!!"}); len(got) != 0 {
		t.Fatalf("expected no matches for blank keywords, got %v", got)
	}
}

func TestExtractSnippetShortTextUnchanged(t *testing.T) {
	t.Parallel()

	if got := ExtractSnippet("short text", 250); got != "short text" {
		t.Fatalf("unexpected snippet %q", got)
	}
}

func TestExtractSnippetCutsOnWordBoundary(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 80)
	got := ExtractSnippet(text, 250)
	if utf8.RuneCountInString(got) > 250+len(Ellipsis) {
		t.Fatalf("snippet too long: %d", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "word"+Ellipsis) {
		t.Fatalf("expected cut on word boundary, got %q", got[len(got)-20:])
	}
}

func TestExtractSnippetHardCutWithoutSpace(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 300)
	got := ExtractSnippet(text, 250)
	if got != strings.Repeat("x", 250)+Ellipsis {
		t.Fatalf("expected hard cut plus ellipsis, got len %d", len(got))
	}
}

func TestProcessPostSharesSnippet(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	now := date.Add(time.Hour)
	post := model.Post{Text: "Big funding news: we are hiring", URL: "https://p/1", Date: &date}

	events := ProcessPost(post, []string{"funding", "hiring", "layoffs"}, 7, now)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.ProfileID != 7 || ev.PostURL != "https://p/1" || ev.Snippet != post.Text || !ev.DetectedAt.Equal(now) {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
	if ProcessPost(model.Post{Text: "nothing"}, []string{"funding"}, 7, now) != nil {
		t.Fatalf("expected nil for no matches")
	}
}
