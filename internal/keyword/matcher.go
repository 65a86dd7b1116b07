package keyword

import (
	"strings"
	"time"
	"unicode"

	"signal-radar/internal/model"
)

const (
	// DefaultSnippetLength 摘要默认长度。
	DefaultSnippetLength = 250
	// Ellipsis 截断标记。
	Ellipsis = "..."
)

// Normalize 小写化，非字母数字字符替换为空格，并压缩空白。
func Normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// FindMatches 按调用方顺序返回命中的原始关键词。子串匹配，"hire" 会命中 "hired"。
func FindMatches(text string, keywords []string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	matches := make([]string, 0)
	for _, kw := range keywords {
		needle := Normalize(kw)
		if needle == "" {
			continue
		}
		if strings.Contains(normalized, needle) {
			matches = append(matches, kw)
		}
	}
	return matches
}

// ExtractSnippet 超长时在 maxLen 处截断并回退到最近的空格，再追加省略号。
func ExtractSnippet(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSnippetLength
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	cut := runes[:maxLen]
	if i := lastSpace(cut); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + Ellipsis
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}

// ProcessPost 每个命中关键词生成一条事件，共用同一段摘要。
func ProcessPost(post model.Post, keywords []string, profileID uint, detectedAt time.Time) []model.SignalEvent {
	matches := FindMatches(post.Text, keywords)
	if len(matches) == 0 {
		return nil
	}
	snippet := ExtractSnippet(post.Text, DefaultSnippetLength)
	events := make([]model.SignalEvent, 0, len(matches))
	for _, kw := range matches {
		events = append(events, model.SignalEvent{
			ProfileID:  profileID,
			Keyword:    kw,
			PostURL:    post.URL,
			PostDate:   post.Date,
			Snippet:    snippet,
			DetectedAt: detectedAt,
		})
	}
	return events
}
