package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"signal-radar/internal/model"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

// MaxPostsPerProfile 每个档案最多检查的帖子数。
const MaxPostsPerProfile = 3

// Grouping 是批量抓取结果按请求档案分组后的产物。
type Grouping struct {
	// Posts 以请求时的原始 URL 为键，出现在结果中但没有帖子的档案对应空切片。
	Posts map[string][]model.Post
	// Unmatched 记录无法对应到任何请求的档案链接。
	Unmatched []string
}

// MatchToRequest 提取记录中的档案链接并与请求列表比对，命中时返回原始请求 URL。
func MatchToRequest(item gjson.Result, schema Schema, requested []string) (string, bool) {
	return matchURL(schema.ProfileURL.String(item), newRequestIndex(requested))
}

type requestIndex map[string]string

func newRequestIndex(requested []string) requestIndex {
	idx := make(requestIndex, len(requested))
	for _, r := range requested {
		key := MatchKey(r)
		if _, exists := idx[key]; !exists {
			idx[key] = r
		}
	}
	return idx
}

func matchURL(extracted string, idx requestIndex) (string, bool) {
	if extracted == "" {
		return "", false
	}
	original, ok := idx[MatchKey(extracted)]
	return original, ok
}

// GroupPostsByProfile 将原始记录归到请求档案下。容器记录直接匹配；扁平帖子先按作者链接分组再匹配。
func GroupPostsByProfile(items []json.RawMessage, provider string, requested []string, maxPosts int) Grouping {
	schema := ForProvider(provider)
	idx := newRequestIndex(requested)
	if maxPosts <= 0 {
		maxPosts = MaxPostsPerProfile
	}
	out := Grouping{Posts: make(map[string][]model.Post)}

	flatOrder := make([]string, 0)
	flat := make(map[string][]gjson.Result)
	flatURL := make(map[string]string)

	for _, raw := range items {
		doc := gjson.ParseBytes(raw)
		if !doc.IsObject() {
			continue
		}
		container := doc.Get(schema.Posts)
		if schema.Grouped && container.IsArray() {
			extracted := schema.ProfileURL.String(doc)
			matched, ok := matchURL(extracted, idx)
			if !ok {
				out.Unmatched = append(out.Unmatched, extracted)
				continue
			}
			out.Posts[matched] = append(out.Posts[matched], ExtractPosts(container.Array(), schema, maxPosts)...)
			continue
		}

		extracted := schema.ProfileURL.String(doc)
		key := MatchKey(extracted)
		if _, seen := flat[key]; !seen {
			flatOrder = append(flatOrder, key)
			flatURL[key] = extracted
		}
		flat[key] = append(flat[key], doc)
	}

	for _, key := range flatOrder {
		matched, ok := matchURL(flatURL[key], idx)
		if !ok {
			out.Unmatched = append(out.Unmatched, flatURL[key])
			continue
		}
		out.Posts[matched] = append(out.Posts[matched], ExtractPosts(flat[key], schema, maxPosts)...)
	}

	for k, posts := range out.Posts {
		if len(posts) > maxPosts {
			out.Posts[k] = posts[:maxPosts]
		}
	}
	return out
}

// ExtractPosts 最多取 max 条，缺少正文或链接的帖子被丢弃。
func ExtractPosts(raw []gjson.Result, schema Schema, max int) []model.Post {
	if max <= 0 {
		max = MaxPostsPerProfile
	}
	if len(raw) > max {
		raw = raw[:max]
	}
	posts := make([]model.Post, 0, len(raw))
	for _, item := range raw {
		text := CleanText(schema.PostText.String(item))
		postURL := schema.PostURL.String(item)
		if text == "" || postURL == "" {
			continue
		}
		var date *time.Time
		if v, ok := schema.PostDate.Result(item); ok {
			date = parseDateValue(v)
		}
		posts = append(posts, model.Post{Text: text, URL: postURL, Date: date})
	}
	return posts
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseDate 解析时间字符串，无法解析或为空时返回 nil。
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromUnix(n)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseDateValue(v gjson.Result) *time.Time {
	switch v.Type {
	case gjson.Number:
		return fromUnix(v.Int())
	case gjson.String:
		return ParseDate(v.String())
	default:
		return nil
	}
}

// fromUnix 大于 1e12 视为毫秒。
func fromUnix(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n > 1_000_000_000_000 {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}

// CleanText 去除 HTML 标记并规整空白，纯文本只做实体反转义。
func CleanText(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "<") || !strings.Contains(s, ">") {
		return strings.TrimSpace(html.UnescapeString(s))
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p", "div", "li":
				b.WriteByte('\n')
			}
		}
	}
}
