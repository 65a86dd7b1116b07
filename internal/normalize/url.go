package normalize

import (
	"net/url"
	"strings"
	"unicode"
)

// MatchKey 用于把结果对应回请求：小写，去掉协议、www、查询串、片段与末尾斜杠。
func MatchKey(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = stripQuery(s)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

// DedupKey 互动者合并键：去掉查询串与末尾斜杠后小写。
func DedupKey(raw string) string {
	s := stripQuery(strings.TrimSpace(raw))
	return strings.ToLower(strings.TrimRight(s, "/"))
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

// UsableURL 判断并补全档案链接，缺协议时补 https。
func UsableURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + strings.TrimPrefix(s, "//")
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", false
	}
	return s, true
}

// CompanyNeedsEnrichment 公司链接含非纯数字的 slug 时才值得补全，纯数字 ID 下游查询不可靠。
func CompanyNeedsEnrichment(companyURL string) bool {
	return companySlug(companyURL) != ""
}

func companySlug(companyURL string) string {
	s := strings.TrimSpace(companyURL)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	segments := make([]string, 0)
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return ""
	}
	candidate := segments[len(segments)-1]
	for i, seg := range segments {
		if !strings.EqualFold(seg, "company") {
			continue
		}
		if i+1 == len(segments) {
			return ""
		}
		candidate = segments[i+1]
		break
	}
	if isNumeric(candidate) {
		return ""
	}
	return candidate
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
