package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// Provider 标识，由网关配置声明，决定字段提取策略。
const (
	ProviderDefault     = "default"
	ProviderProfileFeed = "profile-feed"
	ProviderPostSearch  = "post-search"
)

// Extractor 是一个具名的有序字段路径列表，取第一个非空标量。
type Extractor struct {
	Name  string
	Paths []string
}

// String 返回第一个存在且非空的标量值。
func (e Extractor) String(doc gjson.Result) string {
	for _, p := range e.Paths {
		v := doc.Get(p)
		if !v.Exists() || v.IsObject() || v.IsArray() {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// Result 返回第一个存在的原始值。
func (e Extractor) Result(doc gjson.Result) (gjson.Result, bool) {
	for _, p := range e.Paths {
		if v := doc.Get(p); v.Exists() && v.Type != gjson.Null {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// Int 读取计数类字段，字符串形如 "500+" 时只保留数字。
func (e Extractor) Int(doc gjson.Result) int {
	v, ok := e.Result(doc)
	if !ok {
		return 0
	}
	if v.Type == gjson.Number {
		return int(v.Int())
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, v.String())
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// Schema 汇总某个 provider 的全部提取策略。
type Schema struct {
	Provider string
	// Grouped 为 true 时每条记录是档案容器，帖子位于 Posts 路径下。
	Grouped bool
	Posts   string

	ProfileURL Extractor
	PostText   Extractor
	PostURL    Extractor
	PostDate   Extractor

	EngagerURL   Extractor
	EngagerName  Extractor
	ReactionType Extractor
	CommentText  Extractor

	FullName    Extractor
	FirstName   Extractor
	LastName    Extractor
	JobTitle    Extractor
	Location    Extractor
	Industry    Extractor
	Connections Extractor
	Followers   Extractor
	CompanyName Extractor
	CompanyURL  Extractor

	OrgName     Extractor
	OrgIndustry Extractor
	OrgSize     Extractor
	OrgLocation Extractor
	OrgURL      Extractor
}

var defaultSchema = Schema{
	Provider: ProviderDefault,
	Grouped:  true,
	Posts:    "posts",

	ProfileURL: Extractor{Name: "profile_url", Paths: []string{"query", "inputUrl", "input.url", "author.linkedinUrl", "author.profile_url", "author.url", "profileUrl", "profile_url"}},
	PostText:   Extractor{Name: "post_text", Paths: []string{"text", "content", "commentary", "postText", "description"}},
	PostURL:    Extractor{Name: "post_url", Paths: []string{"url", "postUrl", "post_url", "linkedinUrl", "shareUrl", "link"}},
	PostDate:   Extractor{Name: "post_date", Paths: []string{"postedAt.timestamp", "postedAt.date", "posted_at.timestamp", "posted_at.date", "postedAt", "posted_at", "publishedAt", "date", "time"}},

	EngagerURL:   Extractor{Name: "engager_url", Paths: []string{"actor.linkedinUrl", "actor.profile_url", "reactor.profile_url", "reactor.linkedinUrl", "author.linkedinUrl", "author.profile_url", "commenter.url", "profileUrl", "profile_url", "url"}},
	EngagerName:  Extractor{Name: "engager_name", Paths: []string{"actor.name", "reactor.name", "author.name", "commenter.name", "name", "fullName"}},
	ReactionType: Extractor{Name: "reaction_type", Paths: []string{"reactionType", "reaction_type", "reaction", "type"}},
	CommentText:  Extractor{Name: "comment_text", Paths: []string{"commentary", "text", "comment", "content"}},

	FullName:    Extractor{Name: "full_name", Paths: []string{"fullName", "full_name", "name"}},
	FirstName:   Extractor{Name: "first_name", Paths: []string{"firstName", "first_name"}},
	LastName:    Extractor{Name: "last_name", Paths: []string{"lastName", "last_name"}},
	JobTitle:    Extractor{Name: "job_title", Paths: []string{"jobTitle", "headline", "occupation", "title", "currentPosition.0.position"}},
	Location:    Extractor{Name: "location", Paths: []string{"addressWithCountry", "location.linkedinText", "location", "geo.full", "addressWithoutCountry"}},
	Industry:    Extractor{Name: "industry", Paths: []string{"companyIndustry", "industry", "currentPosition.0.industry"}},
	Connections: Extractor{Name: "connections", Paths: []string{"connections", "connectionsCount", "connections_count"}},
	Followers:   Extractor{Name: "followers", Paths: []string{"followers", "followerCount", "followers_count"}},
	CompanyName: Extractor{Name: "company_name", Paths: []string{"companyName", "currentPosition.0.companyName", "experiences.0.companyName", "company"}},
	CompanyURL:  Extractor{Name: "company_url", Paths: []string{"companyLinkedinUrl", "currentPosition.0.companyLinkedinUrl", "experiences.0.companyLink1", "experiences.0.companyUrl", "companyUrl"}},

	OrgName:     Extractor{Name: "org_name", Paths: []string{"name", "companyName", "company_name"}},
	OrgIndustry: Extractor{Name: "org_industry", Paths: []string{"industry", "industries.0.name", "industries.0"}},
	OrgSize:     Extractor{Name: "org_size", Paths: []string{"employeeCount", "staffCount", "employeeCountRange", "companySize", "employee_count"}},
	OrgLocation: Extractor{Name: "org_location", Paths: []string{"headquarter.city", "headquarters.city", "locations.0.city", "headquarters", "location"}},
	OrgURL:      Extractor{Name: "org_url", Paths: []string{"linkedinUrl", "url", "companyUrl", "company_url"}},
}

var schemas = map[string]Schema{}

func init() {
	register(defaultSchema)

	feed := defaultSchema
	feed.Provider = ProviderProfileFeed
	register(feed)

	// 扁平帖子列表，作者链接优先于查询字段
	search := defaultSchema
	search.Provider = ProviderPostSearch
	search.Grouped = false
	search.ProfileURL = Extractor{Name: "profile_url", Paths: []string{"author.linkedinUrl", "author.profile_url", "author.url", "authorProfileUrl", "query", "inputUrl", "profileUrl"}}
	register(search)
}

func register(s Schema) {
	schemas[s.Provider] = s
}

// ForProvider 返回 provider 对应的 Schema，未知 provider 回落到默认。
func ForProvider(provider string) Schema {
	if s, ok := schemas[strings.TrimSpace(provider)]; ok {
		return s
	}
	return defaultSchema
}

// Providers 列出已注册的 provider。
func Providers() []string {
	out := make([]string, 0, len(schemas))
	for name := range schemas {
		out = append(out, name)
	}
	return out
}
