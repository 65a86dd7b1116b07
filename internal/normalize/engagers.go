package normalize

import (
	"encoding/json"
	"strings"

	"signal-radar/internal/model"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CommentLabel 评论在反应类型列中的标签。
const CommentLabel = "Comment"

// ReactionLabel 将 provider 的反应类型规整为展示标签，如 LIKE -> Like。
func ReactionLabel(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "_", " "))
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(s))
}

// Reactions 提取反应记录，缺少可用档案链接的记录被过滤。fallbackLabel 在记录未携带类型时使用。
func Reactions(items []json.RawMessage, provider, fallbackLabel string) []model.Engager {
	schema := ForProvider(provider)
	out := make([]model.Engager, 0, len(items))
	for _, raw := range items {
		doc := gjson.ParseBytes(raw)
		profileURL, ok := UsableURL(schema.EngagerURL.String(doc))
		if !ok {
			continue
		}
		label := ReactionLabel(schema.ReactionType.String(doc))
		if label == "" {
			label = ReactionLabel(fallbackLabel)
		}
		e := model.Engager{ProfileURL: profileURL, Name: schema.EngagerName.String(doc)}
		if label != "" {
			e.ReactionTypes = []string{label}
		}
		out = append(out, e)
	}
	return out
}

// Comments 提取评论者及评论内容。
func Comments(items []json.RawMessage, provider string) []model.Engager {
	schema := ForProvider(provider)
	out := make([]model.Engager, 0, len(items))
	for _, raw := range items {
		doc := gjson.ParseBytes(raw)
		profileURL, ok := UsableURL(schema.EngagerURL.String(doc))
		if !ok {
			continue
		}
		out = append(out, model.Engager{
			ProfileURL:    profileURL,
			Name:          schema.EngagerName.String(doc),
			ReactionTypes: []string{CommentLabel},
			Comment:       CleanText(schema.CommentText.String(doc)),
		})
	}
	return out
}

// Profile 从补全结果中取第一条有效记录。
func Profile(items []json.RawMessage, provider string) (model.ProfileInfo, bool) {
	schema := ForProvider(provider)
	for _, raw := range items {
		doc := gjson.ParseBytes(raw)
		if !doc.IsObject() {
			continue
		}
		name := schema.FullName.String(doc)
		if name == "" {
			name = strings.TrimSpace(schema.FirstName.String(doc) + " " + schema.LastName.String(doc))
		}
		companyURL := schema.CompanyURL.String(doc)
		return model.ProfileInfo{
			Name:                   name,
			JobTitle:               schema.JobTitle.String(doc),
			Location:               schema.Location.String(doc),
			Industry:               schema.Industry.String(doc),
			Connections:            schema.Connections.Int(doc),
			Followers:              schema.Followers.Int(doc),
			CompanyName:            schema.CompanyName.String(doc),
			CompanyURL:             companyURL,
			NeedsCompanyEnrichment: CompanyNeedsEnrichment(companyURL),
		}, true
	}
	return model.ProfileInfo{}, false
}

// Company 从公司补全结果中取第一条有效记录。
func Company(items []json.RawMessage, provider string) (model.CompanyInfo, bool) {
	schema := ForProvider(provider)
	for _, raw := range items {
		doc := gjson.ParseBytes(raw)
		if !doc.IsObject() {
			continue
		}
		return model.CompanyInfo{
			Name:         schema.OrgName.String(doc),
			Industry:     schema.OrgIndustry.String(doc),
			EmployeeSize: schema.OrgSize.String(doc),
			Location:     schema.OrgLocation.String(doc),
			URL:          schema.OrgURL.String(doc),
		}, true
	}
	return model.CompanyInfo{}, false
}
