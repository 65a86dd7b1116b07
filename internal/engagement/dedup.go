package engagement

import (
	"strings"

	"signal-radar/internal/model"
	"signal-radar/internal/normalize"
)

// Deduplicate 按规整后的档案链接合并互动者。首次出现的记录保留，
// 后续记录合并反应标签并在缺少评论时补上评论。
func Deduplicate(engagers []model.Engager) []model.Engager {
	index := make(map[string]int, len(engagers))
	out := make([]model.Engager, 0, len(engagers))
	for _, e := range engagers {
		key := normalize.DedupKey(e.ProfileURL)
		if key == "" {
			continue
		}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			e.ReactionTypes = mergeLabels(nil, e.ReactionTypes)
			out = append(out, e)
			continue
		}
		merged := &out[i]
		merged.ReactionTypes = mergeLabels(merged.ReactionTypes, e.ReactionTypes)
		if merged.Comment == "" && e.Comment != "" {
			merged.Comment = e.Comment
		}
		if merged.Name == "" {
			merged.Name = e.Name
		}
	}
	return out
}

func mergeLabels(into, labels []string) []string {
	out := append([]string(nil), into...)
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || containsFold(out, l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// JoinLabels 以 ", " 拼接标签。
func JoinLabels(labels []string) string {
	return strings.Join(labels, ", ")
}
