package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"signal-radar/internal/keyword"
	"signal-radar/internal/model"
)

// ErrInvalidInput 请求参数校验失败。
var ErrInvalidInput = errors.New("invalid input")

// Store 定义持久化接口。
type Store interface {
	CreateAccount(ctx context.Context, acc *model.Account) error
	GetAccount(ctx context.Context, id uint) (*model.Account, error)
	CreateProfile(ctx context.Context, p *model.MonitoredProfile) error
}

// keywordLimits 各套餐每个档案允许的关键词数量。
var keywordLimits = map[model.PlanTier]int{
	model.PlanFree:     5,
	model.PlanBasic:    20,
	model.PlanBusiness: 50,
}

// AccountRequest 创建账户请求。
type AccountRequest struct {
	Email      string `json:"email"`
	Plan       string `json:"plan"`
	WebhookURL string `json:"webhook_url"`
}

// ProfileRequest 添加监控档案请求。
type ProfileRequest struct {
	AccountID  uint     `json:"account_id"`
	ProfileURL string   `json:"profile_url"`
	Keywords   []string `json:"keywords"`
}

// Service 负责校验并写入账户与监控档案。
type Service struct {
	store Store
	now   func() time.Time
}

// NewService 创建监控服务。
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateAccount 校验邮箱、套餐与推送地址后写入账户。
func (s *Service) CreateAccount(ctx context.Context, req AccountRequest) (model.Account, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return model.Account{}, fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.Account{}, fmt.Errorf("%w: invalid email: %v", ErrInvalidInput, err)
	}

	plan := model.PlanTier(strings.ToLower(strings.TrimSpace(req.Plan)))
	if plan == "" {
		plan = model.PlanFree
	}
	if _, ok := keywordLimits[plan]; !ok {
		return model.Account{}, fmt.Errorf("%w: unsupported plan %s", ErrInvalidInput, req.Plan)
	}

	webhook := strings.TrimSpace(req.WebhookURL)
	if webhook != "" && !validHTTPURL(webhook) {
		return model.Account{}, fmt.Errorf("%w: invalid webhook url", ErrInvalidInput)
	}

	acc := model.Account{Email: email, Plan: plan, WebhookURL: webhook}
	if err := s.store.CreateAccount(ctx, &acc); err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

// AddProfile 校验链接与关键词并写入档案，档案立即到期等待下一轮扫描。
func (s *Service) AddProfile(ctx context.Context, req ProfileRequest) (model.MonitoredProfile, error) {
	profileURL := strings.TrimSpace(req.ProfileURL)
	if !validHTTPURL(profileURL) {
		return model.MonitoredProfile{}, fmt.Errorf("%w: invalid profile url", ErrInvalidInput)
	}

	keywords := CleanKeywords(req.Keywords)
	if len(keywords) == 0 {
		return model.MonitoredProfile{}, fmt.Errorf("%w: at least one keyword required", ErrInvalidInput)
	}

	acc, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return model.MonitoredProfile{}, fmt.Errorf("load account %d: %w", req.AccountID, err)
	}
	limit, ok := keywordLimits[acc.Plan]
	if !ok {
		limit = keywordLimits[model.PlanFree]
	}
	if len(keywords) > limit {
		return model.MonitoredProfile{}, fmt.Errorf("%w: plan %s allows %d keywords, got %d", ErrInvalidInput, acc.Plan, limit, len(keywords))
	}

	p := model.MonitoredProfile{
		AccountID:  acc.ID,
		ProfileURL: profileURL,
		Keywords:   keywords,
		NextScanAt: s.now().UTC(),
	}
	if err := s.store.CreateProfile(ctx, &p); err != nil {
		return model.MonitoredProfile{}, err
	}
	p.Account = *acc
	return p, nil
}

// CleanKeywords 去除空白并按规整形式去重，保留首次出现的写法与顺序。
// 规整后为空的关键词（如纯标点）永远无法命中，直接丢弃。
func CleanKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		trimmed := strings.TrimSpace(kw)
		key := keyword.Normalize(trimmed)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
