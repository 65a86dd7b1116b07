package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"signal-radar/internal/gateway"
	"signal-radar/internal/logging"
	"signal-radar/internal/metrics"
	"signal-radar/internal/model"
	"signal-radar/internal/normalize"

	"github.com/sirupsen/logrus"
)

// UnknownName 补全失败或缺失时的占位名称。
const UnknownName = "Unknown"

// ErrNothingScraped 所有抓取调用都失败。
var ErrNothingScraped = errors.New("all scrape calls failed")

// Config 互动流水线配置。
type Config struct {
	BatchSize    int    `yaml:"batch_size" json:"batch_size"`
	BatchDelay   string `yaml:"batch_delay" json:"batch_delay"`
	RunTimeout   string `yaml:"run_timeout" json:"run_timeout"`
	DefaultLimit int    `yaml:"default_limit" json:"default_limit"`
}

// Gateway 流水线所需的抓取与补全调用。
type Gateway interface {
	SupportsCombinedReactions() bool
	ScrapeReactions(ctx context.Context, postURL string, reactionTypes []string, limit int) (gateway.ResultSet, error)
	ScrapeComments(ctx context.Context, postURL string, limit int) (gateway.ResultSet, error)
	EnrichProfile(ctx context.Context, profileURL string) (gateway.ResultSet, error)
	EnrichCompany(ctx context.Context, companyURL string) (gateway.ResultSet, error)
}

// Request 描述一次互动采集。
type Request struct {
	PostURL         string   `json:"post_url"`
	ReactionTypes   []string `json:"reaction_types"`
	IncludeComments bool     `json:"include_comments"`
	LimitPerType    int      `json:"limit_per_type"`
}

// ProgressFunc 接收累计计数。
type ProgressFunc func(model.ScanCounters)

// Pipeline 抓取、去重、补全并合并互动者。
type Pipeline struct {
	gw           Gateway
	batchSize    int
	batchDelay   time.Duration
	runTimeout   time.Duration
	defaultLimit int
	logger       logrus.FieldLogger
	metrics      *metrics.Metrics
	sleep        func(context.Context, time.Duration) error
}

// NewPipeline 创建流水线，默认每批 10 个、批间 2s。
func NewPipeline(gw Gateway, cfg Config, logger logrus.FieldLogger, m *metrics.Metrics) *Pipeline {
	size := cfg.BatchSize
	if size <= 0 {
		size = 10
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = 100
	}
	return &Pipeline{
		gw:           gw,
		batchSize:    size,
		batchDelay:   parseDuration(cfg.BatchDelay, 2*time.Second),
		runTimeout:   parseDuration(cfg.RunTimeout, 30*time.Minute),
		defaultLimit: limit,
		logger:       logging.Component(logger, "engagement"),
		metrics:      m,
		sleep:        sleepContext,
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

type enriched struct {
	engager  model.Engager
	profile  model.ProfileInfo
	degraded bool
}

// Run 依次执行各阶段并返回合并后的线索。只有抓取阶段整体失败才返回错误。
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) ([]model.Lead, model.ScanCounters, error) {
	var counters model.ScanCounters
	if progress == nil {
		progress = func(model.ScanCounters) {}
	}
	if req.LimitPerType <= 0 {
		req.LimitPerType = p.defaultLimit
	}

	raw, err := p.scrape(ctx, req)
	if err != nil {
		return nil, counters, err
	}
	engagers := Deduplicate(raw)
	counters.TotalEngagers = len(engagers)
	progress(counters)

	if len(engagers) > req.LimitPerType {
		engagers = engagers[:req.LimitPerType]
	}
	counters.ProfilesTotal = len(engagers)
	progress(counters)

	profiles, err := p.enrichProfiles(ctx, engagers, &counters, progress)
	if err != nil {
		return nil, counters, err
	}

	companies, err := p.enrichCompanies(ctx, profiles, &counters, progress)
	if err != nil {
		return nil, counters, err
	}

	return combine(profiles, companies), counters, nil
}

// scrape 为每个反应类别各调一次（或合并调用）并按需抓取评论，部分失败只记录日志。
func (p *Pipeline) scrape(ctx context.Context, req Request) ([]model.Engager, error) {
	type call struct {
		name string
		run  func() ([]model.Engager, error)
	}
	var calls []call

	types := req.ReactionTypes
	if len(types) <= 1 || p.gw.SupportsCombinedReactions() {
		fallback := ""
		if len(types) == 1 {
			fallback = types[0]
		}
		calls = append(calls, call{name: "reactions", run: func() ([]model.Engager, error) {
			rs, err := p.gw.ScrapeReactions(ctx, req.PostURL, types, req.LimitPerType)
			if err != nil {
				return nil, err
			}
			return normalize.Reactions(rs.Items, rs.Provider, fallback), nil
		}})
	} else {
		for _, t := range types {
			calls = append(calls, call{name: "reactions:" + t, run: func() ([]model.Engager, error) {
				rs, err := p.gw.ScrapeReactions(ctx, req.PostURL, []string{t}, req.LimitPerType)
				if err != nil {
					return nil, err
				}
				return normalize.Reactions(rs.Items, rs.Provider, t), nil
			}})
		}
	}
	if req.IncludeComments {
		calls = append(calls, call{name: "comments", run: func() ([]model.Engager, error) {
			rs, err := p.gw.ScrapeComments(ctx, req.PostURL, req.LimitPerType)
			if err != nil {
				return nil, err
			}
			return normalize.Comments(rs.Items, rs.Provider), nil
		}})
	}

	var out []model.Engager
	var errs []error
	for _, c := range calls {
		engagers, err := c.run()
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{"call": c.name, "post_url": req.PostURL}).Warn("scrape call failed")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		out = append(out, engagers...)
	}
	if len(errs) == len(calls) {
		return nil, fmt.Errorf("%w: %w", ErrNothingScraped, errors.Join(errs...))
	}
	return out, nil
}

func (p *Pipeline) enrichProfiles(ctx context.Context, engagers []model.Engager, counters *model.ScanCounters, progress ProgressFunc) ([]enriched, error) {
	out := make([]enriched, len(engagers))
	var mu sync.Mutex

	err := runBatches(ctx, engagers, p.batchSize, p.batchDelay, p.sleep, func(ctx context.Context, i int, e model.Engager) {
		res := enriched{engager: e}
		info, err := p.enrichProfile(ctx, e.ProfileURL)
		if err != nil {
			p.metrics.Enrichment(gateway.KindProfile, "failed")
			p.logger.WithError(err).WithField("profile_url", e.ProfileURL).Warn("profile enrichment failed")
			res.degraded = true
			res.profile = model.ProfileInfo{Name: fallbackName(e.Name)}
		} else {
			p.metrics.Enrichment(gateway.KindProfile, "ok")
			if info.Name == "" {
				info.Name = fallbackName(e.Name)
			}
			res.profile = info
		}
		mu.Lock()
		out[i] = res
		counters.ProfilesEnriched++
		mu.Unlock()
	}, func() { progress(*counters) })
	if err != nil {
		return nil, fmt.Errorf("profile enrichment: %w", err)
	}
	return out, nil
}

func (p *Pipeline) enrichProfile(ctx context.Context, profileURL string) (model.ProfileInfo, error) {
	rs, err := p.gw.EnrichProfile(ctx, profileURL)
	if err != nil {
		return model.ProfileInfo{}, err
	}
	info, ok := normalize.Profile(rs.Items, rs.Provider)
	if !ok {
		return model.ProfileInfo{}, fmt.Errorf("no profile data for %s", profileURL)
	}
	return info, nil
}

// enrichCompanies 只补全带有 slug 的公司链接，返回以链接为键的结果。
func (p *Pipeline) enrichCompanies(ctx context.Context, profiles []enriched, counters *model.ScanCounters, progress ProgressFunc) (map[string]model.CompanyInfo, error) {
	seen := make(map[string]struct{})
	var urls []string
	for _, e := range profiles {
		u := e.profile.CompanyURL
		if !e.profile.NeedsCompanyEnrichment || u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	counters.CompaniesTotal = len(urls)
	progress(*counters)

	companies := make(map[string]model.CompanyInfo, len(urls))
	var mu sync.Mutex
	err := runBatches(ctx, urls, p.batchSize, p.batchDelay, p.sleep, func(ctx context.Context, _ int, u string) {
		rs, err := p.gw.EnrichCompany(ctx, u)
		var info model.CompanyInfo
		if err == nil {
			var ok bool
			if info, ok = normalize.Company(rs.Items, rs.Provider); !ok {
				err = fmt.Errorf("no company data for %s", u)
			}
		}
		mu.Lock()
		defer mu.Unlock()
		counters.CompaniesEnriched++
		if err != nil {
			p.metrics.Enrichment(gateway.KindCompany, "failed")
			p.logger.WithError(err).WithField("company_url", u).Warn("company enrichment failed")
			return
		}
		p.metrics.Enrichment(gateway.KindCompany, "ok")
		companies[u] = info
	}, func() { progress(*counters) })
	if err != nil {
		return nil, fmt.Errorf("company enrichment: %w", err)
	}
	return companies, nil
}

// combine 将公司数据挂到档案上，缺失时使用默认值。
func combine(profiles []enriched, companies map[string]model.CompanyInfo) []model.Lead {
	leads := make([]model.Lead, 0, len(profiles))
	for _, e := range profiles {
		lead := model.Lead{
			Name:              fallbackName(e.profile.Name),
			JobTitle:          e.profile.JobTitle,
			Location:          e.profile.Location,
			Industry:          e.profile.Industry,
			ProfileURL:        e.engager.ProfileURL,
			Connections:       e.profile.Connections,
			Followers:         e.profile.Followers,
			CompanyName:       e.profile.CompanyName,
			CompanyProfileURL: e.profile.CompanyURL,
			ReactionType:      JoinLabels(e.engager.ReactionTypes),
			Comment:           e.engager.Comment,
			Degraded:          e.degraded,
		}
		if c, ok := companies[e.profile.CompanyURL]; ok {
			if c.Name != "" {
				lead.CompanyName = c.Name
			}
			if lead.Industry == "" {
				lead.Industry = c.Industry
			}
			lead.EmployeeSize = c.EmployeeSize
			lead.CompanyLocation = c.Location
			if c.URL != "" {
				lead.CompanyProfileURL = c.URL
			}
		}
		if lead.CompanyName == "" {
			lead.CompanyName = UnknownName
		}
		leads = append(leads, lead)
	}
	return leads
}

func fallbackName(name string) string {
	if strings.TrimSpace(name) == "" {
		return UnknownName
	}
	return name
}
