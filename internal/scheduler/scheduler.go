package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signal-radar/internal/gateway"
	"signal-radar/internal/keyword"
	"signal-radar/internal/logging"
	"signal-radar/internal/metrics"
	"signal-radar/internal/model"
	"signal-radar/internal/normalize"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrScanInProgress 已有扫描周期在运行。
var ErrScanInProgress = errors.New("scan already in progress")

// Config 调度配置。
type Config struct {
	Interval        string            `yaml:"interval" json:"interval"`
	Timeout         string            `yaml:"timeout" json:"timeout"`
	BatchSize       int               `yaml:"batch_size" json:"batch_size"`
	PostsPerProfile int               `yaml:"posts_per_profile" json:"posts_per_profile"`
	PlanIntervals   map[string]string `yaml:"plan_intervals" json:"plan_intervals"`
}

// Store 调度器所需的存储接口。
type Store interface {
	DueProfiles(ctx context.Context, now time.Time, limit int) ([]model.MonitoredProfile, error)
	InsertSignalEvents(ctx context.Context, events []model.SignalEvent) ([]model.SignalEvent, error)
	UpdateProfileScan(ctx context.Context, id uint, lastSeen *time.Time, nextScanAt time.Time) error
}

// Gateway 批量抓取档案帖子。
type Gateway interface {
	ScanProfiles(ctx context.Context, profileURLs []string, maxPosts int) (gateway.ResultSet, error)
}

// Notifier 推送新信号。
type Notifier interface {
	Deliver(ctx context.Context, target string, events []model.SignalEvent) error
}

// Report 单个周期的统计。
type Report struct {
	Due       int `json:"due"`
	Scanned   int `json:"scanned"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
	Signals   int `json:"signals"`
}

var defaultPlanIntervals = map[model.PlanTier]time.Duration{
	model.PlanFree:     48 * time.Hour,
	model.PlanBasic:    24 * time.Hour,
	model.PlanBusiness: 24 * time.Hour,
}

// Scheduler 周期性扫描到期档案，检测新帖关键词并写入信号。
type Scheduler struct {
	gateway         Gateway
	store           Store
	webhook         Notifier
	fallback        Notifier
	interval        time.Duration
	cron            *cronSpec
	timeout         time.Duration
	batchSize       int
	postsPerProfile int
	planIntervals   map[model.PlanTier]time.Duration
	gate            gate
	logger          logrus.FieldLogger
	metrics         *metrics.Metrics
	newTicker       func(time.Duration) ticker
	now             func() time.Time
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewScheduler 创建 Scheduler。webhook 用于配置了推送地址的账户，fallback 用于其余账户，均可为空。
func NewScheduler(gw Gateway, store Store, webhook, fallback Notifier, cfg Config, logger logrus.FieldLogger, m *metrics.Metrics) *Scheduler {
	interval, cron := parseSchedule(cfg.Interval)
	timeout := 15 * time.Minute
	if d, err := time.ParseDuration(strings.TrimSpace(cfg.Timeout)); err == nil && d > 0 {
		timeout = d
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 200
	}
	posts := cfg.PostsPerProfile
	if posts <= 0 {
		posts = normalize.MaxPostsPerProfile
	}

	return &Scheduler{
		gateway:         gw,
		store:           store,
		webhook:         webhook,
		fallback:        fallback,
		interval:        interval,
		cron:            cron,
		timeout:         timeout,
		batchSize:       batch,
		postsPerProfile: posts,
		planIntervals:   buildPlanIntervals(cfg.PlanIntervals),
		logger:          logging.Component(logger, "scheduler"),
		metrics:         m,
		newTicker:       defaultTicker,
		now:             time.Now,
	}
}

func buildPlanIntervals(overrides map[string]string) map[model.PlanTier]time.Duration {
	out := make(map[model.PlanTier]time.Duration, len(defaultPlanIntervals)+len(overrides))
	for k, v := range defaultPlanIntervals {
		out[k] = v
	}
	for plan, raw := range overrides {
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && d > 0 {
			out[model.PlanTier(strings.ToLower(strings.TrimSpace(plan)))] = d
		}
	}
	return out
}

// State 返回当前状态。
func (s *Scheduler) State() State {
	return s.gate.state()
}

// Start 启动调度循环直到 ctx 取消。周期运行期间到达的 tick 直接丢弃。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.gateway == nil || s.store == nil {
		return fmt.Errorf("scheduler missing dependencies")
	}

	g, ctx := errgroup.WithContext(ctx)
	ticks := make(chan time.Time, 1)

	if s.cron != nil {
		g.Go(func() error { return s.cronTicks(ctx, ticks) })
	} else {
		tick := s.newTicker(s.interval)
		g.Go(func() error {
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case t := <-tick.C():
					select {
					case ticks <- t:
					default:
					}
				}
			}
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticks:
				if !s.gate.tryEnter() {
					s.logger.Warn("scan cycle still running, tick dropped")
					s.metrics.TickDropped()
					continue
				}
				g.Go(func() error {
					defer s.gate.leave()
					s.cycle(ctx)
					return nil
				})
			}
		}
	})

	return g.Wait()
}

// RunOnce 立即执行一个周期，已有周期运行时返回 ErrScanInProgress。
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if !s.gate.tryEnter() {
		return Report{}, ErrScanInProgress
	}
	defer s.gate.leave()
	return s.cycle(ctx)
}

func (s *Scheduler) cycle(ctx context.Context) (Report, error) {
	s.metrics.SetScanning(true)
	defer s.metrics.SetScanning(false)

	start := s.now()
	report, err := s.runScan(ctx)
	fields := logrus.Fields{
		"due":       report.Due,
		"scanned":   report.Scanned,
		"unmatched": report.Unmatched,
		"failed":    report.Failed,
		"signals":   report.Signals,
		"took":      s.now().Sub(start).String(),
	}
	if err != nil {
		s.metrics.CycleFinished("error")
		s.logger.WithError(err).WithFields(fields).Error("scan cycle failed")
		return report, err
	}
	s.metrics.CycleFinished("ok")
	s.logger.WithFields(fields).Info("scan cycle done")
	return report, nil
}

func (s *Scheduler) runScan(ctx context.Context) (Report, error) {
	var report Report

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	profiles, err := s.store.DueProfiles(ctx, now, s.batchSize)
	if err != nil {
		return report, fmt.Errorf("due profiles: %w", err)
	}
	report.Due = len(profiles)
	if len(profiles) == 0 {
		return report, nil
	}

	urls := make([]string, 0, len(profiles))
	seen := make(map[string]struct{}, len(profiles))
	for _, p := range profiles {
		key := normalize.MatchKey(p.ProfileURL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		urls = append(urls, p.ProfileURL)
	}

	result, err := s.gateway.ScanProfiles(ctx, urls, s.postsPerProfile)
	if err != nil {
		return report, fmt.Errorf("scan profiles: %w", err)
	}

	grouping := normalize.GroupPostsByProfile(result.Items, result.Provider, urls, s.postsPerProfile)
	for _, u := range grouping.Unmatched {
		s.logger.WithField("profile_url", u).Warn("result did not match any requested profile")
	}
	report.Unmatched = len(grouping.Unmatched)

	postsByKey := make(map[string][]model.Post, len(grouping.Posts))
	for requested, posts := range grouping.Posts {
		postsByKey[normalize.MatchKey(requested)] = posts
	}

	for _, p := range profiles {
		inserted, err := s.processProfile(ctx, p, postsByKey[normalize.MatchKey(p.ProfileURL)], now)
		if err != nil {
			report.Failed++
			s.metrics.ProfileScanned("failed")
			s.logger.WithError(err).WithFields(logrus.Fields{"profile_id": p.ID, "profile_url": p.ProfileURL}).Error("profile scan failed")
			continue
		}
		report.Scanned++
		report.Signals += inserted
		s.metrics.ProfileScanned("ok")
	}
	return report, nil
}

// processProfile 处理单个档案的结果，panic 被转换为 error，不影响同批其他档案。
func (s *Scheduler) processProfile(ctx context.Context, p model.MonitoredProfile, posts []model.Post, now time.Time) (inserted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing profile %d: %v", p.ID, r)
		}
	}()

	next := s.nextScanAt(p, now)
	fresh := NewPosts(posts, p.LastSeenPostTime)
	if len(fresh) == 0 {
		return 0, s.store.UpdateProfileScan(ctx, p.ID, nil, next)
	}

	events := make([]model.SignalEvent, 0)
	for _, post := range fresh {
		events = append(events, keyword.ProcessPost(post, p.Keywords, p.ID, now)...)
	}

	stored, err := s.store.InsertSignalEvents(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("insert signal events: %w", err)
	}
	s.metrics.SignalsInserted(len(stored))
	if len(stored) > 0 {
		s.deliver(ctx, p, stored)
	}

	if err := s.store.UpdateProfileScan(ctx, p.ID, latestDate(posts, p.LastSeenPostTime), next); err != nil {
		return len(stored), err
	}
	return len(stored), nil
}

// deliver 推送失败只记录日志。
func (s *Scheduler) deliver(ctx context.Context, p model.MonitoredProfile, events []model.SignalEvent) {
	target := p.Account.WebhookURL
	n := s.webhook
	if target == "" {
		n = s.fallback
	}
	if n == nil {
		return
	}
	if err := n.Deliver(ctx, target, events); err != nil {
		s.metrics.WebhookDelivered("failed")
		s.logger.WithError(err).WithFields(logrus.Fields{"profile_id": p.ID, "events": len(events)}).Warn("webhook delivery failed")
		return
	}
	if target != "" {
		s.metrics.WebhookDelivered("ok")
	}
}

func (s *Scheduler) nextScanAt(p model.MonitoredProfile, now time.Time) time.Time {
	interval, ok := s.planIntervals[p.Account.Plan]
	if !ok {
		interval = s.planIntervals[model.PlanFree]
	}
	next := now.Add(interval)
	if next.Before(p.NextScanAt) {
		return p.NextScanAt
	}
	return next
}

// NewPosts 返回晚于 lastSeen 的帖子；首次扫描全部返回，之后缺少日期的帖子被忽略。
func NewPosts(posts []model.Post, lastSeen *time.Time) []model.Post {
	if lastSeen == nil {
		return posts
	}
	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if p.Date != nil && p.Date.After(*lastSeen) {
			out = append(out, p)
		}
	}
	return out
}

// latestDate 取本轮帖子中的最大日期，不会回退到 current 之前。
func latestDate(posts []model.Post, current *time.Time) *time.Time {
	latest := current
	for _, p := range posts {
		if p.Date == nil {
			continue
		}
		if latest == nil || p.Date.After(*latest) {
			d := *p.Date
			latest = &d
		}
	}
	return latest
}

func (s *Scheduler) cronTicks(ctx context.Context, out chan<- time.Time) error {
	for {
		next, err := s.cron.next(s.now())
		if err != nil {
			return fmt.Errorf("compute next cron time: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case t := <-timer.C:
			select {
			case out <- t:
			default:
			}
		}
	}
}

func defaultTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
