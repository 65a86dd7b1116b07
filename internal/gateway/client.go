package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signal-radar/internal/logging"
	"signal-radar/internal/metrics"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Config 定义抓取服务配置。
type Config struct {
	BaseURL           string     `yaml:"base_url" json:"base_url"`
	Token             string     `yaml:"token" json:"-"`
	PollInterval      string     `yaml:"poll_interval" json:"poll_interval"`
	MaxWait           string     `yaml:"max_wait" json:"max_wait"`
	RetryDelay        string     `yaml:"retry_delay" json:"retry_delay"`
	RequestTimeout    string     `yaml:"request_timeout" json:"request_timeout"`
	CombinedReactions bool       `yaml:"combined_reactions" json:"combined_reactions"`
	Jobs              JobsConfig `yaml:"jobs" json:"jobs"`
}

// JobConfig 指定某类任务使用的 actor 及其结果格式。
type JobConfig struct {
	Actor    string `yaml:"actor" json:"actor"`
	Provider string `yaml:"provider" json:"provider"`
}

// JobsConfig 各类任务配置。
type JobsConfig struct {
	ProfilePosts JobConfig `yaml:"profile_posts" json:"profile_posts"`
	Reactions    JobConfig `yaml:"reactions" json:"reactions"`
	Comments     JobConfig `yaml:"comments" json:"comments"`
	Profile      JobConfig `yaml:"profile" json:"profile"`
	Company      JobConfig `yaml:"company" json:"company"`
}

// JobSpec 描述一次远程任务。
type JobSpec struct {
	Kind  string
	Actor string
	Input map[string]any
}

// Run 远程任务快照。
type Run struct {
	ID          string
	Status      RunStatus
	ResultSetID string
}

// ResultSet 原始结果及其声明的 provider。
type ResultSet struct {
	Provider string
	Items    []json.RawMessage
}

const (
	defaultPollInterval = 10 * time.Second
	defaultMaxWait      = 5 * time.Minute
	defaultRetryDelay   = 5 * time.Second
)

// Client 调用外部抓取服务：启动任务、轮询终态、拉取结果。
type Client struct {
	baseURL           string
	token             string
	client            *http.Client
	pollInterval      time.Duration
	maxWait           time.Duration
	retryDelay        time.Duration
	combinedReactions bool
	jobs              JobsConfig
	logger            logrus.FieldLogger
	metrics           *metrics.Metrics
	now               func() time.Time
}

// NewClient 创建网关客户端，未提供 http.Client 时按 RequestTimeout 新建。
func NewClient(cfg Config, httpClient *http.Client, logger logrus.FieldLogger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: parseDuration(cfg.RequestTimeout, 30*time.Second)}
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = "https://api.apify.com"
	}
	return &Client{
		baseURL:           strings.TrimSuffix(base, "/"),
		token:             cfg.Token,
		client:            httpClient,
		pollInterval:      parseDuration(cfg.PollInterval, defaultPollInterval),
		maxWait:           parseDuration(cfg.MaxWait, defaultMaxWait),
		retryDelay:        parseDuration(cfg.RetryDelay, defaultRetryDelay),
		combinedReactions: cfg.CombinedReactions,
		jobs:              withDefaultProviders(cfg.Jobs),
		logger:            logging.Component(logger, "gateway"),
		metrics:           m,
		now:               time.Now,
	}
}

// StartRun 启动远程任务并返回 run 信息。
func (c *Client) StartRun(ctx context.Context, spec JobSpec) (Run, error) {
	if strings.TrimSpace(spec.Actor) == "" {
		return Run{}, fmt.Errorf("job %s: actor not configured", spec.Kind)
	}
	payload, err := json.Marshal(spec.Input)
	if err != nil {
		return Run{}, fmt.Errorf("marshal input: %w", err)
	}
	endpoint := c.baseURL + "/v2/acts/" + url.PathEscape(spec.Actor) + "/runs"
	body, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	run := parseRun(body)
	if run.ID == "" {
		return Run{}, fmt.Errorf("start run: response missing run id")
	}
	c.logger.WithFields(logrus.Fields{"kind": spec.Kind, "run_id": run.ID}).Info("run started")
	return run, nil
}

// PollUntilTerminal 每隔 pollInterval 查询状态，直到终态、截止时间或 ctx 取消。
func (c *Client) PollUntilTerminal(ctx context.Context, runID string) (Run, error) {
	start := c.now()
	deadline := start.Add(c.maxWait)
	endpoint := c.baseURL + "/v2/actor-runs/" + url.PathEscape(runID)

	for {
		body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return Run{ID: runID}, fmt.Errorf("poll run %s: %w", runID, err)
		}
		run := parseRun(body)
		if run.ID == "" {
			run.ID = runID
		}

		if run.Status.Terminal() {
			if run.Status != StatusSucceeded {
				return run, &RunFailedError{RunID: runID, Status: run.Status}
			}
			return run, nil
		}

		now := c.now()
		if !now.Before(deadline) {
			return run, &TimeoutError{RunID: runID, Waited: now.Sub(start)}
		}
		wait := c.pollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return run, fmt.Errorf("wait for run %s: %w", runID, ctx.Err())
		case <-timer.C:
		}
	}
}

// FetchResultSet 拉取结果集的全部记录。
func (c *Client) FetchResultSet(ctx context.Context, resultSetID string) ([]json.RawMessage, error) {
	if resultSetID == "" {
		return nil, fmt.Errorf("fetch results: empty result set id")
	}
	endpoint := c.baseURL + "/v2/datasets/" + url.PathEscape(resultSetID) + "/items?clean=true&format=json"
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("fetch results: expected array, got %s", parsed.Type)
	}
	items := make([]json.RawMessage, 0, len(parsed.Array()))
	parsed.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() {
			items = append(items, json.RawMessage(value.Raw))
		}
		return true
	})
	return items, nil
}

// RunJob 依次执行 start、poll、fetch，不做重试。
func (c *Client) RunJob(ctx context.Context, spec JobSpec) ([]json.RawMessage, error) {
	run, err := c.StartRun(ctx, spec)
	if err != nil {
		return nil, err
	}
	run, err = c.PollUntilTerminal(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return c.FetchResultSet(ctx, run.ResultSetID)
}

// runWithRetry 整个 start→poll→fetch 序列失败后间隔 retryDelay 重试一次。
func (c *Client) runWithRetry(ctx context.Context, spec JobSpec) ([]json.RawMessage, error) {
	policy := retrypolicy.NewBuilder[[]json.RawMessage]().
		WithMaxRetries(1).
		WithDelay(c.retryDelay).
		ReturnLastFailure().
		Build()

	attempt := 0
	items, err := failsafe.With(policy).WithContext(ctx).Get(func() ([]json.RawMessage, error) {
		attempt++
		items, err := c.RunJob(ctx, spec)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{"kind": spec.Kind, "attempt": attempt}).Warn("gateway job failed")
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		c.metrics.GatewayRun(spec.Kind, "failed")
		return nil, fmt.Errorf("%s job: %w", spec.Kind, err)
	}
	c.metrics.GatewayRun(spec.Kind, "succeeded")
	c.logger.WithFields(logrus.Fields{"kind": spec.Kind, "items": len(items), "attempts": attempt}).Info("gateway job done")
	return items, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func parseRun(body []byte) Run {
	doc := gjson.ParseBytes(body)
	return Run{
		ID:          firstString(doc, "data.id", "runId", "id"),
		Status:      RunStatus(strings.ToUpper(firstString(doc, "data.status", "status"))),
		ResultSetID: firstString(doc, "data.defaultDatasetId", "resultSetId", "defaultDatasetId"),
	}
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
		return d
	}
	return fallback
}
