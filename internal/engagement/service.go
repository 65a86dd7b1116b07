package engagement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"signal-radar/internal/model"
	"signal-radar/internal/normalize"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidRequest 请求缺少可用的帖子链接。
	ErrInvalidRequest = errors.New("invalid engagement request")
	// ErrScanNotReady 扫描尚未成功完成，无可导出的线索。
	ErrScanNotReady = errors.New("scan not completed")
)

// Store 扫描记录与线索的持久化。
type Store interface {
	CreateScan(ctx context.Context, scan *model.EngagementScan) error
	UpdateScanProgress(ctx context.Context, id string, c model.ScanCounters) error
	FinishScan(ctx context.Context, id string, status model.ScanStatus, errMsg string) error
	GetScan(ctx context.Context, id string) (*model.EngagementScan, error)
	SaveLeads(ctx context.Context, scanID string, leads []model.Lead) error
	ListLeads(ctx context.Context, scanID string) ([]model.Lead, error)
}

// Service 管理扫描记录生命周期，流水线在后台执行。
type Service struct {
	pipeline *Pipeline
	store    Store
	logger   logrus.FieldLogger
	newID    func() string
	wg       sync.WaitGroup

	// base 是后台扫描的根 ctx，与请求无关，Shutdown 时取消。
	base   context.Context
	cancel context.CancelFunc
}

// NewService 创建 Service。
func NewService(p *Pipeline, store Store) *Service {
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		pipeline: p,
		store:    store,
		logger:   p.logger,
		newID:    uuid.NewString,
		base:     base,
		cancel:   cancel,
	}
}

func (s *Service) prepare(ctx context.Context, req Request) (*model.EngagementScan, Request, error) {
	postURL, ok := normalize.UsableURL(req.PostURL)
	if !ok {
		return nil, req, fmt.Errorf("%w: post_url %q", ErrInvalidRequest, req.PostURL)
	}
	req.PostURL = postURL
	types := make([]string, 0, len(req.ReactionTypes))
	for _, t := range req.ReactionTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, strings.ToUpper(t))
		}
	}
	req.ReactionTypes = types
	if req.LimitPerType <= 0 {
		req.LimitPerType = s.pipeline.defaultLimit
	}

	scan := &model.EngagementScan{
		ID:              s.newID(),
		PostURL:         req.PostURL,
		ReactionTypes:   req.ReactionTypes,
		IncludeComments: req.IncludeComments,
		LimitPerType:    req.LimitPerType,
		Status:          model.ScanProcessing,
	}
	if err := s.store.CreateScan(ctx, scan); err != nil {
		return nil, req, err
	}
	return scan, req, nil
}

// Submit 写入扫描记录后在后台运行流水线，立即返回 processing 状态的记录。
func (s *Service) Submit(ctx context.Context, req Request) (*model.EngagementScan, error) {
	scan, req, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(s.base, s.pipeline.runTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		_, _ = s.execute(runCtx, scan.ID, req)
	}()
	return scan, nil
}

// Run 同步执行一次扫描，返回线索。
func (s *Service) Run(ctx context.Context, req Request) (*model.EngagementScan, []model.Lead, error) {
	scan, req, err := s.prepare(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	leads, err := s.execute(ctx, scan.ID, req)
	if latest, getErr := s.store.GetScan(ctx, scan.ID); getErr == nil {
		scan = latest
	}
	return scan, leads, err
}

// Wait 等待所有后台扫描结束。
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown 取消所有后台扫描并等待其写入终态，最多等到 ctx 结束。
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for engagement scans: %w", ctx.Err())
	}
}

func (s *Service) execute(ctx context.Context, id string, req Request) ([]model.Lead, error) {
	logger := s.logger.WithFields(logrus.Fields{"scan_id": id, "post_url": req.PostURL})
	start := time.Now()

	leads, counters, err := s.pipeline.Run(ctx, req, func(c model.ScanCounters) {
		if err := s.store.UpdateScanProgress(ctx, id, c); err != nil {
			logger.WithError(err).Warn("persist scan progress failed")
		}
	})
	if err == nil {
		err = s.store.SaveLeads(ctx, id, leads)
	}

	// 终态写入不受运行超时影响
	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		msg := err.Error()
		if s.base.Err() != nil {
			msg = "shutdown: " + msg
		}
		logger.WithError(err).Error("engagement scan failed")
		if ferr := s.store.FinishScan(finishCtx, id, model.ScanFailed, msg); ferr != nil {
			logger.WithError(ferr).Error("persist scan failure failed")
		}
		return nil, err
	}
	if ferr := s.store.FinishScan(finishCtx, id, model.ScanCompleted, ""); ferr != nil {
		logger.WithError(ferr).Error("persist scan completion failed")
	}
	logger.WithFields(logrus.Fields{
		"engagers":  counters.TotalEngagers,
		"profiles":  counters.ProfilesEnriched,
		"companies": counters.CompaniesEnriched,
		"took":      time.Since(start).String(),
	}).Info("engagement scan completed")
	return leads, nil
}

// Get 返回扫描记录。
func (s *Service) Get(ctx context.Context, id string) (*model.EngagementScan, error) {
	return s.store.GetScan(ctx, id)
}

// Export 将已完成扫描的线索写为 CSV，未完成或失败的扫描返回 ErrScanNotReady。
func (s *Service) Export(ctx context.Context, id string, w io.Writer) error {
	scan, err := s.store.GetScan(ctx, id)
	if err != nil {
		return err
	}
	if scan.Status != model.ScanCompleted {
		return fmt.Errorf("%w: scan %s is %s", ErrScanNotReady, id, scan.Status)
	}
	leads, err := s.store.ListLeads(ctx, id)
	if err != nil {
		return err
	}
	return WriteCSV(w, leads)
}
