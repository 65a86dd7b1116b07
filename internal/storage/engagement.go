package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signal-radar/internal/model"

	"gorm.io/gorm"
)

// CreateScan 写入处于 processing 状态的扫描记录。
func (s *Store) CreateScan(ctx context.Context, scan *model.EngagementScan) error {
	if scan.Status == "" {
		scan.Status = model.ScanProcessing
	}
	if err := s.db.WithContext(ctx).Create(scan).Error; err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	return nil
}

// UpdateScanProgress 覆盖写入累计计数。
func (s *Store) UpdateScanProgress(ctx context.Context, id string, c model.ScanCounters) error {
	tx := s.db.WithContext(ctx).Model(&model.EngagementScan{}).Where("id = ?", id).Updates(map[string]any{
		"total_engagers":     c.TotalEngagers,
		"profiles_total":     c.ProfilesTotal,
		"profiles_enriched":  c.ProfilesEnriched,
		"companies_total":    c.CompaniesTotal,
		"companies_enriched": c.CompaniesEnriched,
	})
	if tx.Error != nil {
		return fmt.Errorf("update scan progress: %w", tx.Error)
	}
	return nil
}

// FinishScan 设置终态，errMsg 仅在失败时有意义。
func (s *Store) FinishScan(ctx context.Context, id string, status model.ScanStatus, errMsg string) error {
	now := time.Now()
	tx := s.db.WithContext(ctx).Model(&model.EngagementScan{}).Where("id = ?", id).Updates(map[string]any{
		"status":       status,
		"error":        errMsg,
		"completed_at": &now,
	})
	if tx.Error != nil {
		return fmt.Errorf("finish scan: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("finish scan: id %s not found", id)
	}
	return nil
}

// GetScan 根据 ID 获取扫描记录。
func (s *Store) GetScan(ctx context.Context, id string) (*model.EngagementScan, error) {
	var scan model.EngagementScan
	if err := s.db.WithContext(ctx).First(&scan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return &scan, nil
}

// SaveLeads 批量写入合并后的线索。
func (s *Store) SaveLeads(ctx context.Context, scanID string, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	for i := range leads {
		leads[i].ScanID = scanID
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&leads, 100).Error; err != nil {
		return fmt.Errorf("save leads: %w", err)
	}
	return nil
}

// ListLeads 按写入顺序返回扫描的线索。
func (s *Store) ListLeads(ctx context.Context, scanID string) ([]model.Lead, error) {
	var leads []model.Lead
	if err := s.db.WithContext(ctx).Where("scan_id = ?", scanID).Order("id ASC").Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}
