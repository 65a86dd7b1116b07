package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signal-radar/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store 封装 SQLite 访问：账户、监控档案、信号事件、互动扫描与线索。
type Store struct {
	db *gorm.DB
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Account{},
		&model.MonitoredProfile{},
		&model.SignalEvent{},
		&model.EngagementScan{},
		&model.Lead{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// CreateAccount 新增账户。
func (s *Store) CreateAccount(ctx context.Context, acc *model.Account) error {
	if acc.Plan == "" {
		acc.Plan = model.PlanFree
	}
	if err := s.db.WithContext(ctx).Create(acc).Error; err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccount 根据 ID 获取账户，不存在时返回 sql.ErrNoRows。
func (s *Store) GetAccount(ctx context.Context, id uint) (*model.Account, error) {
	var acc model.Account
	if err := s.db.WithContext(ctx).First(&acc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}

// CreateProfile 新增监控档案。
func (s *Store) CreateProfile(ctx context.Context, p *model.MonitoredProfile) error {
	p.NextScanAt = p.NextScanAt.UTC()
	if err := s.db.WithContext(ctx).Omit("Account").Create(p).Error; err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// DueProfiles 返回 next_scan_at <= now 的档案，按到期时间升序，附带账户套餐与 webhook。
func (s *Store) DueProfiles(ctx context.Context, now time.Time, limit int) ([]model.MonitoredProfile, error) {
	if limit <= 0 {
		limit = 200
	}
	var profiles []model.MonitoredProfile
	if err := s.db.WithContext(ctx).
		Preload("Account").
		Where("next_scan_at <= ?", now.UTC()).
		Order("next_scan_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("due profiles: %w", err)
	}
	return profiles, nil
}

// GetProfile 根据 ID 获取档案。
func (s *Store) GetProfile(ctx context.Context, id uint) (*model.MonitoredProfile, error) {
	var p model.MonitoredProfile
	if err := s.db.WithContext(ctx).Preload("Account").First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// UpdateProfileScan 只更新 last_seen_post_time 与 next_scan_at；lastSeen 为空时保持原值。
func (s *Store) UpdateProfileScan(ctx context.Context, id uint, lastSeen *time.Time, nextScanAt time.Time) error {
	values := map[string]any{"next_scan_at": nextScanAt.UTC()}
	if lastSeen != nil {
		values["last_seen_post_time"] = lastSeen.UTC()
	}
	tx := s.db.WithContext(ctx).Model(&model.MonitoredProfile{}).Where("id = ?", id).UpdateColumns(values)
	if tx.Error != nil {
		return fmt.Errorf("update profile scan: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("update profile scan: id %d not found", id)
	}
	return nil
}

// InsertSignalEvents 逐条幂等写入，唯一约束冲突静默跳过，返回实际新增的事件。
func (s *Store) InsertSignalEvents(ctx context.Context, events []model.SignalEvent) ([]model.SignalEvent, error) {
	inserted := make([]model.SignalEvent, 0, len(events))
	for i := range events {
		ev := events[i]
		tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&ev)
		if tx.Error != nil {
			return inserted, fmt.Errorf("insert signal event: %w", tx.Error)
		}
		if tx.RowsAffected == 1 {
			inserted = append(inserted, ev)
		}
	}
	return inserted, nil
}

// SignalQuery 信号查询条件。
type SignalQuery struct {
	ProfileID uint
	Limit     int
}

// ListSignals 按检测时间倒序返回信号事件。
func (s *Store) ListSignals(ctx context.Context, q SignalQuery) ([]model.SignalEvent, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&model.SignalEvent{}).Order("detected_at DESC").Order("id DESC").Limit(limit)
	if q.ProfileID != 0 {
		query = query.Where("profile_id = ?", q.ProfileID)
	}
	var events []model.SignalEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return events, nil
}
