package model

import (
	"time"

	"gorm.io/datatypes"
)

// PlanTier 表示账户套餐档位，决定重新扫描间隔。
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanBasic    PlanTier = "basic"
	PlanBusiness PlanTier = "business"
)

// Account 拥有监控档案的账户
// - Plan: 套餐档位
// - WebhookURL: 为空表示未配置推送
type Account struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Email      string    `gorm:"uniqueIndex" json:"email"`
	Plan       PlanTier  `gorm:"default:'free'" json:"plan"`
	WebhookURL string    `json:"webhook_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MonitoredProfile 被监控的社交档案
// - Keywords: 有序关键词，保证匹配结果顺序稳定
// - LastSeenPostTime: 上次观察到的最新帖子时间，首次扫描前为空
// - NextScanAt: 下一次到期时间，只增不减
type MonitoredProfile struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	AccountID        uint                        `gorm:"index" json:"account_id"`
	Account          Account                     `gorm:"foreignKey:AccountID" json:"account"`
	ProfileURL       string                      `gorm:"not null" json:"profile_url"`
	Keywords         datatypes.JSONSlice[string] `json:"keywords"`
	LastSeenPostTime *time.Time                  `json:"last_seen_post_time"`
	NextScanAt       time.Time                   `gorm:"index" json:"next_scan_at"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}
