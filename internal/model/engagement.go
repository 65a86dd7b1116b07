package model

import (
	"time"

	"gorm.io/datatypes"
)

// ScanStatus 互动扫描状态。
type ScanStatus string

const (
	ScanProcessing ScanStatus = "processing"
	ScanCompleted  ScanStatus = "completed"
	ScanFailed     ScanStatus = "failed"
)

// EngagementScan 针对单条帖子的互动采集任务，计数器随阶段推进更新。
type EngagementScan struct {
	ID                string                      `gorm:"primaryKey" json:"id"`
	PostURL           string                      `gorm:"not null" json:"post_url"`
	ReactionTypes     datatypes.JSONSlice[string] `json:"reaction_types"`
	IncludeComments   bool                        `json:"include_comments"`
	LimitPerType      int                         `json:"limit_per_type"`
	Status            ScanStatus                  `gorm:"index" json:"status"`
	TotalEngagers     int                         `json:"total_engagers"`
	ProfilesTotal     int                         `json:"profiles_total"`
	ProfilesEnriched  int                         `json:"profiles_enriched"`
	CompaniesTotal    int                         `json:"companies_total"`
	CompaniesEnriched int                         `json:"companies_enriched"`
	Error             string                      `json:"error,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	CompletedAt       *time.Time                  `json:"completed_at"`
}

// ScanCounters 是进度回调推送的累计计数。
type ScanCounters struct {
	TotalEngagers     int `json:"total_engagers"`
	ProfilesTotal     int `json:"profiles_total"`
	ProfilesEnriched  int `json:"profiles_enriched"`
	CompaniesTotal    int `json:"companies_total"`
	CompaniesEnriched int `json:"companies_enriched"`
}

// Engager 去重后的互动者，ProfileURL 为原始首见地址。
type Engager struct {
	ProfileURL    string
	Name          string
	ReactionTypes []string
	Comment       string
}

// ProfileInfo 档案补全结果。
type ProfileInfo struct {
	Name                   string
	JobTitle               string
	Location               string
	Industry               string
	Connections            int
	Followers              int
	CompanyName            string
	CompanyURL             string
	NeedsCompanyEnrichment bool
}

// CompanyInfo 公司补全结果。
type CompanyInfo struct {
	Name         string
	Industry     string
	EmployeeSize string
	Location     string
	URL          string
}

// Lead 合并后的最终记录，对应导出 CSV 的一行。
type Lead struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	ScanID            string `gorm:"index;not null" json:"scan_id"`
	Name              string `json:"name"`
	JobTitle          string `json:"job_title"`
	Location          string `json:"location"`
	Industry          string `json:"industry"`
	ProfileURL        string `json:"profile_url"`
	Connections       int    `json:"connections"`
	Followers         int    `json:"followers"`
	CompanyName       string `json:"company_name"`
	EmployeeSize      string `json:"employee_size"`
	CompanyLocation   string `json:"company_location"`
	CompanyProfileURL string `json:"company_profile_url"`
	ReactionType      string `json:"reaction_type"`
	Comment           string `json:"comment"`
	Degraded          bool   `json:"degraded"`
}
