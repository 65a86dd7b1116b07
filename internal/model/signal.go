package model

import "time"

// Post 是归一化后的帖子，只在一次扫描内存在，不落库。
type Post struct {
	Text string
	URL  string
	Date *time.Time
}

// SignalEvent 表示一次关键词命中，(ProfileID, PostURL, Keyword) 唯一。
type SignalEvent struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ProfileID  uint       `gorm:"not null;uniqueIndex:idx_signal_profile_url_keyword" json:"profile_id"`
	PostURL    string     `gorm:"not null;uniqueIndex:idx_signal_profile_url_keyword" json:"post_url"`
	Keyword    string     `gorm:"not null;uniqueIndex:idx_signal_profile_url_keyword" json:"keyword"`
	PostDate   *time.Time `json:"post_date"`
	Snippet    string     `json:"snippet"`
	DetectedAt time.Time  `gorm:"index" json:"detected_at"`
}
