package model

import "time"

// BatchLedgerEntry 批量导入批次表 — 对应 batches
// 与批次内的凭证记录同批写入，之后只读
type BatchLedgerEntry struct {
	BatchID     string    `gorm:"type:varchar(64);primaryKey"        json:"batch_id"`
	Label       string    `gorm:"type:varchar(255);not null"         json:"label"`
	MemberCount int       `gorm:"not null"                           json:"member_count"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy   *string   `gorm:"type:varchar(64)"                   json:"created_by,omitempty"`
}

// TableName 指定表名
func (BatchLedgerEntry) TableName() string { return "batches" }
