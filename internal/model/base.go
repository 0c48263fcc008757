package model

import "time"

// BaseModel 通用审计字段（凭证、工作人员等业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy *string   `gorm:"type:varchar(64)"                   json:"created_by,omitempty"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy *string   `gorm:"type:varchar(64)"                   json:"updated_by,omitempty"`
}

// All 返回需要建表的全部模型（SQLite 自动迁移与测试使用）
func All() []interface{} {
	return []interface{}{
		&Operator{},
		&BatchLedgerEntry{},
		&CredentialRecord{},
	}
}
