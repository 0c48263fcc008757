package model

import "time"

// CredentialRecord 入场凭证表 — 对应 credentials
//
// CredentialID 即二维码中的 id，创建时生成且不再变更。
// IsRedeemed 只允许 false → true 单向变化，RedeemedAt 与之同时写入且仅写一次。
// BatchID 仅批量导入的记录有值，指向 batches 中的批次记录。
type CredentialRecord struct {
	CredentialID string     `gorm:"type:varchar(64);primaryKey"                        json:"credential_id"`
	FullName     string     `gorm:"type:varchar(200);not null"                         json:"full_name"`
	ExternalID   string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_credentials_external_id" json:"external_id"`
	Group        string     `gorm:"column:group_name;type:varchar(100);not null"      json:"group"`
	BatchID      *string    `gorm:"type:varchar(64);index"                             json:"batch_id,omitempty"`
	IsRedeemed   bool       `gorm:"not null;default:false"                             json:"is_redeemed"`
	RedeemedAt   *time.Time `json:"redeemed_at,omitempty"`
	RedeemedBy   *string    `gorm:"type:varchar(64)"                                   json:"redeemed_by,omitempty"`
	BaseModel
}

// TableName 指定表名
func (CredentialRecord) TableName() string { return "credentials" }

// Identity 返回凭证对应的来宾身份
func (r *CredentialRecord) Identity() GuestIdentity {
	return GuestIdentity{
		FullName:   r.FullName,
		ExternalID: r.ExternalID,
		Group:      r.Group,
	}
}

// GuestIdentity 注册输入：姓名、外部编号（学号/准考证号）、分组（班级）
type GuestIdentity struct {
	FullName   string `json:"full_name"`
	ExternalID string `json:"external_id"`
	Group      string `json:"group"`
}
