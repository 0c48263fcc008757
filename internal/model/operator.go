package model

// 工作人员角色
const (
	RoleAdmin     = "admin"     // 全部权限
	RoleRegistrar = "registrar" // 登记、导入、查询
	RoleScanner   = "scanner"   // 入口扫码
)

// Operator 工作人员表 — 对应 operators
type Operator struct {
	OperatorID   string `gorm:"type:varchar(64);primaryKey"                          json:"operator_id"`
	Username     string `gorm:"type:varchar(64);not null;uniqueIndex:idx_operators_username" json:"username"`
	DisplayName  string `gorm:"type:varchar(100);not null;default:''"                json:"display_name"`
	PasswordHash string `gorm:"type:varchar(255);not null"                           json:"-"`
	Role         string `gorm:"type:varchar(20);not null;default:'scanner'"          json:"role"`
	BaseModel
}

// TableName 指定表名
func (Operator) TableName() string { return "operators" }
