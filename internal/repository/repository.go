package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"gorm.io/gorm"

	pkgerrors "gatepass/pkg/errors"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Credential CredentialRepository
	Batch      BatchRepository
	Operator   OperatorRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		Credential: NewCredentialRepo(db),
		Batch:      NewBatchRepo(db),
		Operator:   NewOperatorRepo(db),
	}
}

// translateErr 将 gorm/驱动错误翻译为存储层哨兵错误
//   - gorm.ErrRecordNotFound 原样返回，由调用方判断
//   - 唯一约束冲突 → ErrDuplicateKey
//   - 其余错误（超时、断连、驱动异常）→ ErrStoreUnavailable
func translateErr(err error) error {
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", pkgerrors.ErrDuplicateKey, err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: 调用超时或已取消: %v", pkgerrors.ErrStoreUnavailable, err)
	case errors.Is(err, driver.ErrBadConn), errors.As(err, &netErr):
		return fmt.Errorf("%w: 连接异常: %v", pkgerrors.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}
}
