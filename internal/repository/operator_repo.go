package repository

import (
	"context"

	"gorm.io/gorm"

	"gatepass/internal/model"
)

// OperatorRepository 工作人员数据访问接口
type OperatorRepository interface {
	Create(ctx context.Context, op *model.Operator) error
	GetByID(ctx context.Context, id string) (*model.Operator, error)
	GetByUsername(ctx context.Context, username string) (*model.Operator, error)
	Count(ctx context.Context) (int64, error)
}

// operatorRepo OperatorRepository 的 GORM 实现
type operatorRepo struct {
	db *gorm.DB
}

// NewOperatorRepo 创建 OperatorRepository 实例
func NewOperatorRepo(db *gorm.DB) OperatorRepository {
	return &operatorRepo{db: db}
}

func (r *operatorRepo) Create(ctx context.Context, op *model.Operator) error {
	return translateErr(r.db.WithContext(ctx).Create(op).Error)
}

func (r *operatorRepo) GetByID(ctx context.Context, id string) (*model.Operator, error) {
	var op model.Operator
	err := r.db.WithContext(ctx).
		Where("operator_id = ?", id).
		First(&op).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &op, nil
}

func (r *operatorRepo) GetByUsername(ctx context.Context, username string) (*model.Operator, error) {
	var op model.Operator
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&op).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &op, nil
}

func (r *operatorRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Operator{}).Count(&n).Error; err != nil {
		return 0, translateErr(err)
	}
	return n, nil
}
