package errors

import "errors"

// ── 存储层通用错误 ──
// repository 负责把 gorm/驱动错误翻译为以下哨兵错误，service 只依赖这里的词汇。

var (
	// ErrStoreUnavailable 存储不可达或调用超时；写操作是否已提交未知
	ErrStoreUnavailable = errors.New("存储服务不可用，请稍后重试")

	// ErrDuplicateKey 唯一约束冲突（主键或唯一索引）
	ErrDuplicateKey = errors.New("唯一约束冲突")

	// ErrConditionFailed 条件更新未命中：记录已被其他操作修改
	ErrConditionFailed = errors.New("数据已被其他操作修改，请刷新后重试")
)
