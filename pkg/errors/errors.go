package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ── 领域错误类别 ──
// Service 层的具体错误通过 fmt.Errorf("%w: ...") 包装以下类别，
// 调用方既可以匹配具体错误，也可以只按类别处理。

var (
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("资源不存在")
	// ErrForbidden 角色、归属或授权不满足
	ErrForbidden = errors.New("无权执行此操作")
	// ErrInvalidState 当前状态不允许此操作（含并发竞争失败）
	ErrInvalidState = errors.New("当前状态不允许此操作")
	// ErrComplianceViolation 违反排班合规规则
	ErrComplianceViolation = errors.New("违反排班合规规则")
	// ErrAlreadyClaimed 同一员工对同一班次已有待审批申请
	ErrAlreadyClaimed = errors.New("已存在待审批的抢班申请")
)

// Kind 返回 err 所属的领域错误类别；不属于任何类别时返回 nil（视为基础设施错误）
func Kind(err error) error {
	for _, k := range []error{
		ErrNotFound,
		ErrForbidden,
		ErrInvalidState,
		ErrComplianceViolation,
		ErrAlreadyClaimed,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
