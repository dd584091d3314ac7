package schedule

import "errors"

// 变更操作内部的校验失败会回滚整个事务并以下列哨兵错误上抛，
// 调用方用 errors.Is 区分种类后映射为各自的对外表现。
// 查询操作的“未找到”不是错误（返回 nil），只有变更的前置条件不满足才算错误。
var (
	ErrSlotNotFound             = errors.New("schedule: slot not found")
	ErrVehicleNotFound          = errors.New("schedule: vehicle not found")
	ErrDriverNotFound           = errors.New("schedule: driver not found")
	ErrChildNotFound            = errors.New("schedule: child not found")
	ErrAssignmentNotFound       = errors.New("schedule: assignment not found")
	ErrDuplicateSlot            = errors.New("schedule: slot already exists for group and instant")
	ErrDuplicateAssignment      = errors.New("schedule: vehicle already assigned to slot")
	ErrDuplicateChildAssignment = errors.New("schedule: child already assigned in slot")
)
