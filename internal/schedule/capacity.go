package schedule

// EffectiveCapacity 返回一次车辆占用的有效座位数：
// 设置了 SeatOverride 时以覆盖值为准，否则取车辆注册座位数。
// 需要 Vehicle 已随占用加载；未加载且无覆盖时按 0 处理。
func EffectiveCapacity(va *VehicleAssignment) int {
	if va == nil {
		return 0
	}
	if va.SeatOverride != nil {
		return *va.SeatOverride
	}
	if va.Vehicle != nil {
		return va.Vehicle.Capacity
	}
	return 0
}

// HasOverride 判断是否设置了座位数覆盖。
// 覆盖值与注册座位数在数值上相等时仍然算“已覆盖”。
func HasOverride(va *VehicleAssignment) bool {
	return va != nil && va.SeatOverride != nil
}

// IsAtCapacity 判断当前孩子数是否已达到/超过有效座位数。
// 满座只是提示性约束：写入端不会硬性拦截，见 Store.AttachChild。
func IsAtCapacity(va *VehicleAssignment, childCount int) bool {
	return childCount >= EffectiveCapacity(va)
}
