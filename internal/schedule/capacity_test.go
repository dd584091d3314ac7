package schedule

import (
	"testing"

	"github.com/CarPoolLink/CarPoolLink/internal/vehicle"
)

func intPtr(n int) *int { return &n }

func TestEffectiveCapacity(t *testing.T) {
	base := &vehicle.Vehicle{ID: "v1", Capacity: 4}

	va := &VehicleAssignment{Vehicle: base}
	if got := EffectiveCapacity(va); got != 4 {
		t.Fatalf("expected base capacity 4, got %d", got)
	}
	if HasOverride(va) {
		t.Fatalf("expected no override")
	}

	va.SeatOverride = intPtr(2)
	if got := EffectiveCapacity(va); got != 2 {
		t.Fatalf("expected override 2, got %d", got)
	}

	// 覆盖值与注册座位数相同时仍算“已覆盖”
	va.SeatOverride = intPtr(4)
	if !HasOverride(va) {
		t.Fatalf("expected override even when equal to base capacity")
	}
	if got := EffectiveCapacity(va); got != 4 {
		t.Fatalf("expected override 4, got %d", got)
	}
}

func TestIsAtCapacity(t *testing.T) {
	va := &VehicleAssignment{Vehicle: &vehicle.Vehicle{Capacity: 3}}

	if IsAtCapacity(va, 2) {
		t.Fatalf("2 of 3 should not be at capacity")
	}
	if !IsAtCapacity(va, 3) {
		t.Fatalf("3 of 3 should be at capacity")
	}
	if !IsAtCapacity(va, 4) {
		t.Fatalf("4 of 3 should be over capacity")
	}
}

func TestCapacityNilSafety(t *testing.T) {
	if EffectiveCapacity(nil) != 0 {
		t.Fatalf("nil assignment should have zero capacity")
	}
	if HasOverride(nil) {
		t.Fatalf("nil assignment has no override")
	}
	// 未预加载车辆且无覆盖：按 0 处理
	if EffectiveCapacity(&VehicleAssignment{}) != 0 {
		t.Fatalf("assignment without vehicle should have zero capacity")
	}
}
