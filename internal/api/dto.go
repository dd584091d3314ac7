package api

import (
	"github.com/CarPoolLink/CarPoolLink/internal/calendar"
	"github.com/CarPoolLink/CarPoolLink/internal/schedule"
)

// 对外的 JSON 视图：纯数据记录，满座信息只作提示字段，
// 周几/本地时间是按请求时区计算的只读投影。

type vehicleView struct {
	ID          string `json:"id"`
	PlateNumber string `json:"plate_number"`
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
}

type childAssignmentView struct {
	ID        string `json:"id"`
	ChildID   string `json:"child_id"`
	ChildName string `json:"child_name,omitempty"`
}

type vehicleAssignmentView struct {
	ID                string                `json:"id"`
	VehicleID         string                `json:"vehicle_id"`
	DriverID          *string               `json:"driver_id,omitempty"`
	SeatOverride      *int                  `json:"seat_override,omitempty"`
	EffectiveCapacity int                   `json:"effective_capacity"`
	HasOverride       bool                  `json:"has_override"`
	ChildCount        int                   `json:"child_count"`
	AtCapacity        bool                  `json:"at_capacity"`
	Vehicle           *vehicleView          `json:"vehicle,omitempty"`
	Children          []childAssignmentView `json:"children"`
}

type slotView struct {
	ID                 string                  `json:"id"`
	GroupID            string                  `json:"group_id"`
	Datetime           string                  `json:"datetime"`
	Week               *schedule.SlotWeekView  `json:"week,omitempty"`
	VehicleAssignments []vehicleAssignmentView `json:"vehicle_assignments"`
}

type detachVehicleView struct {
	Removed     vehicleAssignmentView `json:"removed"`
	SlotDeleted bool                  `json:"slot_deleted"`
}

func toVehicleAssignmentView(va *schedule.VehicleAssignment, children []schedule.ChildAssignment) vehicleAssignmentView {
	out := vehicleAssignmentView{
		ID:                va.ID,
		VehicleID:         va.VehicleID,
		DriverID:          va.DriverID,
		SeatOverride:      va.SeatOverride,
		EffectiveCapacity: schedule.EffectiveCapacity(va),
		HasOverride:       schedule.HasOverride(va),
		ChildCount:        len(children),
		AtCapacity:        schedule.IsAtCapacity(va, len(children)),
		Children:          make([]childAssignmentView, 0, len(children)),
	}
	if va.Vehicle != nil {
		out.Vehicle = &vehicleView{
			ID:          va.Vehicle.ID,
			PlateNumber: va.Vehicle.PlateNumber,
			Name:        va.Vehicle.Name,
			Capacity:    va.Vehicle.Capacity,
		}
	}
	for _, ca := range children {
		v := childAssignmentView{ID: ca.ID, ChildID: ca.ChildID}
		if ca.Child != nil {
			v.ChildName = ca.Child.Name
		}
		out.Children = append(out.Children, v)
	}
	return out
}

// toSlotView 组装槽位视图；tz 非空时附带周投影。
func toSlotView(slot *schedule.ScheduleSlot, tz string) (slotView, error) {
	out := slotView{
		ID:                 slot.ID,
		GroupID:            slot.GroupID,
		Datetime:           calendar.FormatInstant(slot.Datetime),
		VehicleAssignments: make([]vehicleAssignmentView, 0, len(slot.VehicleAssignments)),
	}
	if tz != "" {
		view, err := slot.WeekViewIn(tz)
		if err != nil {
			return slotView{}, err
		}
		out.Week = view
	}
	buckets := slot.ChildrenByAssignment()
	for i := range slot.VehicleAssignments {
		va := &slot.VehicleAssignments[i]
		out.VehicleAssignments = append(out.VehicleAssignments, toVehicleAssignmentView(va, buckets[va.ID]))
	}
	return out, nil
}
