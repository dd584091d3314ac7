package schedule

import (
	"time"

	"github.com/CarPoolLink/CarPoolLink/internal/calendar"
	"github.com/CarPoolLink/CarPoolLink/internal/child"
	"github.com/CarPoolLink/CarPoolLink/internal/user"
	"github.com/CarPoolLink/CarPoolLink/internal/vehicle"
)

// ScheduleSlot 是 schedule_slots 表的 GORM 模型：一个小组在某个 UTC 时刻的一次接送。
// (GroupID, Datetime) 是自然键；Datetime 是唯一事实来源，
// “周几/几点/第几周”只作为派生视图存在，永远不单独落库。
//
// 状态机：不存在 → 活跃（≥1 个车辆占用）→ 不存在。
// 最后一个车辆占用被移除时槽位自动删除，不存在“空槽位”状态。
type ScheduleSlot struct {
	ID       string    `gorm:"primaryKey;size:36"`
	GroupID  string    `gorm:"size:36;not null;uniqueIndex:uniq_group_datetime"`
	Datetime time.Time `gorm:"precision:3;not null;uniqueIndex:uniq_group_datetime;index"`

	// 导航字段，供 Preload 组装聚合。
	VehicleAssignments []VehicleAssignment `gorm:"foreignKey:ScheduleSlotID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	ChildAssignments   []ChildAssignment   `gorm:"foreignKey:ScheduleSlotID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ScheduleSlot) TableName() string { return "schedule_slots" }

// VehicleAssignment 是 vehicle_assignments 表的 GORM 模型：
// 一辆车（可选带司机）在一个槽位上的占用。
// (ScheduleSlotID, VehicleID) 唯一：同一辆车不能在同一个槽位重复报名。
type VehicleAssignment struct {
	ID             string  `gorm:"primaryKey;size:36"`
	ScheduleSlotID string  `gorm:"size:36;not null;uniqueIndex:uniq_slot_vehicle;index"`
	VehicleID      string  `gorm:"size:36;not null;uniqueIndex:uniq_slot_vehicle"`
	DriverID       *string `gorm:"size:36"` // 可先占位、后补司机
	SeatOverride   *int    // 本次出行的座位数覆盖；nil 表示沿用车辆注册座位数

	Vehicle *vehicle.Vehicle `gorm:"foreignKey:VehicleID"`
	Driver  *user.User       `gorm:"foreignKey:DriverID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (VehicleAssignment) TableName() string { return "vehicle_assignments" }

// ChildAssignment 是 child_assignments 表的 GORM 模型：
// 一个孩子坐进槽位内某辆具体的车。
// (ScheduleSlotID, ChildID) 唯一：一次接送中孩子只能上一辆车；
// VehicleAssignmentID 必须属于同一个槽位。
type ChildAssignment struct {
	ID                  string `gorm:"primaryKey;size:36"`
	ScheduleSlotID      string `gorm:"size:36;not null;uniqueIndex:uniq_slot_child;index"`
	ChildID             string `gorm:"size:36;not null;uniqueIndex:uniq_slot_child"`
	VehicleAssignmentID string `gorm:"size:36;not null;index"`

	Child *child.Child `gorm:"foreignKey:ChildID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ChildAssignment) TableName() string { return "child_assignments" }

// SlotWeekView 是槽位时刻在某时区本地历法下的只读投影（仅供展示）。
type SlotWeekView struct {
	ISOYear   int    `json:"iso_year"`
	ISOWeek   int    `json:"iso_week"`
	Weekday   string `json:"weekday"`
	LocalTime string `json:"local_time"` // 本地 "15:04"
}

// WeekViewIn 计算槽位在 tz 下的周投影。只读派生，不回写。
func (s *ScheduleSlot) WeekViewIn(tz string) (*SlotWeekView, error) {
	isoYear, isoWeek, err := calendar.ISOWeekOf(s.Datetime, tz)
	if err != nil {
		return nil, err
	}
	loc, _ := time.LoadLocation(tz) // ISOWeekOf 已校验过时区
	local := s.Datetime.In(loc)
	return &SlotWeekView{
		ISOYear:   isoYear,
		ISOWeek:   isoWeek,
		Weekday:   local.Weekday().String(),
		LocalTime: local.Format("15:04"),
	}, nil
}

// ChildrenByAssignment 按所属车辆占用分桶孩子列表，
// 供调用方渲染“每辆车里坐了谁”。
func (s *ScheduleSlot) ChildrenByAssignment() map[string][]ChildAssignment {
	out := make(map[string][]ChildAssignment, len(s.VehicleAssignments))
	for _, ca := range s.ChildAssignments {
		out[ca.VehicleAssignmentID] = append(out[ca.VehicleAssignmentID], ca)
	}
	return out
}
