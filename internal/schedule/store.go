package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/CarPoolLink/CarPoolLink/internal/calendar"
	"github.com/CarPoolLink/CarPoolLink/internal/child"
	"github.com/CarPoolLink/CarPoolLink/internal/user"
	"github.com/CarPoolLink/CarPoolLink/internal/vehicle"
)

// Store 是排班图（槽位/车辆占用/孩子占位）唯一的写入口。
// 每个变更操作都在 db.Transaction 回调里跑完“校验 + 写入”，
// 配合复合唯一索引保证并发写同一 (槽位, 车辆) / (槽位, 孩子) 时只有一个成功；
// 校验失败返回哨兵错误并整体回滚，外部永远观察不到中间状态。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 建表（含复合唯一索引）。
func (s *Store) Migrate() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store db is nil")
	}
	return s.db.AutoMigrate(
		&vehicle.Vehicle{},
		&user.User{},
		&child.Child{},
		&ScheduleSlot{},
		&VehicleAssignment{},
		&ChildAssignment{},
	)
}

// NormalizeInstant 统一为毫秒精度的 UTC 时刻（对外契约的时间粒度）。
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// slotQuery 带上完整聚合的预加载：车辆占用按创建顺序排列，
// 孩子占位携带所属车辆占用 ID 以便按车分桶。
func (s *Store) slotQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("VehicleAssignments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc")
		}).
		Preload("VehicleAssignments.Vehicle").
		Preload("VehicleAssignments.Driver").
		Preload("ChildAssignments").
		Preload("ChildAssignments.Child")
}

// FindSlotByID 按 ID 查询槽位聚合；不存在返回 (nil, nil)。
func (s *Store) FindSlotByID(ctx context.Context, id string) (*ScheduleSlot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	var slot ScheduleSlot
	err := s.slotQuery(ctx).Where("id = ?", id).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindSlotByGroupAndInstant 按自然键 (小组, 时刻) 查询；不存在返回 (nil, nil)。
func (s *Store) FindSlotByGroupAndInstant(ctx context.Context, groupID string, at time.Time) (*ScheduleSlot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	var slot ScheduleSlot
	err := s.slotQuery(ctx).
		Where("group_id = ? AND datetime = ?", groupID, NormalizeInstant(at)).
		First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListSlotsInRange 查询 [start, end] 闭区间内的槽位，按时刻升序。
func (s *Store) ListSlotsInRange(ctx context.Context, groupID string, start, end time.Time) ([]ScheduleSlot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	var slots []ScheduleSlot
	err := s.slotQuery(ctx).
		Where("group_id = ? AND datetime >= ? AND datetime <= ?", groupID, NormalizeInstant(start), NormalizeInstant(end)).
		Order("datetime asc").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// ListSlotsForISOWeek 查询某小组在指定 ISO 周（按 tz 本地历法）内的槽位。
func (s *Store) ListSlotsForISOWeek(ctx context.Context, groupID string, isoYear, isoWeek int, tz string) ([]ScheduleSlot, error) {
	start, end, err := calendar.WeekBoundaries(isoYear, isoWeek, tz)
	if err != nil {
		return nil, err
	}
	return s.ListSlotsInRange(ctx, groupID, start, end)
}

// ListSlotsForWeekContaining 查询包含参考时刻 at 的那个本地周。
func (s *Store) ListSlotsForWeekContaining(ctx context.Context, groupID string, at time.Time, tz string) ([]ScheduleSlot, error) {
	start, end, err := calendar.WeekBoundariesFromInstant(at, tz)
	if err != nil {
		return nil, err
	}
	return s.ListSlotsInRange(ctx, groupID, start, end)
}

// CreateSlot 显式创建槽位；(groupID, at) 已存在时返回 ErrDuplicateSlot。
func (s *Store) CreateSlot(ctx context.Context, groupID string, at time.Time) (*ScheduleSlot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedule.CreateSlot")
	defer span.Finish()

	slot := &ScheduleSlot{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		Datetime: NormalizeInstant(at),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ScheduleSlot{}).
			Where("group_id = ? AND datetime = ?", slot.GroupID, slot.Datetime).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateSlot
		}
		if err := tx.Create(slot).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSlot
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// AttachVehicle 给已存在的槽位挂一辆车（可选司机与座位覆盖）。
// 槽位/车辆/司机存在性校验、重复校验与写入在同一事务内完成。
func (s *Store) AttachVehicle(ctx context.Context, slotID, vehicleID string, driverID *string, seatOverride *int) (*VehicleAssignment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedule.AttachVehicle")
	defer span.Finish()

	var va *VehicleAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot ScheduleSlot
		err := tx.Where("id = ?", slotID).First(&slot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		va, err = attachVehicleTx(ctx, tx, slot.ID, vehicleID, driverID, seatOverride)
		return err
	})
	if err != nil {
		return nil, err
	}
	return va, nil
}

// AttachVehicleCreatingSlot 原子的“找到或建出槽位再挂车”：
// 对应把车辆拖到空白格子的动作。车辆校验失败时整体回滚，不会留下孤儿槽位。
func (s *Store) AttachVehicleCreatingSlot(ctx context.Context, groupID string, at time.Time, vehicleID string, driverID *string, seatOverride *int) (*VehicleAssignment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedule.AttachVehicleCreatingSlot")
	defer span.Finish()

	at = NormalizeInstant(at)
	var va *VehicleAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot ScheduleSlot
		err := tx.Where("group_id = ? AND datetime = ?", groupID, at).First(&slot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slot = ScheduleSlot{ID: uuid.NewString(), GroupID: groupID, Datetime: at}
			if err := tx.Create(&slot).Error; err != nil {
				// 并发创建同一槽位：撞唯一索引后改为读已有记录
				if !errors.Is(err, gorm.ErrDuplicatedKey) {
					return err
				}
				if err := tx.Where("group_id = ? AND datetime = ?", groupID, at).First(&slot).Error; err != nil {
					return err
				}
			}
		} else if err != nil {
			return err
		}
		va, err = attachVehicleTx(ctx, tx, slot.ID, vehicleID, driverID, seatOverride)
		return err
	})
	if err != nil {
		return nil, err
	}
	return va, nil
}

// attachVehicleTx 在事务作用域内完成车辆占用的校验与写入。
// 仓储按教科书式 unit-of-work 用 tx 实例化，校验读与写入处于同一隔离域。
func attachVehicleTx(ctx context.Context, tx *gorm.DB, slotID, vehicleID string, driverID *string, seatOverride *int) (*VehicleAssignment, error) {
	v, err := vehicle.NewRepo(tx).FindByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVehicleNotFound
	}

	var driver *user.User
	if driverID != nil && *driverID != "" {
		driver, err = user.NewRepo(tx).FindByID(ctx, *driverID)
		if err != nil {
			return nil, err
		}
		if driver == nil {
			return nil, ErrDriverNotFound
		}
	} else {
		driverID = nil
	}

	var count int64
	if err := tx.Model(&VehicleAssignment{}).
		Where("schedule_slot_id = ? AND vehicle_id = ?", slotID, vehicleID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateAssignment
	}

	va := &VehicleAssignment{
		ID:             uuid.NewString(),
		ScheduleSlotID: slotID,
		VehicleID:      vehicleID,
		DriverID:       driverID,
		SeatOverride:   seatOverride,
	}
	if err := tx.Create(va).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateAssignment
		}
		return nil, err
	}
	va.Vehicle = v
	va.Driver = driver
	return va, nil
}

// DetachVehicleResult 是解除车辆占用的结果：
// 被移除的占用记录，以及槽位是否因此被级联删除。
type DetachVehicleResult struct {
	Removed     *VehicleAssignment
	SlotDeleted bool
}

// DetachVehicle 解除 (槽位, 车辆) 的占用：
// 级联删掉该占用下的孩子占位；若它是槽位最后一个占用，槽位一并删除。
// “零车辆 ⇒ 槽位不存在”的不变量在事务内保持，观察者看不到空槽位。
func (s *Store) DetachVehicle(ctx context.Context, slotID, vehicleID string) (*DetachVehicleResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedule.DetachVehicle")
	defer span.Finish()

	res := &DetachVehicleResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var va VehicleAssignment
		err := tx.Where("schedule_slot_id = ? AND vehicle_id = ?", slotID, vehicleID).First(&va).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Where("vehicle_assignment_id = ?", va.ID).Delete(&ChildAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", va.ID).Delete(&VehicleAssignment{}).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&VehicleAssignment{}).
			Where("schedule_slot_id = ?", slotID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.Where("id = ?", slotID).Delete(&ScheduleSlot{}).Error; err != nil {
				return err
			}
			res.SlotDeleted = true
		}
		res.Removed = &va
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AttachChild 把孩子放进槽位内某辆具体的车。
// 满座不做硬拦截（只在读路径上提示），调用方应先用 IsAtCapacity 检查。
func (s *Store) AttachChild(ctx context.Context, slotID, vehicleAssignmentID, childID string) (*ChildAssignment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedule.AttachChild")
	defer span.Finish()

	var ca *ChildAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 车辆占用必须属于这个槽位，孩子只能坐进“本次接送里的车”
		var va VehicleAssignment
		err := tx.Where("id = ? AND schedule_slot_id = ?", vehicleAssignmentID, slotID).First(&va).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		if err != nil {
			return err
		}

		c, err := child.NewRepo(tx).FindByID(ctx, childID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrChildNotFound
		}

		var count int64
		if err := tx.Model(&ChildAssignment{}).
			Where("schedule_slot_id = ? AND child_id = ?", slotID, childID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateChildAssignment
		}

		ca = &ChildAssignment{
			ID:                  uuid.NewString(),
			ScheduleSlotID:      slotID,
			ChildID:             childID,
			VehicleAssignmentID: va.ID,
		}
		if err := tx.Create(ca).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateChildAssignment
			}
			return err
		}
		ca.Child = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ca, nil
}

// DetachChild 把孩子从本次接送中移除，返回被删除的记录。
func (s *Store) DetachChild(ctx context.Context, slotID, childID string) (*ChildAssignment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "schedule.DetachChild")
	defer span.Finish()

	var ca ChildAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("schedule_slot_id = ? AND child_id = ?", slotID, childID).First(&ca).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		if err != nil {
			return err
		}
		return tx.Where("id = ?", ca.ID).Delete(&ChildAssignment{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &ca, nil
}
