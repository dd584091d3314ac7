package schedule

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CarPoolLink/CarPoolLink/internal/child"
	"github.com/CarPoolLink/CarPoolLink/internal/user"
	"github.com/CarPoolLink/CarPoolLink/internal/vehicle"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库只能挂一个连接，否则每个连接各是一份空库
	sqlDB.SetMaxOpenConns(1)

	store := NewStore(db)
	require.NoError(t, store.Migrate())
	return store
}

func seedVehicle(t *testing.T, s *Store, capacity int) *vehicle.Vehicle {
	t.Helper()
	v := &vehicle.Vehicle{
		ID:          uuid.NewString(),
		PlateNumber: uuid.NewString()[:8],
		Name:        "测试车",
		Capacity:    capacity,
	}
	require.NoError(t, vehicle.NewRepo(s.db).Upsert(context.Background(), v))
	return v
}

func seedDriver(t *testing.T, s *Store) *user.User {
	t.Helper()
	u := &user.User{ID: uuid.NewString(), Nickname: "司机"}
	require.NoError(t, user.NewRepo(s.db).Create(context.Background(), u))
	return u
}

func seedChild(t *testing.T, s *Store, name string) *child.Child {
	t.Helper()
	c := &child.Child{ID: uuid.NewString(), Name: name}
	require.NoError(t, child.NewRepo(s.db).Create(context.Background(), c))
	return c
}

func mustInstant(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts.UTC()
}

func TestCreateSlotDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := mustInstant(t, "2024-01-08T08:00:00Z")

	slot, err := s.CreateSlot(ctx, "group-1", at)
	require.NoError(t, err)
	assert.True(t, slot.Datetime.Equal(at))

	_, err = s.CreateSlot(ctx, "group-1", at)
	assert.ErrorIs(t, err, ErrDuplicateSlot)

	// 另一个小组同一时刻不冲突
	_, err = s.CreateSlot(ctx, "group-2", at)
	assert.NoError(t, err)
}

func TestAttachVehicleValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := seedVehicle(t, s, 4)
	slot, err := s.CreateSlot(ctx, "group-1", mustInstant(t, "2024-01-08T08:00:00Z"))
	require.NoError(t, err)

	_, err = s.AttachVehicle(ctx, "no-such-slot", v.ID, nil, nil)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = s.AttachVehicle(ctx, slot.ID, "no-such-vehicle", nil, nil)
	assert.ErrorIs(t, err, ErrVehicleNotFound)

	ghost := "no-such-driver"
	_, err = s.AttachVehicle(ctx, slot.ID, v.ID, &ghost, nil)
	assert.ErrorIs(t, err, ErrDriverNotFound)

	driver := seedDriver(t, s)
	va, err := s.AttachVehicle(ctx, slot.ID, v.ID, &driver.ID, intPtr(3))
	require.NoError(t, err)
	assert.Equal(t, slot.ID, va.ScheduleSlotID)
	require.NotNil(t, va.Vehicle)
	assert.Equal(t, 3, EffectiveCapacity(va))

	// 同一 (槽位, 车辆) 第二次挂载必须失败
	_, err = s.AttachVehicle(ctx, slot.ID, v.ID, nil, nil)
	assert.ErrorIs(t, err, ErrDuplicateAssignment)
}

func TestAttachVehicleCreatingSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v1 := seedVehicle(t, s, 4)
	v2 := seedVehicle(t, s, 2)
	at := mustInstant(t, "2024-01-08T08:00:00Z")

	va, err := s.AttachVehicleCreatingSlot(ctx, "group-1", at, v1.ID, nil, nil)
	require.NoError(t, err)

	slot, err := s.FindSlotByGroupAndInstant(ctx, "group-1", at)
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, slot.ID, va.ScheduleSlotID)

	// 槽位已存在时复用，不产生重复槽位
	va2, err := s.AttachVehicleCreatingSlot(ctx, "group-1", at, v2.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, slot.ID, va2.ScheduleSlotID)

	// 车辆校验失败时整体回滚：不能留下空槽位
	other := mustInstant(t, "2024-01-09T08:00:00Z")
	_, err = s.AttachVehicleCreatingSlot(ctx, "group-1", other, "no-such-vehicle", nil, nil)
	assert.ErrorIs(t, err, ErrVehicleNotFound)
	orphan, err := s.FindSlotByGroupAndInstant(ctx, "group-1", other)
	require.NoError(t, err)
	assert.Nil(t, orphan)
}

func TestDetachVehicleCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v1 := seedVehicle(t, s, 4)
	v2 := seedVehicle(t, s, 4)
	c1 := seedChild(t, s, "小明")
	at := mustInstant(t, "2024-01-08T08:00:00Z")

	va1, err := s.AttachVehicleCreatingSlot(ctx, "group-1", at, v1.ID, nil, nil)
	require.NoError(t, err)
	slotID := va1.ScheduleSlotID
	_, err = s.AttachVehicle(ctx, slotID, v2.ID, nil, nil)
	require.NoError(t, err)
	_, err = s.AttachChild(ctx, slotID, va1.ID, c1.ID)
	require.NoError(t, err)

	_, err = s.DetachVehicle(ctx, slotID, "no-such-vehicle")
	assert.ErrorIs(t, err, ErrAssignmentNotFound)

	// 还有兄弟车辆：槽位保留，被删车辆的孩子占位级联清掉
	res, err := s.DetachVehicle(ctx, slotID, v1.ID)
	require.NoError(t, err)
	assert.False(t, res.SlotDeleted)
	assert.Equal(t, v1.ID, res.Removed.VehicleID)

	slot, err := s.FindSlotByID(ctx, slotID)
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Len(t, slot.VehicleAssignments, 1)
	assert.Empty(t, slot.ChildAssignments)

	// 最后一辆车离开：槽位自动删除
	res, err = s.DetachVehicle(ctx, slotID, v2.ID)
	require.NoError(t, err)
	assert.True(t, res.SlotDeleted)

	slot, err = s.FindSlotByID(ctx, slotID)
	require.NoError(t, err)
	assert.Nil(t, slot)
}

func TestAttachChildScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v1 := seedVehicle(t, s, 4)
	v2 := seedVehicle(t, s, 4)
	c1 := seedChild(t, s, "小明")
	c2 := seedChild(t, s, "小红")
	c3 := seedChild(t, s, "小刚")

	va1, err := s.AttachVehicleCreatingSlot(ctx, "group-1", mustInstant(t, "2024-01-08T08:00:00Z"), v1.ID, nil, nil)
	require.NoError(t, err)
	slotID := va1.ScheduleSlotID
	va2, err := s.AttachVehicle(ctx, slotID, v2.ID, nil, nil)
	require.NoError(t, err)

	// 另一个槽位的车辆占用不能用于本槽位
	otherVA, err := s.AttachVehicleCreatingSlot(ctx, "group-1", mustInstant(t, "2024-01-09T08:00:00Z"), v1.ID, nil, nil)
	require.NoError(t, err)
	_, err = s.AttachChild(ctx, slotID, otherVA.ID, c1.ID)
	assert.ErrorIs(t, err, ErrAssignmentNotFound)

	_, err = s.AttachChild(ctx, slotID, va1.ID, "no-such-child")
	assert.ErrorIs(t, err, ErrChildNotFound)

	_, err = s.AttachChild(ctx, slotID, va1.ID, c1.ID)
	require.NoError(t, err)
	_, err = s.AttachChild(ctx, slotID, va1.ID, c2.ID)
	require.NoError(t, err)
	_, err = s.AttachChild(ctx, slotID, va2.ID, c3.ID)
	require.NoError(t, err)

	// 同一槽位内换一辆车也不行：孩子一次接送只能上一辆车
	_, err = s.AttachChild(ctx, slotID, va2.ID, c1.ID)
	assert.ErrorIs(t, err, ErrDuplicateChildAssignment)

	// 3 个孩子按车分桶成 2/1
	slot, err := s.FindSlotByID(ctx, slotID)
	require.NoError(t, err)
	require.NotNil(t, slot)
	buckets := slot.ChildrenByAssignment()
	assert.Len(t, buckets[va1.ID], 2)
	assert.Len(t, buckets[va2.ID], 1)
	for _, ca := range slot.ChildAssignments {
		assert.Equal(t, slotID, ca.ScheduleSlotID)
	}
}

func TestAttachChildPermissiveOverCapacity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := seedVehicle(t, s, 1)
	c1 := seedChild(t, s, "小明")
	c2 := seedChild(t, s, "小红")

	va, err := s.AttachVehicleCreatingSlot(ctx, "group-1", mustInstant(t, "2024-01-08T08:00:00Z"), v.ID, nil, nil)
	require.NoError(t, err)

	_, err = s.AttachChild(ctx, va.ScheduleSlotID, va.ID, c1.ID)
	require.NoError(t, err)
	// 超员写入不拦截，满座信息由读路径提示
	_, err = s.AttachChild(ctx, va.ScheduleSlotID, va.ID, c2.ID)
	require.NoError(t, err)

	slot, err := s.FindSlotByID(ctx, va.ScheduleSlotID)
	require.NoError(t, err)
	count := len(slot.ChildrenByAssignment()[va.ID])
	assert.Equal(t, 2, count)
	assert.True(t, IsAtCapacity(&slot.VehicleAssignments[0], count))
}

func TestDetachChild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := seedVehicle(t, s, 4)
	c := seedChild(t, s, "小明")

	va, err := s.AttachVehicleCreatingSlot(ctx, "group-1", mustInstant(t, "2024-01-08T08:00:00Z"), v.ID, nil, nil)
	require.NoError(t, err)
	_, err = s.AttachChild(ctx, va.ScheduleSlotID, va.ID, c.ID)
	require.NoError(t, err)

	removed, err := s.DetachChild(ctx, va.ScheduleSlotID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, removed.ChildID)

	_, err = s.DetachChild(ctx, va.ScheduleSlotID, c.ID)
	assert.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestListSlotsForISOWeek(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := seedVehicle(t, s, 4)

	// 东京第 1 周的区间是 [2023-12-31T15:00Z, 2024-01-07T14:59:59.999Z]
	inside1 := mustInstant(t, "2024-01-01T05:00:00Z")
	inside2 := mustInstant(t, "2024-01-05T08:30:00Z")
	before := mustInstant(t, "2023-12-31T14:59:00Z")

	for _, at := range []time.Time{inside2, inside1, before} {
		_, err := s.AttachVehicleCreatingSlot(ctx, "group-1", at, v.ID, nil, nil)
		require.NoError(t, err)
	}

	slots, err := s.ListSlotsForISOWeek(ctx, "group-1", 2024, 1, "Asia/Tokyo")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	// 升序排列
	assert.True(t, slots[0].Datetime.Equal(inside1))
	assert.True(t, slots[1].Datetime.Equal(inside2))

	// 非法时区直接上抛日历错误
	_, err = s.ListSlotsForISOWeek(ctx, "group-1", 2024, 1, "Mars/Olympus")
	assert.Error(t, err)

	// 以参考时刻定位同一个周
	slots, err = s.ListSlotsForWeekContaining(ctx, "group-1", mustInstant(t, "2024-01-03T00:00:00Z"), "Asia/Tokyo")
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestFindSlotAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := seedVehicle(t, s, 4)
	driver := seedDriver(t, s)
	c := seedChild(t, s, "小明")

	va, err := s.AttachVehicleCreatingSlot(ctx, "group-1", mustInstant(t, "2024-01-08T08:00:00Z"), v.ID, &driver.ID, nil)
	require.NoError(t, err)
	_, err = s.AttachChild(ctx, va.ScheduleSlotID, va.ID, c.ID)
	require.NoError(t, err)

	slot, err := s.FindSlotByID(ctx, va.ScheduleSlotID)
	require.NoError(t, err)
	require.NotNil(t, slot)
	require.Len(t, slot.VehicleAssignments, 1)

	got := slot.VehicleAssignments[0]
	require.NotNil(t, got.Vehicle)
	assert.Equal(t, v.Capacity, got.Vehicle.Capacity)
	require.NotNil(t, got.Driver)
	assert.Equal(t, driver.ID, got.Driver.ID)

	require.Len(t, slot.ChildAssignments, 1)
	assert.Equal(t, va.ID, slot.ChildAssignments[0].VehicleAssignmentID)
	require.NotNil(t, slot.ChildAssignments[0].Child)

	// 周投影只读派生
	view, err := slot.WeekViewIn("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, 2024, view.ISOYear)
	assert.Equal(t, 2, view.ISOWeek)
	assert.Equal(t, "Monday", view.Weekday)
	assert.Equal(t, "17:00", view.LocalTime)
}
