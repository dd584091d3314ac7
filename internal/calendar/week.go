package calendar

import (
	"fmt"
	"time"
)

// 本包负责 ISO-8601 周坐标与 UTC 时刻区间之间的换算。
// 所有函数都是纯函数：给定 (year, week, 时区) 即可确定结果，
// 不做任何 I/O，夏令时规则完全交给 time.LoadLocation 加载的 IANA 数据。

// CalendarError 表示非法的时区标识或超出当年范围的周号。
// 不做任何兜底截断：错误必须显式上抛给调用方。
type CalendarError struct {
	Zone string // 出错的 IANA 时区标识（可能为空）
	Year int
	Week int
	Msg  string
}

func (e *CalendarError) Error() string {
	switch {
	case e.Week != 0:
		return fmt.Sprintf("calendar: %s (year=%d week=%d zone=%s)", e.Msg, e.Year, e.Week, e.Zone)
	case e.Zone != "":
		return fmt.Sprintf("calendar: %s (zone=%s)", e.Msg, e.Zone)
	default:
		return "calendar: " + e.Msg
	}
}

// loadZone 加载 IANA 时区；失败统一包装为 *CalendarError。
func loadZone(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &CalendarError{Zone: tz, Msg: "unknown timezone identifier"}
	}
	return loc, nil
}

// WeeksInYear 返回给定 ISO 年的周数（52 或 53）。
// 依据：12 月 28 日永远落在当年最后一个 ISO 周内。
func WeeksInYear(isoYear int) int {
	_, week := time.Date(isoYear, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}

// WeekStart 返回指定 ISO 周在 tz 本地历法下周一 00:00:00.000 对应的 UTC 时刻。
// ISO 规则：第 1 周是包含当年第一个周四（等价于包含 1 月 4 日）的那一周。
func WeekStart(isoYear, isoWeek int, tz string) (time.Time, error) {
	loc, err := loadZone(tz)
	if err != nil {
		return time.Time{}, err
	}
	if err := checkWeek(isoYear, isoWeek, tz); err != nil {
		return time.Time{}, err
	}
	day := week1MondayDay(isoYear) + (isoWeek-1)*7
	// time.Date 会按 loc 的规则解析本地墙钟时间并自动归一化日偏移，
	// 因此跨月/跨年以及周内含夏令时切换的情况都能得到正确的 UTC 时刻。
	return time.Date(isoYear, time.January, day, 0, 0, 0, 0, loc).UTC(), nil
}

// WeekBoundaries 返回指定 ISO 周的 [start, end] 闭区间（均为 UTC 时刻）。
// start 为本地周一 00:00:00.000，end 为本地周日 23:59:59.999；
// 本地墙钟跨度恒为 7 天减 1 毫秒，真实 UTC 跨度在夏令时周会相差 ±1 小时。
func WeekBoundaries(isoYear, isoWeek int, tz string) (time.Time, time.Time, error) {
	loc, err := loadZone(tz)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := checkWeek(isoYear, isoWeek, tz); err != nil {
		return time.Time{}, time.Time{}, err
	}
	day := week1MondayDay(isoYear) + (isoWeek-1)*7
	start := time.Date(isoYear, time.January, day, 0, 0, 0, 0, loc).UTC()
	end := time.Date(isoYear, time.January, day+6, 23, 59, 59, int(time.Millisecond)*999, loc).UTC()
	return start, end, nil
}

// WeekBoundariesFromInstant 先确定 t 在 tz 本地历法中所属的 ISO 周，
// 再返回该周的 [start, end] 区间。
func WeekBoundariesFromInstant(t time.Time, tz string) (time.Time, time.Time, error) {
	isoYear, isoWeek, err := ISOWeekOf(t, tz)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return WeekBoundaries(isoYear, isoWeek, tz)
}

// ISOWeekOf 返回时刻 t 在 tz 本地历法中所属的 (ISO 年, ISO 周)。
func ISOWeekOf(t time.Time, tz string) (int, int, error) {
	loc, err := loadZone(tz)
	if err != nil {
		return 0, 0, err
	}
	isoYear, isoWeek := t.In(loc).ISOWeek()
	return isoYear, isoWeek, nil
}

// ParseInstant 解析 ISO-8601 的 UTC 时刻字符串（毫秒精度），
// 例如 "2024-01-08T08:00:00.000Z"。
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &CalendarError{Msg: fmt.Sprintf("invalid instant %q: %v", s, err)}
	}
	return t.UTC(), nil
}

// FormatInstant 输出毫秒精度的 ISO-8601 UTC 字符串。
func FormatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// week1MondayDay 返回第 1 周周一相对 1 月 1 日的“日序号”
// （以 1 月为基准的 day 值，可能 <= 0，表示落在上一年 12 月）。
func week1MondayDay(isoYear int) int {
	// 1 月 4 日一定在第 1 周内；由其星期序号回推周一。
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, time.UTC)
	wd := int(jan4.Weekday())
	if wd == 0 {
		wd = 7 // 周日按 ISO 记为 7
	}
	return 4 - (wd - 1)
}

func checkWeek(isoYear, isoWeek int, tz string) error {
	if max := WeeksInYear(isoYear); isoWeek < 1 || isoWeek > max {
		return &CalendarError{
			Zone: tz,
			Year: isoYear,
			Week: isoWeek,
			Msg:  fmt.Sprintf("week out of range 1..%d", max),
		}
	}
	return nil
}
