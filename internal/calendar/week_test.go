package calendar

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts.UTC()
}

// 2024 年第 1 周在不同时区下的边界：本地周一零点可能落在前一个 UTC 日，
// 周日 23:59:59.999 也可能落在下一个 UTC 日。
func TestWeekBoundariesAcrossZones(t *testing.T) {
	cases := []struct {
		zone  string
		start string
		end   string
	}{
		{"Asia/Tokyo", "2023-12-31T15:00:00Z", "2024-01-07T14:59:59.999Z"},
		{"America/Los_Angeles", "2024-01-01T08:00:00Z", "2024-01-08T07:59:59.999Z"},
		{"Europe/Paris", "2023-12-31T23:00:00Z", "2024-01-07T22:59:59.999Z"},
		{"UTC", "2024-01-01T00:00:00Z", "2024-01-07T23:59:59.999Z"},
	}
	for _, tc := range cases {
		start, end, err := WeekBoundaries(2024, 1, tc.zone)
		require.NoError(t, err, tc.zone)
		assert.True(t, start.Equal(mustParse(t, tc.start)), "%s start: got %s", tc.zone, FormatInstant(start))
		assert.True(t, end.Equal(mustParse(t, tc.end)), "%s end: got %s", tc.zone, FormatInstant(end))
	}
}

func TestWeekStartMatchesBoundaries(t *testing.T) {
	start, err := WeekStart(2024, 1, "Asia/Tokyo")
	require.NoError(t, err)
	bStart, _, err := WeekBoundaries(2024, 1, "Asia/Tokyo")
	require.NoError(t, err)
	assert.True(t, start.Equal(bStart))
}

// 东京时区下，2024-01-01T05:00Z 属于 2024 年第 1 周；
// 2023-12-31T14:59Z 在本地仍是上一周（严格早于周起点）。
func TestISOWeekOfTokyoBoundary(t *testing.T) {
	y, w, err := ISOWeekOf(mustParse(t, "2024-01-01T05:00:00Z"), "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, 2024, y)
	assert.Equal(t, 1, w)

	y, w, err = ISOWeekOf(mustParse(t, "2023-12-31T14:59:00Z"), "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, 2023, y)
	assert.Equal(t, 52, w)
}

// 纽约 2024-03-10 02:00 进入夏令时（落在 ISO 第 10 周的周日）。
// 含切换的那一周真实 UTC 跨度少 1 小时，相邻周保持整 7 天。
func TestWeekBoundariesDST(t *testing.T) {
	const fullWeek = 7*24*time.Hour - time.Millisecond

	start, end, err := WeekBoundaries(2024, 10, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, fullWeek-time.Hour, end.Sub(start))

	start, end, err = WeekBoundaries(2024, 11, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, fullWeek, end.Sub(start))

	// 秋季回拨：2024-11-03，ISO 第 44 周，多出 1 小时。
	start, end, err = WeekBoundaries(2024, 44, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, fullWeek+time.Hour, end.Sub(start))
}

func TestRoundTrip(t *testing.T) {
	zones := []string{"UTC", "Asia/Tokyo", "America/Los_Angeles", "Europe/Paris", "Australia/Sydney", "Pacific/Kiritimati"}
	years := []int{2015, 2020, 2023, 2024, 2025, 2026}
	for _, zone := range zones {
		for _, year := range years {
			for _, week := range []int{1, 2, 26, WeeksInYear(year)} {
				start, err := WeekStart(year, week, zone)
				require.NoError(t, err)
				gotYear, gotWeek, err := ISOWeekOf(start, zone)
				require.NoError(t, err)
				assert.Equal(t, year, gotYear, "%s %d-W%d", zone, year, week)
				assert.Equal(t, week, gotWeek, "%s %d-W%d", zone, year, week)
			}
		}
	}
}

func TestWeekBoundariesFromInstant(t *testing.T) {
	ref := mustParse(t, "2024-01-03T12:00:00Z")
	start, end, err := WeekBoundariesFromInstant(ref, "Europe/Paris")
	require.NoError(t, err)
	assert.True(t, start.Equal(mustParse(t, "2023-12-31T23:00:00Z")))
	assert.True(t, end.Equal(mustParse(t, "2024-01-07T22:59:59.999Z")))
}

func TestWeeksInYear(t *testing.T) {
	assert.Equal(t, 53, WeeksInYear(2015))
	assert.Equal(t, 53, WeeksInYear(2020))
	assert.Equal(t, 52, WeeksInYear(2023))
	assert.Equal(t, 52, WeeksInYear(2024))
	assert.Equal(t, 53, WeeksInYear(2026))
}

func TestInvalidInputs(t *testing.T) {
	var calErr *CalendarError

	_, err := WeekStart(2024, 1, "Mars/Olympus")
	require.Error(t, err)
	assert.True(t, errors.As(err, &calErr))

	_, _, err = WeekBoundaries(2024, 53, "UTC") // 2024 只有 52 周
	require.Error(t, err)
	assert.True(t, errors.As(err, &calErr))

	_, _, err = WeekBoundaries(2020, 53, "UTC") // 2020 有 53 周，合法
	assert.NoError(t, err)

	_, err = WeekStart(2024, 0, "UTC")
	require.Error(t, err)
	assert.True(t, errors.As(err, &calErr))
}

func TestParseInstant(t *testing.T) {
	ts, err := ParseInstant("2024-01-08T08:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08T08:00:00.000Z", FormatInstant(ts))

	_, err = ParseInstant("08/01/2024 08:00")
	require.Error(t, err)
	var calErr *CalendarError
	assert.True(t, errors.As(err, &calErr))
}
