// Package timegrid 排程时间网格
// 一周按固定宽度切成时间列，排程只在列边界上落位
package timegrid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GridPeriod 每个网格列的时间宽度
const GridPeriod = 30 * time.Minute

const (
	ColsPerHour = int(time.Hour / GridPeriod)
	ColsPerDay  = ColsPerHour * 24
	ColsPerWeek = ColsPerDay * 7
)

const yearWeekFormat = "%d-%02d" // ISO年-周，如 2026-34

// Snap 向下取整到最近的网格列边界
func Snap(t time.Time) time.Time {
	minute := (t.Minute() / int(GridPeriod.Minutes())) * int(GridPeriod.Minutes())
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
}

// ColumnIndex 时间在本周网格中的列号，周一00:00为0
func ColumnIndex(t time.Time) int {
	return t.Minute()/(60/ColsPerHour) +
		t.Hour()*ColsPerHour +
		mondayIndex(t.Weekday())*ColsPerDay
}

// FormatYearWeek ISO年-周编号
func FormatYearWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf(yearWeekFormat, year, week)
}

// CurrentYearWeek 当前周的年-周编号
func CurrentYearWeek() string {
	return FormatYearWeek(time.Now())
}

// WeekStart 该周周一00:00（本地时区）
func WeekStart(yearWeek string) (time.Time, error) {
	parts := strings.SplitN(yearWeek, "-", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid year-week: %s", yearWeek)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid year-week: %s", yearWeek)
	}
	week, err := strconv.Atoi(parts[1])
	if err != nil || week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("invalid year-week: %s", yearWeek)
	}

	// ISO 8601: 1月4日总在第一周
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.Local)
	firstMonday := jan4.AddDate(0, 0, -mondayIndex(jan4.Weekday()))
	return firstMonday.AddDate(0, 0, (week-1)*7), nil
}

// WeekEnd 该周周日24:00，即下周一00:00
func WeekEnd(yearWeek string) (time.Time, error) {
	start, err := WeekStart(yearWeek)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, 7), nil
}

// PriorWeek 上一周的年-周编号
func PriorWeek(yearWeek string) (string, error) {
	start, err := WeekStart(yearWeek)
	if err != nil {
		return "", err
	}
	return FormatYearWeek(start.AddDate(0, 0, -7)), nil
}

// NextWeek 下一周的年-周编号
func NextWeek(yearWeek string) (string, error) {
	start, err := WeekStart(yearWeek)
	if err != nil {
		return "", err
	}
	return FormatYearWeek(start.AddDate(0, 0, 7)), nil
}

// 周的时态，仅用于展示分类
const (
	TensePast    = "past"
	TenseCurrent = "current"
	TenseFuture  = "future"
)

// Tense 该周相对now的时态
func Tense(yearWeek string, now time.Time) (string, error) {
	start, err := WeekStart(yearWeek)
	if err != nil {
		return "", err
	}
	end := start.AddDate(0, 0, 7)
	switch {
	case now.Before(start):
		return TenseFuture, nil
	case !now.Before(end):
		return TensePast, nil
	default:
		return TenseCurrent, nil
	}
}

// ParseClock 解析HH:MM
func ParseClock(clock string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", clock, err)
	}
	return t.Hour(), t.Minute(), nil
}

// mondayIndex 周一为0的星期序号
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}
