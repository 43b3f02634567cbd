package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB JSONB字段类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// WorkWeek 一个生产周的排产配置，按ISO年-周编号
// 首次访问某周时由默认模板自动建档
type WorkWeek struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	YearWeek string `json:"year_week" gorm:"size:8;uniqueIndex;not null"`

	// 人工调整过的周在批量改排产策略时跳过
	Customized bool `json:"customized" gorm:"default:false"`

	MonScheduled bool `json:"mon_scheduled" gorm:"default:false"`
	TueScheduled bool `json:"tue_scheduled" gorm:"default:false"`
	WedScheduled bool `json:"wed_scheduled" gorm:"default:false"`
	ThuScheduled bool `json:"thu_scheduled" gorm:"default:false"`
	FriScheduled bool `json:"fri_scheduled" gorm:"default:false"`
	SatScheduled bool `json:"sat_scheduled" gorm:"default:false"`
	SunScheduled bool `json:"sun_scheduled" gorm:"default:false"`

	// 开工/收工时间，HH:MM
	MonStartTime string `json:"mon_start_time" gorm:"size:5"`
	TueStartTime string `json:"tue_start_time" gorm:"size:5"`
	WedStartTime string `json:"wed_start_time" gorm:"size:5"`
	ThuStartTime string `json:"thu_start_time" gorm:"size:5"`
	FriStartTime string `json:"fri_start_time" gorm:"size:5"`
	SatStartTime string `json:"sat_start_time" gorm:"size:5"`
	SunStartTime string `json:"sun_start_time" gorm:"size:5"`

	MonEndTime string `json:"mon_end_time" gorm:"size:5"`
	TueEndTime string `json:"tue_end_time" gorm:"size:5"`
	WedEndTime string `json:"wed_end_time" gorm:"size:5"`
	ThuEndTime string `json:"thu_end_time" gorm:"size:5"`
	FriEndTime string `json:"fri_end_time" gorm:"size:5"`
	SatEndTime string `json:"sat_end_time" gorm:"size:5"`
	SunEndTime string `json:"sun_end_time" gorm:"size:5"`

	// 机台启用标记，short_name → bool，机台目录来自配置
	MachinesActive JSONB `json:"machines_active" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WorkWeek) TableName() string {
	return "work_weeks"
}

// DayWindow 某个星期几的排产窗口
type DayWindow struct {
	Scheduled bool   `json:"scheduled"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// Day 返回指定星期几的排产窗口，weekday为time.Weekday
func (w *WorkWeek) Day(weekday time.Weekday) DayWindow {
	switch weekday {
	case time.Monday:
		return DayWindow{w.MonScheduled, w.MonStartTime, w.MonEndTime}
	case time.Tuesday:
		return DayWindow{w.TueScheduled, w.TueStartTime, w.TueEndTime}
	case time.Wednesday:
		return DayWindow{w.WedScheduled, w.WedStartTime, w.WedEndTime}
	case time.Thursday:
		return DayWindow{w.ThuScheduled, w.ThuStartTime, w.ThuEndTime}
	case time.Friday:
		return DayWindow{w.FriScheduled, w.FriStartTime, w.FriEndTime}
	case time.Saturday:
		return DayWindow{w.SatScheduled, w.SatStartTime, w.SatEndTime}
	default:
		return DayWindow{w.SunScheduled, w.SunStartTime, w.SunEndTime}
	}
}

// SetDay 更新指定星期几的排产窗口
func (w *WorkWeek) SetDay(weekday time.Weekday, win DayWindow) {
	switch weekday {
	case time.Monday:
		w.MonScheduled, w.MonStartTime, w.MonEndTime = win.Scheduled, win.Start, win.End
	case time.Tuesday:
		w.TueScheduled, w.TueStartTime, w.TueEndTime = win.Scheduled, win.Start, win.End
	case time.Wednesday:
		w.WedScheduled, w.WedStartTime, w.WedEndTime = win.Scheduled, win.Start, win.End
	case time.Thursday:
		w.ThuScheduled, w.ThuStartTime, w.ThuEndTime = win.Scheduled, win.Start, win.End
	case time.Friday:
		w.FriScheduled, w.FriStartTime, w.FriEndTime = win.Scheduled, win.Start, win.End
	case time.Saturday:
		w.SatScheduled, w.SatStartTime, w.SatEndTime = win.Scheduled, win.Start, win.End
	default:
		w.SunScheduled, w.SunStartTime, w.SunEndTime = win.Scheduled, win.Start, win.End
	}
}

// MachineActive 机台当周是否启用，未记录的机台视为停用
func (w *WorkWeek) MachineActive(shortName string) bool {
	if w.MachinesActive == nil {
		return false
	}
	v, ok := w.MachinesActive[shortName]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
