package service

import (
	"fmt"
	"time"

	"github.com/gsfran/qmfg-tools/internal/config"
	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"github.com/gsfran/qmfg-tools/internal/pouching/repository"
	"github.com/gsfran/qmfg-tools/internal/pouching/timegrid"
	"go.uber.org/zap"
)

// CalendarService 生产周历服务
// 周记录按需建档：首次访问某周时用配置的默认模板落库
type CalendarService struct {
	workWeekRepo *repository.WorkWeekRepository
	scheduleCfg  config.ScheduleConfig
	catalog      *entity.MachineCatalog
	logger       *zap.Logger
}

func NewCalendarService(
	workWeekRepo *repository.WorkWeekRepository,
	scheduleCfg config.ScheduleConfig,
	catalog *entity.MachineCatalog,
	logger *zap.Logger,
) *CalendarService {
	return &CalendarService{
		workWeekRepo: workWeekRepo,
		scheduleCfg:  scheduleCfg,
		catalog:      catalog,
		logger:       logger,
	}
}

var dayKeys = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// GetOrCreate 获取周记录，不存在则按默认模板建档
func (s *CalendarService) GetOrCreate(yearWeek string) (*entity.WorkWeek, error) {
	if _, err := timegrid.WeekStart(yearWeek); err != nil {
		return nil, err
	}

	ww, err := s.workWeekRepo.GetByYearWeek(yearWeek)
	if err == nil {
		return ww, nil
	}
	if err != repository.ErrNotFound {
		return nil, err
	}

	ww = s.buildDefault(yearWeek)
	if err := s.workWeekRepo.Create(ww); err != nil {
		// 并发建档时唯一索引冲突，重读即可
		if existing, err2 := s.workWeekRepo.GetByYearWeek(yearWeek); err2 == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("建档周记录失败: %w", err)
	}
	s.logger.Info("work week created from defaults", zap.String("year_week", yearWeek))
	return ww, nil
}

// buildDefault 由配置模板构造周记录
func (s *CalendarService) buildDefault(yearWeek string) *entity.WorkWeek {
	ww := &entity.WorkWeek{
		ID:       generateID(),
		YearWeek: yearWeek,
	}
	for wd, key := range dayKeys {
		tpl := s.scheduleCfg.Defaults[key]
		ww.SetDay(wd, entity.DayWindow{Scheduled: tpl.Scheduled, Start: tpl.Start, End: tpl.End})
	}
	active := entity.JSONB{}
	for _, family := range s.catalog.Families() {
		for _, m := range s.catalog.Family(family) {
			active[m.ShortName] = s.catalog.DefaultActive(m.ShortName)
		}
	}
	ww.MachinesActive = active
	return ww
}

// UpdateWeekReq 周排产更新请求
type UpdateWeekReq struct {
	Days     map[string]entity.DayWindow `json:"days" binding:"required"`
	Machines map[string]bool             `json:"machines"`
}

// UpdateWeek 人工调整某周排产，标记Customized
func (s *CalendarService) UpdateWeek(yearWeek string, req UpdateWeekReq) (*entity.WorkWeek, error) {
	ww, err := s.GetOrCreate(yearWeek)
	if err != nil {
		return nil, err
	}

	for wd, key := range dayKeys {
		win, ok := req.Days[key]
		if !ok {
			continue
		}
		if win.Scheduled {
			if err := validateWindow(win); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		}
		ww.SetDay(wd, win)
	}

	if req.Machines != nil {
		if ww.MachinesActive == nil {
			ww.MachinesActive = entity.JSONB{}
		}
		for sn, on := range req.Machines {
			if _, ok := s.catalog.Get(sn); !ok {
				return nil, fmt.Errorf("未知机台: %s", sn)
			}
			ww.MachinesActive[sn] = on
		}
	}

	ww.Customized = true
	if err := s.workWeekRepo.Save(ww); err != nil {
		return nil, fmt.Errorf("保存周记录失败: %w", err)
	}
	s.logger.Info("work week updated", zap.String("year_week", yearWeek))
	return ww, nil
}

// ReapplyDefaults 将当前默认模板套用到指定周起的全部已建档周
// 人工调整过（Customized）的周跳过
func (s *CalendarService) ReapplyDefaults(fromYearWeek string) (int, error) {
	if _, err := timegrid.WeekStart(fromYearWeek); err != nil {
		return 0, err
	}
	weeks, err := s.workWeekRepo.LaterThan(fromYearWeek)
	if err != nil {
		return 0, err
	}
	updated := 0
	for i := range weeks {
		ww := &weeks[i]
		if ww.Customized {
			continue
		}
		fresh := s.buildDefault(ww.YearWeek)
		fresh.ID = ww.ID
		fresh.CreatedAt = ww.CreatedAt
		if err := s.workWeekRepo.Save(fresh); err != nil {
			return updated, fmt.Errorf("保存周记录失败: %w", err)
		}
		updated++
	}
	s.logger.Info("defaults reapplied",
		zap.String("from", fromYearWeek), zap.Int("updated", updated))
	return updated, nil
}

// OpenMask 该周全部开工槽位的起始时间，升序
// 未排产的天、窗口外的时段不产生槽位
func (s *CalendarService) OpenMask(ww *entity.WorkWeek, weekStart time.Time) []time.Time {
	var mask []time.Time
	for d := 0; d < 7; d++ {
		day := weekStart.AddDate(0, 0, d)
		win := ww.Day(day.Weekday())
		if !win.Scheduled {
			continue
		}
		sh, sm, err := timegrid.ParseClock(win.Start)
		if err != nil {
			s.logger.Warn("malformed work week window, day skipped",
				zap.String("year_week", ww.YearWeek),
				zap.String("weekday", day.Weekday().String()),
				zap.String("start", win.Start), zap.Error(err))
			continue
		}
		eh, em, err := timegrid.ParseClock(win.End)
		if err != nil {
			s.logger.Warn("malformed work week window, day skipped",
				zap.String("year_week", ww.YearWeek),
				zap.String("weekday", day.Weekday().String()),
				zap.String("end", win.End), zap.Error(err))
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, day.Location())
		end := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, day.Location())
		for t := timegrid.Snap(start); t.Before(end); t = t.Add(timegrid.GridPeriod) {
			mask = append(mask, t)
		}
	}
	return mask
}

func validateWindow(win entity.DayWindow) error {
	sh, sm, err := timegrid.ParseClock(win.Start)
	if err != nil {
		return err
	}
	eh, em, err := timegrid.ParseClock(win.End)
	if err != nil {
		return err
	}
	if eh*60+em <= sh*60+sm {
		return fmt.Errorf("收工时间必须晚于开工时间")
	}
	return nil
}
