package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"github.com/gsfran/qmfg-tools/internal/pouching/repository"
	"github.com/gsfran/qmfg-tools/internal/pouching/timegrid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// PlacementWeeks 排程框架覆盖的周数，从now所在周起
const PlacementWeeks = 3

// ScheduleService 排程服务
// 落位结果持久化在工单上，看板视图只读已落位的时间段
type ScheduleService struct {
	workOrderRepo *repository.WorkOrderRepository
	calendar      *CalendarService
	catalog       *entity.MachineCatalog
	locks         *machineLocks
	logger        *zap.Logger
}

func NewScheduleService(
	workOrderRepo *repository.WorkOrderRepository,
	calendar *CalendarService,
	catalog *entity.MachineCatalog,
	logger *zap.Logger,
) *ScheduleService {
	return &ScheduleService{
		workOrderRepo: workOrderRepo,
		calendar:      calendar,
		catalog:       catalog,
		locks:         newMachineLocks(),
		logger:        logger,
	}
}

// ScheduleView 某机型族某周的排程看板
type ScheduleView struct {
	Family    string       `json:"family"`
	YearWeek  string       `json:"year_week"`
	PriorWeek string       `json:"prior_week"`
	NextWeek  string       `json:"next_week"`
	Tense     string       `json:"tense"`
	WeekStart time.Time    `json:"week_start"`
	Columns   []time.Time  `json:"columns"` // 当周全部开工槽位起点，升序
	Machines  []MachineRow `json:"machines"`
}

// MachineRow 看板中一台机台的行
type MachineRow struct {
	Machine entity.Machine     `json:"machine"`
	Active  bool               `json:"active"`
	Lots    []int              `json:"lots"` // 与Columns对齐，0为空闲
	Jobs    []entity.WorkOrder `json:"jobs"` // 该机台队列，按序
}

// BuildScheduleView 构建某机型族某周的排程看板
// 已配置但暂无机台的族返回空看板，未知族才报错
func (s *ScheduleService) BuildScheduleView(family, yearWeek string, now time.Time) (*ScheduleView, error) {
	if !s.catalog.HasFamily(family) {
		return nil, fmt.Errorf("未知机型族 %s: %w", family, ErrMachineNotFound)
	}
	machines := s.catalog.Family(family)

	weekStart, err := timegrid.WeekStart(yearWeek)
	if err != nil {
		return nil, err
	}
	ww, err := s.calendar.GetOrCreate(yearWeek)
	if err != nil {
		return nil, err
	}

	prior, _ := timegrid.PriorWeek(yearWeek)
	next, _ := timegrid.NextWeek(yearWeek)
	tense, _ := timegrid.Tense(yearWeek, now)

	view := &ScheduleView{
		Family:    family,
		YearWeek:  yearWeek,
		PriorWeek: prior,
		NextWeek:  next,
		Tense:     tense,
		WeekStart: weekStart,
		Columns:   s.calendar.OpenMask(ww, weekStart),
		Machines:  make([]MachineRow, 0, len(machines)),
	}
	if len(machines) == 0 {
		return view, nil
	}

	weekEnd, err := timegrid.WeekEnd(yearWeek)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(machines))
	for i, m := range machines {
		names[i] = m.ShortName
	}
	windowJobs, err := s.workOrderRepo.GetJobsInWindow(names, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("查询排程工单失败: %w", err)
	}
	byMachine := make(map[string][]entity.WorkOrder)
	for _, job := range windowJobs {
		if job.Machine != nil {
			byMachine[*job.Machine] = append(byMachine[*job.Machine], job)
		}
	}

	for _, m := range machines {
		jobs, err := s.workOrderRepo.GetJobsOnMachine(m.ShortName)
		if err != nil {
			return nil, fmt.Errorf("查询机台队列失败: %w", err)
		}
		row := MachineRow{
			Machine: m,
			Active:  ww.MachineActive(m.ShortName),
			Lots:    make([]int, len(view.Columns)),
			Jobs:    jobs,
		}
		for _, job := range byMachine[m.ShortName] {
			for i, col := range view.Columns {
				if !col.Before(*job.PouchingStartDT) && col.Before(*job.PouchingEndDT) {
					row.Lots[i] = job.LotNumber
				}
			}
		}
		view.Machines = append(view.Machines, row)
	}
	return view, nil
}

// RefreshMachine 重算一台机台的排程落位并写回
// 框架装不下队列时整台放弃，库中数据保持原样
func (s *ScheduleService) RefreshMachine(machine string, now time.Time) error {
	if _, ok := s.catalog.Get(machine); !ok {
		return fmt.Errorf("未知机台 %s: %w", machine, ErrMachineNotFound)
	}

	lock := s.locks.get(machine)
	lock.Lock()
	defer lock.Unlock()

	return s.refreshMachineLocked(machine, now)
}

func (s *ScheduleService) refreshMachineLocked(machine string, now time.Time) error {
	frame, err := s.buildPlacementFrame(now)
	if err != nil {
		return err
	}

	jobs, err := s.workOrderRepo.GetJobsOnMachine(machine)
	if err != nil {
		return fmt.Errorf("查询机台队列失败: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	ptrs := make([]*entity.WorkOrder, len(jobs))
	for i := range jobs {
		ptrs[i] = &jobs[i]
	}

	if err := placeJobs(frame, ptrs, now); err != nil {
		if errors.Is(err, ErrHorizonExceeded) {
			s.logger.Warn("placement horizon exceeded, machine left unscheduled",
				zap.String("machine", machine), zap.Error(err))
		}
		return err
	}

	if err := s.workOrderRepo.SaveAll(ptrs); err != nil {
		return fmt.Errorf("写回排程失败: %w", err)
	}
	s.logger.Info("machine schedule refreshed",
		zap.String("machine", machine), zap.Int("jobs", len(ptrs)))
	return nil
}

// RefreshFamily 重算某机型族的全部机台
// 单台超框架不影响其余机台落位，超框架错误带批号汇总返回
func (s *ScheduleService) RefreshFamily(family string, now time.Time) error {
	if !s.catalog.HasFamily(family) {
		return fmt.Errorf("未知机型族 %s: %w", family, ErrMachineNotFound)
	}
	var horizonErrs []error
	for _, m := range s.catalog.Family(family) {
		if err := s.RefreshMachine(m.ShortName, now); err != nil {
			if errors.Is(err, ErrHorizonExceeded) {
				horizonErrs = append(horizonErrs, fmt.Errorf("%s: %w", m.ShortName, err))
				continue
			}
			return err
		}
	}
	return errors.Join(horizonErrs...)
}

// RefreshAll 重算全部机台，超框架错误汇总返回
func (s *ScheduleService) RefreshAll(now time.Time) error {
	var horizonErrs []error
	for _, family := range s.catalog.Families() {
		if err := s.RefreshFamily(family, now); err != nil {
			if errors.Is(err, ErrHorizonExceeded) {
				horizonErrs = append(horizonErrs, err)
				continue
			}
			return err
		}
	}
	return errors.Join(horizonErrs...)
}

// buildPlacementFrame 从now所在周起拼3周的开工框架
func (s *ScheduleService) buildPlacementFrame(now time.Time) ([]Slot, error) {
	yearWeek := timegrid.FormatYearWeek(now)
	masks := make([][]time.Time, 0, PlacementWeeks)
	for i := 0; i < PlacementWeeks; i++ {
		ww, err := s.calendar.GetOrCreate(yearWeek)
		if err != nil {
			return nil, err
		}
		weekStart, err := timegrid.WeekStart(yearWeek)
		if err != nil {
			return nil, err
		}
		masks = append(masks, s.calendar.OpenMask(ww, weekStart))
		yearWeek, err = timegrid.NextWeek(yearWeek)
		if err != nil {
			return nil, err
		}
	}
	return buildFrame(masks...), nil
}

// ExportWeek 导出某机型族某周的排程为Excel
func (s *ScheduleService) ExportWeek(family, yearWeek string, now time.Time) (*excelize.File, string, error) {
	view, err := s.BuildScheduleView(family, yearWeek, now)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Schedule"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	f.SetCellValue(sheet, "A1", "Machine")
	f.SetCellStyle(sheet, "A1", "A1", boldStyle)
	for i, col := range view.Columns {
		name, _ := excelize.ColumnNumberToName(i + 2)
		cell := name + "1"
		f.SetCellValue(sheet, cell, col.Format("Mon 15:04"))
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for rowIdx, row := range view.Machines {
		r := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", r), row.Machine.Name)
		for i, lot := range row.Lots {
			if lot == 0 {
				continue
			}
			name, _ := excelize.ColumnNumberToName(i + 2)
			f.SetCellValue(sheet, fmt.Sprintf("%s%d", name, r), lot)
		}
	}

	f.SetColWidth(sheet, "A", "A", 18)

	filename := fmt.Sprintf("Schedule_%s_%s.xlsx", family, yearWeek)
	return f, filename, nil
}
