package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gsfran/qmfg-tools/internal/pouching/service"
	"github.com/gsfran/qmfg-tools/internal/pouching/timegrid"
)

// ScheduleHandler 排程看板与周历处理器
type ScheduleHandler struct {
	scheduleSvc *service.ScheduleService
	calendarSvc *service.CalendarService
}

func NewScheduleHandler(scheduleSvc *service.ScheduleService, calendarSvc *service.CalendarService) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc, calendarSvc: calendarSvc}
}

// GetSchedule GET /schedules/:family/:yearWeek
// yearWeek为空时取当前周
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	family := c.Param("family")
	yearWeek := c.Param("yearWeek")
	if yearWeek == "" {
		yearWeek = timegrid.CurrentYearWeek()
	}

	view, err := h.scheduleSvc.BuildScheduleView(family, yearWeek, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrMachineNotFound) {
			NotFound(c, err.Error())
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Success(c, view)
}

// RefreshSchedules POST /schedules/refresh
// 重算全部机台落位，单台超框架不影响其余机台，超框架的批号以409带回
func (h *ScheduleHandler) RefreshSchedules(c *gin.Context) {
	if err := h.scheduleSvc.RefreshAll(time.Now()); err != nil {
		if errors.Is(err, service.ErrHorizonExceeded) {
			Conflict(c, err.Error())
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"refreshed": true})
}

// RefreshFamily POST /schedules/:family/refresh
func (h *ScheduleHandler) RefreshFamily(c *gin.Context) {
	if err := h.scheduleSvc.RefreshFamily(c.Param("family"), time.Now()); err != nil {
		switch {
		case errors.Is(err, service.ErrMachineNotFound):
			NotFound(c, err.Error())
		case errors.Is(err, service.ErrHorizonExceeded):
			Conflict(c, err.Error())
		default:
			InternalError(c, err.Error())
		}
		return
	}
	Success(c, gin.H{"refreshed": true})
}

// ExportSchedule GET /schedules/:family/:yearWeek/export
func (h *ScheduleHandler) ExportSchedule(c *gin.Context) {
	family := c.Param("family")
	yearWeek := c.Param("yearWeek")

	f, filename, err := h.scheduleSvc.ExportWeek(family, yearWeek, time.Now())
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}

// GetWorkWeek GET /schedules/weeks/:yearWeek
func (h *ScheduleHandler) GetWorkWeek(c *gin.Context) {
	ww, err := h.calendarSvc.GetOrCreate(c.Param("yearWeek"))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, ww)
}

// UpdateWorkWeek PUT /schedules/weeks/:yearWeek
func (h *ScheduleHandler) UpdateWorkWeek(c *gin.Context) {
	var req service.UpdateWeekReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	ww, err := h.calendarSvc.UpdateWeek(c.Param("yearWeek"), req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	// 排产窗口变了，重算落位
	if err := h.scheduleSvc.RefreshAll(time.Now()); err != nil {
		if errors.Is(err, service.ErrHorizonExceeded) {
			Conflict(c, err.Error())
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, ww)
}

// ReapplyDefaultsReq 批量套用默认模板请求
type ReapplyDefaultsReq struct {
	From string `json:"from" binding:"required"`
}

// ReapplyDefaults POST /schedules/weeks/reapply-defaults
// 人工调整过的周不受影响
func (h *ScheduleHandler) ReapplyDefaults(c *gin.Context) {
	var req ReapplyDefaultsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	updated, err := h.calendarSvc.ReapplyDefaults(req.From)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	if err := h.scheduleSvc.RefreshAll(time.Now()); err != nil {
		if errors.Is(err, service.ErrHorizonExceeded) {
			Conflict(c, err.Error())
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"updated": updated})
}
