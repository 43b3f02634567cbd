package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gsfran/qmfg-tools/internal/pouching/repository"
	"github.com/gsfran/qmfg-tools/internal/pouching/service"
)

// WorkOrderHandler 工单与机台队列处理器
type WorkOrderHandler struct {
	workOrderSvc *service.WorkOrderService
	queueSvc     *service.QueueService
}

func NewWorkOrderHandler(workOrderSvc *service.WorkOrderService, queueSvc *service.QueueService) *WorkOrderHandler {
	return &WorkOrderHandler{workOrderSvc: workOrderSvc, queueSvc: queueSvc}
}

// Create POST /work-orders
func (h *WorkOrderHandler) Create(c *gin.Context) {
	var req service.CreateWorkOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	wo, err := h.workOrderSvc.Create(req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Created(c, wo)
}

// List GET /work-orders
func (h *WorkOrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	params := repository.WOListParams{
		Status:  c.Query("status"),
		Machine: c.Query("machine"),
		Keyword: c.Query("keyword"),
		Page:    page,
		Size:    pageSize,
	}

	items, total, err := h.workOrderSvc.List(params)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// ParkingLot GET /work-orders/parking-lot
func (h *WorkOrderHandler) ParkingLot(c *gin.Context) {
	wos, err := h.workOrderSvc.ParkingLot()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, wos)
}

// Get GET /work-orders/:lot
func (h *WorkOrderHandler) Get(c *gin.Context) {
	lot, ok := LotNumberParam(c)
	if !ok {
		return
	}
	wo, err := h.workOrderSvc.GetByLotNumber(lot)
	if err != nil {
		NotFound(c, err.Error())
		return
	}
	Success(c, wo)
}

// Delete DELETE /work-orders/:lot
func (h *WorkOrderHandler) Delete(c *gin.Context) {
	lot, ok := LotNumberParam(c)
	if !ok {
		return
	}
	if err := h.workOrderSvc.Delete(lot); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			NotFound(c, err.Error())
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Success(c, gin.H{"deleted": true})
}

// Load POST /work-orders/:lot/load
func (h *WorkOrderHandler) Load(c *gin.Context) {
	lot, ok := LotNumberParam(c)
	if !ok {
		return
	}
	var req service.LoadJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	wo, err := h.queueSvc.LoadJob(lot, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound), errors.Is(err, service.ErrMachineNotFound):
			NotFound(c, err.Error())
		case errors.Is(err, service.ErrInvalidMode):
			BadRequest(c, err.Error())
		case errors.Is(err, service.ErrInvariantViolation), errors.Is(err, service.ErrHorizonExceeded):
			// 超框架时队列变更已生效，只是排程未能落位
			Conflict(c, err.Error())
		default:
			BadRequest(c, err.Error())
		}
		return
	}
	Success(c, wo)
}

// Unload POST /work-orders/:lot/unload
func (h *WorkOrderHandler) Unload(c *gin.Context) {
	lot, ok := LotNumberParam(c)
	if !ok {
		return
	}
	wo, err := h.queueSvc.UnloadJob(lot)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			NotFound(c, err.Error())
		case errors.Is(err, service.ErrHorizonExceeded):
			Conflict(c, err.Error())
		default:
			BadRequest(c, err.Error())
		}
		return
	}
	Success(c, wo)
}

// Close POST /work-orders/:lot/close
func (h *WorkOrderHandler) Close(c *gin.Context) {
	lot, ok := LotNumberParam(c)
	if !ok {
		return
	}
	wo, err := h.queueSvc.CloseJob(lot)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			NotFound(c, err.Error())
		case errors.Is(err, service.ErrHorizonExceeded):
			Conflict(c, err.Error())
		default:
			BadRequest(c, err.Error())
		}
		return
	}
	Success(c, wo)
}

// ReportProduction POST /work-orders/:lot/production
func (h *WorkOrderHandler) ReportProduction(c *gin.Context) {
	lot, ok := LotNumberParam(c)
	if !ok {
		return
	}
	var req service.ReportProductionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	wo, err := h.workOrderSvc.ReportProduction(lot, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			NotFound(c, err.Error())
		case errors.Is(err, service.ErrHorizonExceeded):
			Conflict(c, err.Error())
		default:
			BadRequest(c, err.Error())
		}
		return
	}
	Success(c, wo)
}
