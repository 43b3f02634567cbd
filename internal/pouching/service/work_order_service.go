package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"github.com/gsfran/qmfg-tools/internal/pouching/repository"
	"go.uber.org/zap"
)

// WorkOrderService 工单服务
type WorkOrderService struct {
	workOrderRepo *repository.WorkOrderRepository
	schedule      *ScheduleService
	logger        *zap.Logger
}

func NewWorkOrderService(
	workOrderRepo *repository.WorkOrderRepository,
	schedule *ScheduleService,
	logger *zap.Logger,
) *WorkOrderService {
	return &WorkOrderService{
		workOrderRepo: workOrderRepo,
		schedule:      schedule,
		logger:        logger,
	}
}

// CreateWorkOrderReq 建单请求
type CreateWorkOrderReq struct {
	Product        string `json:"product" binding:"required"`
	ProductName    string `json:"product_name" binding:"required"`
	ShortName      string `json:"short_name" binding:"required"`
	ItemNumber     string `json:"item_number" binding:"required"`
	LotID          string `json:"lot_id" binding:"required"`
	LotNumber      int    `json:"lot_number" binding:"required"`
	StripLotNumber int    `json:"strip_lot_number"`
	StripQty       int    `json:"strip_qty" binding:"required,gt=0"`
	StandardRate   int    `json:"standard_rate" binding:"required,gt=0"`
}

// Create 新建工单，落在停放区
func (s *WorkOrderService) Create(req CreateWorkOrderReq) (*entity.WorkOrder, error) {
	if _, err := s.workOrderRepo.GetByLotNumber(req.LotNumber); err == nil {
		return nil, fmt.Errorf("批号 %d 已存在", req.LotNumber)
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	wo := &entity.WorkOrder{
		ID:             generateID(),
		Product:        req.Product,
		ProductName:    req.ProductName,
		ShortName:      req.ShortName,
		ItemNumber:     req.ItemNumber,
		LotID:          req.LotID,
		LotNumber:      req.LotNumber,
		StripLotNumber: req.StripLotNumber,
		StripQty:       req.StripQty,
		StandardRate:   req.StandardRate,
		Status:         entity.StatusParkingLot,
	}
	wo.RemainingQty, wo.RemainingTime = wo.Remaining()
	wo.AppendLog("Created.")

	if err := s.workOrderRepo.Create(wo); err != nil {
		return nil, fmt.Errorf("创建工单失败: %w", err)
	}
	s.logger.Info("work order created",
		zap.Int("lot", wo.LotNumber), zap.String("product", wo.Product))
	return wo, nil
}

// GetByLotNumber 按批号查工单
func (s *WorkOrderService) GetByLotNumber(lotNumber int) (*entity.WorkOrder, error) {
	wo, err := s.workOrderRepo.GetByLotNumber(lotNumber)
	if err == repository.ErrNotFound {
		return nil, fmt.Errorf("工单不存在: %w", ErrJobNotFound)
	}
	return wo, err
}

// List 分页查询工单
func (s *WorkOrderService) List(params repository.WOListParams) ([]entity.WorkOrder, int64, error) {
	return s.workOrderRepo.List(params)
}

// ParkingLot 停放区工单列表
func (s *WorkOrderService) ParkingLot() ([]entity.WorkOrder, error) {
	return s.workOrderRepo.GetParkingLot()
}

// Delete 删除工单，只允许删停放区的
func (s *WorkOrderService) Delete(lotNumber int) error {
	wo, err := s.GetByLotNumber(lotNumber)
	if err != nil {
		return err
	}
	if wo.Status != entity.StatusParkingLot {
		return fmt.Errorf("工单状态 %s 不允许删除，请先撤回停放区", wo.Status)
	}
	if err := s.workOrderRepo.Delete(wo.ID); err != nil {
		return fmt.Errorf("删除工单失败: %w", err)
	}
	s.logger.Info("work order deleted", zap.Int("lot", lotNumber))
	return nil
}

// ReportProductionReq 报产请求
type ReportProductionReq struct {
	Qty int `json:"qty" binding:"required,gt=0"`
}

// ReportProduction 录入报产数量并重算该机台排程
func (s *WorkOrderService) ReportProduction(lotNumber int, req ReportProductionReq) (*entity.WorkOrder, error) {
	wo, err := s.GetByLotNumber(lotNumber)
	if err != nil {
		return nil, err
	}
	if wo.Status != entity.StatusPouching {
		return nil, fmt.Errorf("工单状态 %s 不允许报产", wo.Status)
	}

	wo.PouchedQty += req.Qty
	wo.RemainingQty, wo.RemainingTime = wo.Remaining()
	wo.AppendLog("Production reported: %d (total %d).", req.Qty, wo.PouchedQty)

	if err := s.workOrderRepo.Save(wo); err != nil {
		return nil, fmt.Errorf("保存工单失败: %w", err)
	}
	s.logger.Info("production reported",
		zap.Int("lot", lotNumber), zap.Int("qty", req.Qty), zap.Int("total", wo.PouchedQty))

	if wo.Machine != nil {
		if err := s.schedule.RefreshMachine(*wo.Machine, time.Now()); err != nil {
			s.logger.Warn("schedule refresh after production report failed",
				zap.String("machine", *wo.Machine), zap.Error(err))
			if errors.Is(err, ErrHorizonExceeded) {
				return wo, fmt.Errorf("报产已记录，但排程超出落位框架: %w", err)
			}
			return wo, err
		}
	}
	return wo, nil
}
