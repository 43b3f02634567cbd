package repository

import (
	"errors"
	"time"

	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"gorm.io/gorm"
)

type WorkOrderRepository struct {
	db *gorm.DB
}

func NewWorkOrderRepository(db *gorm.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

func (r *WorkOrderRepository) Create(wo *entity.WorkOrder) error {
	return r.db.Create(wo).Error
}

func (r *WorkOrderRepository) GetByID(id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.Where("id = ?", id).First(&wo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &wo, err
}

func (r *WorkOrderRepository) GetByLotNumber(lotNumber int) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.Where("lot_number = ?", lotNumber).First(&wo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &wo, err
}

// GetParkingLot 停放区全部工单，按创建时间排列
func (r *WorkOrderRepository) GetParkingLot() ([]entity.WorkOrder, error) {
	var wos []entity.WorkOrder
	err := r.db.Where("status = ?", entity.StatusParkingLot).
		Order("created_at ASC").Find(&wos).Error
	return wos, err
}

// GetJobsOnMachine 某机台的在制与排队工单，按队列序号排列
func (r *WorkOrderRepository) GetJobsOnMachine(machine string) ([]entity.WorkOrder, error) {
	var wos []entity.WorkOrder
	err := r.db.Where("machine = ? AND status IN ?", machine,
		[]string{entity.StatusPouching, entity.StatusQueued}).
		Order("priority ASC").Find(&wos).Error
	return wos, err
}

// GetJobsInWindow 排程时间段与[start, end)有交叠的工单，按开始时间排列
func (r *WorkOrderRepository) GetJobsInWindow(machines []string, start, end time.Time) ([]entity.WorkOrder, error) {
	var wos []entity.WorkOrder
	err := r.db.Where("machine IN ? AND status IN ?", machines,
		[]string{entity.StatusPouching, entity.StatusQueued}).
		Where("pouching_start_dt < ? AND pouching_end_dt > ?", end, start).
		Order("pouching_start_dt ASC").Find(&wos).Error
	return wos, err
}

type WOListParams struct {
	Status  string
	Machine string
	Keyword string
	Page    int
	Size    int
}

func (r *WorkOrderRepository) List(params WOListParams) ([]entity.WorkOrder, int64, error) {
	query := r.db.Model(&entity.WorkOrder{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Machine != "" {
		query = query.Where("machine = ?", params.Machine)
	}
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("product ILIKE ? OR product_name ILIKE ? OR lot_id ILIKE ?", kw, kw, kw)
	}
	var total int64
	query.Count(&total)
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 20
	}
	var wos []entity.WorkOrder
	err := query.Order("created_at DESC").
		Offset((params.Page - 1) * params.Size).Limit(params.Size).Find(&wos).Error
	return wos, total, err
}

func (r *WorkOrderRepository) Save(wo *entity.WorkOrder) error {
	return r.db.Save(wo).Error
}

// SaveAll 批量保存，排程刷新一次写回整条队列
func (r *WorkOrderRepository) SaveAll(wos []*entity.WorkOrder) error {
	if len(wos) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, wo := range wos {
			if err := tx.Save(wo).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *WorkOrderRepository) Delete(id string) error {
	return r.db.Delete(&entity.WorkOrder{}, "id = ?", id).Error
}

// DB 返回底层db用于事务
func (r *WorkOrderRepository) DB() *gorm.DB {
	return r.db
}
