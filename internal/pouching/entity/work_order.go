package entity

import (
	"fmt"
	"time"
)

// 工单状态
const (
	StatusParkingLot = "Parking Lot" // 停放区，未分配机台
	StatusQueued     = "Queued"      // 已排队
	StatusPouching   = "Pouching"    // 生产中，机台队列首位
	StatusClosed     = "Closed"      // 已关闭，终态
)

// ValidStatusTransitions 合法的工单状态流转
var ValidStatusTransitions = map[string][]string{
	StatusParkingLot: {StatusQueued, StatusPouching, StatusClosed},
	StatusQueued:     {StatusPouching, StatusParkingLot, StatusClosed},
	StatusPouching:   {StatusParkingLot, StatusClosed},
}

// CanTransition 状态流转是否合法，终态无出边
func CanTransition(from, to string) bool {
	for _, next := range ValidStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// WorkOrder 制袋工单（一个批次）
type WorkOrder struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	Product     string `json:"product" gorm:"size:30;not null"`
	ProductName string `json:"product_name" gorm:"size:30;not null"`
	ShortName   string `json:"short_name" gorm:"size:10;not null"`
	ItemNumber  string `json:"item_number" gorm:"size:30;not null"`

	LotID          string `json:"lot_id" gorm:"size:5;not null"`
	LotNumber      int    `json:"lot_number" gorm:"uniqueIndex;not null"`
	StripLotNumber int    `json:"strip_lot_number" gorm:"index"`

	StripQty     int `json:"strip_qty"`     // 订单条数
	StandardRate int `json:"standard_rate"` // 标准速率（条/小时）

	Status string `json:"status" gorm:"size:30;default:'Parking Lot'"`

	Machine  *string `json:"machine" gorm:"size:20"` // 机台short_name，停放区为空
	Priority *int    `json:"priority"`               // 队列序号，0为当前生产工单

	PouchingStartDT *time.Time `json:"pouching_start_dt"`
	PouchingEndDT   *time.Time `json:"pouching_end_dt"`
	LoadDT          *time.Time `json:"load_dt"`

	PouchedQty    int `json:"pouched_qty" gorm:"not null;default:0"` // 已完成数量，由报产写入
	RemainingQty  int `json:"remaining_qty" gorm:"not null"`
	RemainingTime int `json:"remaining_time" gorm:"not null"` // 剩余工时（小时，向上取整）

	Log string `json:"log" gorm:"type:text"` // 只追加的操作日志

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WorkOrder) TableName() string {
	return "work_orders"
}

// AppendLog 追加一行操作日志
func (w *WorkOrder) AppendLog(format string, args ...interface{}) {
	w.Log += fmt.Sprintf("%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
}

// Park 移入停放区，清空机台、队列与排程时间
func (w *WorkOrder) Park() {
	w.Machine = nil
	w.Priority = nil
	w.Status = StatusParkingLot
	w.LoadDT = nil
	w.PouchingStartDT = nil
	w.PouchingEndDT = nil
	w.AppendLog("Moved to Parking Lot.")
}

// Close 关闭工单，终态
func (w *WorkOrder) Close() {
	now := time.Now()
	w.Priority = nil
	w.Status = StatusClosed
	w.PouchingEndDT = &now
	w.AppendLog("Closed.")
}

// Remaining 按当前已完成数量重算剩余数量与剩余工时
// 每次排程刷新都会调用，不信任库里的旧值
func (w *WorkOrder) Remaining() (qty, hours int) {
	qty = w.StripQty - w.PouchedQty
	if qty < 0 {
		qty = 0
	}
	if w.StandardRate > 0 {
		hours = (qty + w.StandardRate - 1) / w.StandardRate
	}
	return qty, hours
}
