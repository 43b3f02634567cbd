package service

import (
	"fmt"
	"time"

	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"github.com/gsfran/qmfg-tools/internal/pouching/timegrid"
)

// Slot 排程框架中的一个时间槽
// Lot为0表示空闲
type Slot struct {
	Start time.Time
	Lot   int
}

// buildFrame 把若干周的开工掩码拼成一条连续的排程框架
func buildFrame(masks ...[]time.Time) []Slot {
	size := 0
	for _, m := range masks {
		size += len(m)
	}
	frame := make([]Slot, 0, size)
	for _, m := range masks {
		for _, t := range m {
			frame = append(frame, Slot{Start: t})
		}
	}
	return frame
}

// placeJobs 按队列顺序把工单铺进排程框架
//
// 规则：
//   - 剩余数量与剩余工时在落位前按已报产数量重算
//   - 在制工单保留实际开始时间，排队工单的开始时间取首个可用槽位
//   - 占用槽位数 = 剩余工时 × 每小时槽位数，结束时间为末槽位起点加一个网格宽度
//   - 已过去的槽位不再占用，落位从now所在网格列开始
//
// 框架装不下任何一个工单即返回ErrHorizonExceeded，
// 调用方对该机台整体放弃本轮落位，不得部分写回。
func placeJobs(frame []Slot, jobs []*entity.WorkOrder, now time.Time) error {
	floor := timegrid.Snap(now)
	cursor := 0
	for cursor < len(frame) && frame[cursor].Start.Before(floor) {
		cursor++
	}

	for _, job := range jobs {
		qty, hours := job.Remaining()
		job.RemainingQty, job.RemainingTime = qty, hours
		need := hours * timegrid.ColsPerHour

		if need == 0 {
			// 报产已覆盖订单数量，不占槽位，待关单
			if job.PouchingStartDT == nil {
				job.PouchingStartDT = &floor
			}
			job.PouchingEndDT = &floor
			continue
		}

		if cursor+need > len(frame) {
			return fmt.Errorf("lot %d needs %d slots, %d available: %w",
				job.LotNumber, need, len(frame)-cursor, ErrHorizonExceeded)
		}

		if job.Status == entity.StatusPouching && job.PouchingStartDT != nil {
			// 在制工单已开工，开始时间不随刷新漂移
		} else {
			start := frame[cursor].Start
			job.PouchingStartDT = &start
		}

		for i := 0; i < need; i++ {
			frame[cursor].Lot = job.LotNumber
			cursor++
		}
		end := frame[cursor-1].Start.Add(timegrid.GridPeriod)
		job.PouchingEndDT = &end
	}
	return nil
}
