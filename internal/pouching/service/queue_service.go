package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"github.com/gsfran/qmfg-tools/internal/pouching/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 装载模式
const (
	ModeReplace = "replace" // 顶替当前在制工单，被顶替者回停放区
	ModeInsert  = "insert"  // 插入队列首位（在制工单之后）
	ModeAppend  = "append"  // 追加到队尾
	ModeCustom  = "custom"  // 按期望开始时间找插入位
)

// QueueService 机台队列服务
// 所有队列变更按机台串行，变更落库后立即重算该机台排程
type QueueService struct {
	workOrderRepo *repository.WorkOrderRepository
	schedule      *ScheduleService
	catalog       *entity.MachineCatalog
	db            *gorm.DB
	logger        *zap.Logger
}

func NewQueueService(
	workOrderRepo *repository.WorkOrderRepository,
	schedule *ScheduleService,
	catalog *entity.MachineCatalog,
	db *gorm.DB,
	logger *zap.Logger,
) *QueueService {
	return &QueueService{
		workOrderRepo: workOrderRepo,
		schedule:      schedule,
		catalog:       catalog,
		db:            db,
		logger:        logger,
	}
}

// LoadJobReq 装载请求
type LoadJobReq struct {
	Machine string     `json:"machine" binding:"required"`
	Mode    string     `json:"mode" binding:"required"`
	StartDT *time.Time `json:"start_dt"` // custom模式的期望开始时间
}

// LoadJob 把停放区工单装载到机台队列
func (s *QueueService) LoadJob(lotNumber int, req LoadJobReq) (*entity.WorkOrder, error) {
	machine, ok := s.catalog.Get(req.Machine)
	if !ok {
		return nil, fmt.Errorf("未知机台 %s: %w", req.Machine, ErrMachineNotFound)
	}

	job, err := s.workOrderRepo.GetByLotNumber(lotNumber)
	if err != nil {
		return nil, fmt.Errorf("工单不存在: %w", ErrJobNotFound)
	}
	if !entity.CanTransition(job.Status, entity.StatusQueued) {
		return nil, fmt.Errorf("工单状态 %s 不允许装载", job.Status)
	}
	if req.Mode == ModeCustom && req.StartDT == nil {
		return nil, fmt.Errorf("custom模式需要期望开始时间: %w", ErrInvalidMode)
	}

	lock := s.schedule.locks.get(machine.ShortName)
	lock.Lock()
	defer lock.Unlock()

	queue, err := s.loadQueue(machine.ShortName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var parked *entity.WorkOrder

	switch req.Mode {
	case ModeAppend:
		queue = append(queue, job)
	case ModeInsert:
		queue = insertAt(queue, job, min(1, len(queue)))
	case ModeReplace:
		if len(queue) > 0 {
			parked = queue[0]
			parked.Park()
			queue = queue[1:]
		}
		queue = insertAt(queue, job, 0)
	case ModeCustom:
		// 期望开始时间只是排序提示：插在首个预计开始晚于它的
		// 排队工单之前，绝不排到在制工单之前
		pos := len(queue)
		for i, q := range queue {
			if i == 0 && q.Status == entity.StatusPouching {
				continue
			}
			if q.PouchingStartDT != nil && q.PouchingStartDT.After(*req.StartDT) {
				pos = i
				break
			}
		}
		queue = insertAt(queue, job, pos)
	default:
		return nil, fmt.Errorf("未知装载模式 %s: %w", req.Mode, ErrInvalidMode)
	}

	sn := machine.ShortName
	job.Machine = &sn
	job.Status = entity.StatusQueued
	job.LoadDT = &now
	job.AppendLog("Loaded to %s (%s mode).", machine.Name, req.Mode)

	if err := s.commitQueue(queue, parked, now); err != nil {
		return nil, err
	}
	s.logger.Info("job loaded",
		zap.Int("lot", lotNumber), zap.String("machine", sn), zap.String("mode", req.Mode))

	if err := s.refreshAfterMutation(sn, now); err != nil {
		return job, err
	}
	return job, nil
}

// UnloadJob 把工单撤回停放区，队列补位
func (s *QueueService) UnloadJob(lotNumber int) (*entity.WorkOrder, error) {
	job, err := s.workOrderRepo.GetByLotNumber(lotNumber)
	if err != nil {
		return nil, fmt.Errorf("工单不存在: %w", ErrJobNotFound)
	}
	if job.Machine == nil {
		return nil, fmt.Errorf("工单不在机台队列")
	}
	machine := *job.Machine

	lock := s.schedule.locks.get(machine)
	lock.Lock()
	defer lock.Unlock()

	queue, err := s.loadQueue(machine)
	if err != nil {
		return nil, err
	}

	remaining := queue[:0]
	var unloaded *entity.WorkOrder
	for _, q := range queue {
		if q.LotNumber == lotNumber {
			unloaded = q
			continue
		}
		remaining = append(remaining, q)
	}
	if unloaded == nil {
		return nil, fmt.Errorf("工单不存在: %w", ErrJobNotFound)
	}
	unloaded.Park()

	now := time.Now()
	if err := s.commitQueue(remaining, unloaded, now); err != nil {
		return nil, err
	}
	s.logger.Info("job unloaded", zap.Int("lot", lotNumber), zap.String("machine", machine))

	if err := s.refreshAfterMutation(machine, now); err != nil {
		return unloaded, err
	}
	return unloaded, nil
}

// CloseJob 关闭工单，终态
// 停放区、排队、在制的工单都可关闭；已装载的关闭后队列补位
func (s *QueueService) CloseJob(lotNumber int) (*entity.WorkOrder, error) {
	job, err := s.workOrderRepo.GetByLotNumber(lotNumber)
	if err != nil {
		return nil, fmt.Errorf("工单不存在: %w", ErrJobNotFound)
	}
	if !entity.CanTransition(job.Status, entity.StatusClosed) {
		return nil, fmt.Errorf("工单状态 %s 不允许关单", job.Status)
	}

	// 停放区工单不在任何队列，直接关闭
	if job.Machine == nil {
		job.Close()
		if err := s.workOrderRepo.Save(job); err != nil {
			return nil, fmt.Errorf("保存工单失败: %w", err)
		}
		s.logger.Info("job closed", zap.Int("lot", lotNumber))
		return job, nil
	}
	machine := *job.Machine

	lock := s.schedule.locks.get(machine)
	lock.Lock()
	defer lock.Unlock()

	queue, err := s.loadQueue(machine)
	if err != nil {
		return nil, err
	}

	remaining := queue[:0]
	var closed *entity.WorkOrder
	for _, q := range queue {
		if q.LotNumber == lotNumber {
			closed = q
			continue
		}
		remaining = append(remaining, q)
	}
	if closed == nil {
		return nil, fmt.Errorf("工单不存在: %w", ErrJobNotFound)
	}
	closed.Close()
	closed.Machine = nil

	now := time.Now()
	if err := s.commitQueue(remaining, closed, now); err != nil {
		return nil, err
	}
	s.logger.Info("job closed", zap.Int("lot", lotNumber), zap.String("machine", machine))

	if err := s.refreshAfterMutation(machine, now); err != nil {
		return closed, err
	}
	return closed, nil
}

// loadQueue 读出机台队列（按序）
func (s *QueueService) loadQueue(machine string) ([]*entity.WorkOrder, error) {
	jobs, err := s.workOrderRepo.GetJobsOnMachine(machine)
	if err != nil {
		return nil, fmt.Errorf("查询机台队列失败: %w", err)
	}
	ptrs := make([]*entity.WorkOrder, len(jobs))
	for i := range jobs {
		ptrs[i] = &jobs[i]
	}
	return ptrs, nil
}

// commitQueue 重排序号并校验不变式，与离队工单一并落库
func (s *QueueService) commitQueue(queue []*entity.WorkOrder, extra *entity.WorkOrder, now time.Time) error {
	resequence(queue, now)
	if err := checkQueueInvariant(queue); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, q := range queue {
			if err := tx.Save(q).Error; err != nil {
				return err
			}
		}
		if extra != nil {
			if err := tx.Save(extra).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// refreshAfterMutation 队列变更后重算该机台排程
// 队列变更本身已落库；超框架时把带批号的错误交回调用方
func (s *QueueService) refreshAfterMutation(machine string, now time.Time) error {
	if err := s.schedule.refreshMachineLocked(machine, now); err != nil {
		s.logger.Warn("schedule refresh after queue mutation failed",
			zap.String("machine", machine), zap.Error(err))
		if errors.Is(err, ErrHorizonExceeded) {
			return fmt.Errorf("队列已更新，但排程超出落位框架: %w", err)
		}
		return err
	}
	return nil
}

// resequence 按切片当前顺序重发队列序号，首位转为在制
// 调用方负责把切片排成期望的队列顺序
func resequence(queue []*entity.WorkOrder, now time.Time) {
	for i, q := range queue {
		p := i
		q.Priority = &p
		if i == 0 && q.Status == entity.StatusQueued {
			q.Status = entity.StatusPouching
			start := now
			q.PouchingStartDT = &start
			q.AppendLog("Started pouching.")
		}
	}
}

// checkQueueInvariant 队列不变式：序号连续从0起，在制工单有且仅有首位
func checkQueueInvariant(queue []*entity.WorkOrder) error {
	for i, q := range queue {
		if q.Priority == nil || *q.Priority != i {
			return fmt.Errorf("queue priority not contiguous at %d: %w", i, ErrInvariantViolation)
		}
		if i == 0 && q.Status != entity.StatusPouching {
			return fmt.Errorf("queue head not pouching: %w", ErrInvariantViolation)
		}
		if i > 0 && q.Status != entity.StatusQueued {
			return fmt.Errorf("queued job %d has status %s: %w", q.LotNumber, q.Status, ErrInvariantViolation)
		}
	}
	return nil
}

// insertAt 在指定位置插入工单
func insertAt(queue []*entity.WorkOrder, job *entity.WorkOrder, pos int) []*entity.WorkOrder {
	if pos >= len(queue) {
		return append(queue, job)
	}
	queue = append(queue, nil)
	copy(queue[pos+1:], queue[pos:])
	queue[pos] = job
	return queue
}
