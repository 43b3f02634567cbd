// Package service 制袋排程的业务逻辑层
package service

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// 错误定义
var (
	ErrHorizonExceeded    = errors.New("schedule exceeds placement horizon")
	ErrInvalidMode        = errors.New("invalid load mode")
	ErrJobNotFound        = errors.New("work order not found")
	ErrMachineNotFound    = errors.New("machine not found")
	ErrInvariantViolation = errors.New("queue invariant violation")
)

// machineLocks 机台级互斥锁
// 队列变更与排程刷新按机台串行，不同机台互不阻塞
type machineLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMachineLocks() *machineLocks {
	return &machineLocks{locks: make(map[string]*sync.Mutex)}
}

func (m *machineLocks) get(machine string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[machine]
	if !ok {
		l = &sync.Mutex{}
		m.locks[machine] = l
	}
	return l
}

func generateID() string {
	return uuid.New().String()[:32]
}
