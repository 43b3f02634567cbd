package entity

import (
	"strings"
	"testing"
	"time"
)

func TestRemaining(t *testing.T) {
	cases := []struct {
		stripQty, rate, pouched int
		wantQty, wantHours      int
	}{
		{3000, 1000, 0, 3000, 3},
		{3000, 1000, 500, 2500, 3}, // 向上取整
		{3000, 1000, 2999, 1, 1},
		{3000, 1000, 3000, 0, 0},
		{3000, 1000, 3500, 0, 0}, // 超产不出负数
		{3000, 0, 0, 3000, 0},    // 速率缺失不除零
	}
	for _, c := range cases {
		wo := WorkOrder{StripQty: c.stripQty, StandardRate: c.rate, PouchedQty: c.pouched}
		qty, hours := wo.Remaining()
		if qty != c.wantQty || hours != c.wantHours {
			t.Errorf("Remaining(%d/%d/%d) = %d/%d, want %d/%d",
				c.stripQty, c.rate, c.pouched, qty, hours, c.wantQty, c.wantHours)
		}
	}
}

func TestParkClearsPlacement(t *testing.T) {
	m := "line5"
	p := 2
	now := time.Now()
	wo := WorkOrder{
		Status: StatusQueued, Machine: &m, Priority: &p,
		LoadDT: &now, PouchingStartDT: &now, PouchingEndDT: &now,
	}
	wo.Park()
	if wo.Status != StatusParkingLot || wo.Machine != nil || wo.Priority != nil {
		t.Errorf("Park left state: %s %v %v", wo.Status, wo.Machine, wo.Priority)
	}
	if wo.LoadDT != nil || wo.PouchingStartDT != nil || wo.PouchingEndDT != nil {
		t.Error("Park left timestamps")
	}
	if !strings.Contains(wo.Log, "Parking Lot") {
		t.Error("Park not logged")
	}
}

func TestCloseIsTerminal(t *testing.T) {
	p := 0
	wo := WorkOrder{Status: StatusPouching, Priority: &p}
	wo.Close()
	if wo.Status != StatusClosed || wo.Priority != nil || wo.PouchingEndDT == nil {
		t.Errorf("Close left state: %s %v %v", wo.Status, wo.Priority, wo.PouchingEndDT)
	}
	if _, ok := ValidStatusTransitions[StatusClosed]; ok {
		t.Error("closed status should have no outgoing transitions")
	}
}

func TestCanTransition(t *testing.T) {
	// 任何非终态都可关单
	for _, from := range []string{StatusParkingLot, StatusQueued, StatusPouching} {
		if !CanTransition(from, StatusClosed) {
			t.Errorf("CanTransition(%s, Closed) = false", from)
		}
	}
	if CanTransition(StatusClosed, StatusParkingLot) || CanTransition(StatusClosed, StatusClosed) {
		t.Error("closed job allowed to transition")
	}
	if CanTransition(StatusPouching, StatusQueued) {
		t.Error("running job demoted to queued")
	}
}

func TestMachineDisplayNames(t *testing.T) {
	cases := []struct {
		family, shortName, want string
	}{
		{FamilyITrak, "line5", "Line 5"},
		{FamilyDipstick, "dipstickA", "Dipstick A"},
		{FamilySwab, "swabauto", "Swab Poucher auto"},
	}
	for _, c := range cases {
		m, err := NewMachine(c.family, c.shortName)
		if err != nil {
			t.Fatalf("NewMachine(%s, %s): %v", c.family, c.shortName, err)
		}
		if m.Name != c.want {
			t.Errorf("NewMachine(%s, %s).Name = %s, want %s", c.family, c.shortName, m.Name, c.want)
		}
	}
	if _, err := NewMachine("lathe", "lathe1"); err == nil {
		t.Error("unknown family accepted")
	}
}
