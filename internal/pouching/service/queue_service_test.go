package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gsfran/qmfg-tools/internal/config"
	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"github.com/gsfran/qmfg-tools/internal/pouching/repository"
	"github.com/gsfran/qmfg-tools/internal/pouching/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testServices struct {
	db        *gorm.DB
	repos     *repository.Repositories
	calendar  *CalendarService
	schedule  *ScheduleService
	queue     *QueueService
	workOrder *WorkOrderService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	catalog, err := entity.NewMachineCatalog(
		map[string][]string{
			entity.FamilyITrak: {"line5", "line6"},
			entity.FamilySwab:  {},
		},
		map[string]bool{"line5": true, "line6": true},
	)
	if err != nil {
		t.Fatalf("NewMachineCatalog: %v", err)
	}

	schedCfg := config.ScheduleConfig{Defaults: map[string]config.DayTemplate{}}
	for _, day := range []string{"mon", "tue", "wed", "thu", "fri"} {
		schedCfg.Defaults[day] = config.DayTemplate{Scheduled: true, Start: "06:00", End: "22:00"}
	}
	for _, day := range []string{"sat", "sun"} {
		schedCfg.Defaults[day] = config.DayTemplate{Start: "06:00", End: "22:00"}
	}

	repos := repository.NewRepositories(db)
	calendar := NewCalendarService(repos.WorkWeek, schedCfg, catalog, logger)
	schedule := NewScheduleService(repos.WorkOrder, calendar, catalog, logger)
	queue := NewQueueService(repos.WorkOrder, schedule, catalog, db, logger)
	workOrder := NewWorkOrderService(repos.WorkOrder, schedule, logger)

	return &testServices{
		db:        db,
		repos:     repos,
		calendar:  calendar,
		schedule:  schedule,
		queue:     queue,
		workOrder: workOrder,
	}
}

func (ts *testServices) reload(t *testing.T, lot int) *entity.WorkOrder {
	t.Helper()
	wo, err := ts.repos.WorkOrder.GetByLotNumber(lot)
	if err != nil {
		t.Fatalf("reload lot %d: %v", lot, err)
	}
	return wo
}

func TestLoadJobAppendToEmptyMachine(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 3000, 1000)

	if _, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line5", Mode: ModeAppend}); err != nil {
		t.Fatalf("LoadJob: %v", err)
	}

	wo := ts.reload(t, 2001)
	if wo.Status != entity.StatusPouching {
		t.Errorf("status = %s, want Pouching", wo.Status)
	}
	if wo.Priority == nil || *wo.Priority != 0 {
		t.Errorf("priority = %v, want 0", wo.Priority)
	}
	if wo.Machine == nil || *wo.Machine != "line5" {
		t.Errorf("machine = %v, want line5", wo.Machine)
	}
	if wo.LoadDT == nil || wo.PouchingStartDT == nil {
		t.Error("load/start timestamps not set")
	}
	if wo.PouchingEndDT == nil {
		t.Error("placement did not run: end timestamp not set")
	}
}

func TestLoadJobAppendAndInsert(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 3000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2002, 2000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2003, 1000, 1000)

	for _, lot := range []int{2001, 2002} {
		if _, err := ts.queue.LoadJob(lot, LoadJobReq{Machine: "line5", Mode: ModeAppend}); err != nil {
			t.Fatalf("LoadJob %d: %v", lot, err)
		}
	}
	// insert排到在制工单之后、原队列之前
	if _, err := ts.queue.LoadJob(2003, LoadJobReq{Machine: "line5", Mode: ModeInsert}); err != nil {
		t.Fatalf("LoadJob insert: %v", err)
	}

	a, b, c := ts.reload(t, 2001), ts.reload(t, 2002), ts.reload(t, 2003)
	if *a.Priority != 0 || a.Status != entity.StatusPouching {
		t.Errorf("lot 2001 = p%d/%s, want p0/Pouching", *a.Priority, a.Status)
	}
	if *c.Priority != 1 || c.Status != entity.StatusQueued {
		t.Errorf("lot 2003 = p%d/%s, want p1/Queued", *c.Priority, c.Status)
	}
	if *b.Priority != 2 {
		t.Errorf("lot 2002 = p%d, want p2", *b.Priority)
	}
	// 排程时间按队列顺序推进，后单不早于前单结束
	if c.PouchingStartDT.Before(*a.PouchingEndDT) {
		t.Errorf("lot 2003 start %v before lot 2001 end %v", c.PouchingStartDT, a.PouchingEndDT)
	}
	if b.PouchingStartDT.Before(*c.PouchingEndDT) {
		t.Errorf("lot 2002 start %v before lot 2003 end %v", b.PouchingStartDT, c.PouchingEndDT)
	}
}

func TestLoadJobReplace(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 3000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2002, 2000, 1000)

	if _, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line5", Mode: ModeAppend}); err != nil {
		t.Fatalf("LoadJob: %v", err)
	}
	if _, err := ts.queue.LoadJob(2002, LoadJobReq{Machine: "line5", Mode: ModeReplace}); err != nil {
		t.Fatalf("LoadJob replace: %v", err)
	}

	old, repl := ts.reload(t, 2001), ts.reload(t, 2002)
	if old.Status != entity.StatusParkingLot || old.Machine != nil || old.Priority != nil {
		t.Errorf("replaced job not parked: %s machine=%v priority=%v", old.Status, old.Machine, old.Priority)
	}
	if repl.Status != entity.StatusPouching || *repl.Priority != 0 {
		t.Errorf("replacement = %s/p%v, want Pouching/p0", repl.Status, repl.Priority)
	}
}

func TestLoadJobCustomOrdering(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 8000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2002, 2000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2003, 1000, 1000)

	for _, lot := range []int{2001, 2002} {
		if _, err := ts.queue.LoadJob(lot, LoadJobReq{Machine: "line5", Mode: ModeAppend}); err != nil {
			t.Fatalf("LoadJob %d: %v", lot, err)
		}
	}

	// 期望开始时间早于2002的预计开始，插到2002之前，但不顶掉在制的2001
	queued := ts.reload(t, 2002)
	want := queued.PouchingStartDT.Add(-time.Minute)
	if _, err := ts.queue.LoadJob(2003, LoadJobReq{Machine: "line5", Mode: ModeCustom, StartDT: &want}); err != nil {
		t.Fatalf("LoadJob custom: %v", err)
	}

	a, b, c := ts.reload(t, 2001), ts.reload(t, 2002), ts.reload(t, 2003)
	if *a.Priority != 0 || a.Status != entity.StatusPouching {
		t.Errorf("running job displaced: p%d/%s", *a.Priority, a.Status)
	}
	if *c.Priority != 1 || *b.Priority != 2 {
		t.Errorf("custom ordering wrong: 2003=p%d 2002=p%d, want 1/2", *c.Priority, *b.Priority)
	}
}

func TestLoadJobCustomEmptyQueue(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 1000, 1000)

	// 空队列的custom等同append
	want := time.Now().Add(48 * time.Hour)
	if _, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line5", Mode: ModeCustom, StartDT: &want}); err != nil {
		t.Fatalf("LoadJob custom: %v", err)
	}
	wo := ts.reload(t, 2001)
	if wo.Status != entity.StatusPouching || *wo.Priority != 0 {
		t.Errorf("custom into empty queue = %s/p%v, want Pouching/p0", wo.Status, wo.Priority)
	}
}

func TestLoadJobRejectsBadInput(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 1000, 1000)

	if _, err := ts.queue.LoadJob(9999, LoadJobReq{Machine: "line5", Mode: ModeAppend}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("unknown lot: err = %v, want ErrJobNotFound", err)
	}
	if _, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line99", Mode: ModeAppend}); !errors.Is(err, ErrMachineNotFound) {
		t.Errorf("unknown machine: err = %v, want ErrMachineNotFound", err)
	}
	if _, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line5", Mode: "sideways"}); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("bad mode: err = %v, want ErrInvalidMode", err)
	}
	if _, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line5", Mode: ModeCustom}); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("custom without start: err = %v, want ErrInvalidMode", err)
	}

	// 已装载的工单不能再装载
	if _, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line5", Mode: ModeAppend}); err != nil {
		t.Fatalf("LoadJob: %v", err)
	}
	if _, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line6", Mode: ModeAppend}); err == nil {
		t.Error("loading an already loaded job should fail")
	}
}

func TestUnloadJobPromotesNext(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 3000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2002, 2000, 1000)

	for _, lot := range []int{2001, 2002} {
		if _, err := ts.queue.LoadJob(lot, LoadJobReq{Machine: "line5", Mode: ModeAppend}); err != nil {
			t.Fatalf("LoadJob %d: %v", lot, err)
		}
	}

	if _, err := ts.queue.UnloadJob(2001); err != nil {
		t.Fatalf("UnloadJob: %v", err)
	}

	parked, promoted := ts.reload(t, 2001), ts.reload(t, 2002)
	if parked.Status != entity.StatusParkingLot || parked.Machine != nil {
		t.Errorf("unloaded job not parked: %s", parked.Status)
	}
	if promoted.Status != entity.StatusPouching || *promoted.Priority != 0 {
		t.Errorf("next job not promoted: %s/p%v", promoted.Status, promoted.Priority)
	}
}

func TestCloseJobPromotesNext(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 3000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2002, 2000, 1000)

	for _, lot := range []int{2001, 2002} {
		if _, err := ts.queue.LoadJob(lot, LoadJobReq{Machine: "line5", Mode: ModeAppend}); err != nil {
			t.Fatalf("LoadJob %d: %v", lot, err)
		}
	}

	if _, err := ts.queue.CloseJob(2001); err != nil {
		t.Fatalf("CloseJob: %v", err)
	}

	closed, promoted := ts.reload(t, 2001), ts.reload(t, 2002)
	if closed.Status != entity.StatusClosed || closed.Priority != nil {
		t.Errorf("job not closed: %s/p%v", closed.Status, closed.Priority)
	}
	if closed.PouchingEndDT == nil {
		t.Error("closed job has no end timestamp")
	}
	if promoted.Status != entity.StatusPouching || *promoted.Priority != 0 {
		t.Errorf("next job not promoted: %s/p%v", promoted.Status, promoted.Priority)
	}
}

func TestCloseQueuedJobResequences(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 3000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2002, 2000, 1000)
	testutil.SeedWorkOrder(t, ts.db, 2003, 1000, 1000)

	for _, lot := range []int{2001, 2002, 2003} {
		if _, err := ts.queue.LoadJob(lot, LoadJobReq{Machine: "line5", Mode: ModeAppend}); err != nil {
			t.Fatalf("LoadJob %d: %v", lot, err)
		}
	}

	// 关闭队列中间的排队工单，在制工单不动，后单补位
	if _, err := ts.queue.CloseJob(2002); err != nil {
		t.Fatalf("CloseJob queued: %v", err)
	}

	closed := ts.reload(t, 2002)
	if closed.Status != entity.StatusClosed || closed.Machine != nil || closed.Priority != nil {
		t.Errorf("closed job = %s machine=%v priority=%v", closed.Status, closed.Machine, closed.Priority)
	}
	head, tail := ts.reload(t, 2001), ts.reload(t, 2003)
	if head.Status != entity.StatusPouching || *head.Priority != 0 {
		t.Errorf("running job disturbed: %s/p%v", head.Status, head.Priority)
	}
	if tail.Status != entity.StatusQueued || *tail.Priority != 1 {
		t.Errorf("tail not resequenced: %s/p%v, want Queued/p1", tail.Status, tail.Priority)
	}
}

func TestCloseParkedJob(t *testing.T) {
	ts := newTestServices(t)
	testutil.SeedWorkOrder(t, ts.db, 2001, 3000, 1000)

	// 停放区工单可直接关闭，不涉及机台
	wo, err := ts.queue.CloseJob(2001)
	if err != nil {
		t.Fatalf("CloseJob parked: %v", err)
	}
	if wo.Status != entity.StatusClosed {
		t.Errorf("status = %s, want Closed", wo.Status)
	}
	if wo.PouchingEndDT == nil {
		t.Error("closed job has no end timestamp")
	}

	// 终态不可再关
	if _, err := ts.queue.CloseJob(2001); err == nil {
		t.Error("closing a closed job should fail")
	}
}

func TestQueueMutationSurfacesHorizonOverflow(t *testing.T) {
	ts := newTestServices(t)
	// 500小时的工单装不进3周框架
	testutil.SeedWorkOrder(t, ts.db, 2001, 500000, 1000)

	_, err := ts.queue.LoadJob(2001, LoadJobReq{Machine: "line5", Mode: ModeAppend})
	if !errors.Is(err, ErrHorizonExceeded) {
		t.Fatalf("LoadJob err = %v, want ErrHorizonExceeded", err)
	}
	if !strings.Contains(err.Error(), "2001") {
		t.Errorf("error does not name the offending lot: %v", err)
	}

	// 队列变更本身已生效，只是落位失败
	wo := ts.reload(t, 2001)
	if wo.Status != entity.StatusPouching || wo.Priority == nil || *wo.Priority != 0 {
		t.Errorf("queue mutation rolled back: %s/p%v", wo.Status, wo.Priority)
	}

	// 族级刷新同样把超框架错误带回
	if err := ts.schedule.RefreshFamily(entity.FamilyITrak, time.Now()); !errors.Is(err, ErrHorizonExceeded) {
		t.Errorf("RefreshFamily err = %v, want ErrHorizonExceeded", err)
	}
	if err := ts.schedule.RefreshAll(time.Now()); !errors.Is(err, ErrHorizonExceeded) {
		t.Errorf("RefreshAll err = %v, want ErrHorizonExceeded", err)
	}
}
