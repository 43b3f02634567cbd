package handler

import (
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gsfran/qmfg-tools/internal/config"
	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"github.com/gsfran/qmfg-tools/internal/pouching/repository"
	"github.com/gsfran/qmfg-tools/internal/pouching/service"
	"github.com/gsfran/qmfg-tools/internal/pouching/testutil"
	"go.uber.org/zap"
)

func setupTestAPI(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	catalog, err := entity.NewMachineCatalog(
		map[string][]string{
			entity.FamilyITrak:    {"line5", "line6"},
			entity.FamilyDipstick: {"dipstickA"},
			entity.FamilySwab:     {},
		},
		map[string]bool{"line5": true, "line6": true, "dipstickA": true},
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
	calendarSvc := service.NewCalendarService(repos.WorkWeek, schedCfg, catalog, logger)
	scheduleSvc := service.NewScheduleService(repos.WorkOrder, calendarSvc, catalog, logger)
	queueSvc := service.NewQueueService(repos.WorkOrder, scheduleSvc, catalog, db, logger)
	workOrderSvc := service.NewWorkOrderService(repos.WorkOrder, scheduleSvc, logger)

	r := testutil.SetupRouter()
	api := testutil.AuthGroup(r, "/api/v1")

	scheduleH := NewScheduleHandler(scheduleSvc, calendarSvc)
	workOrderH := NewWorkOrderHandler(workOrderSvc, queueSvc)

	schedules := api.Group("/schedules")
	schedules.POST("/refresh", scheduleH.RefreshSchedules)
	schedules.GET("/weeks/:yearWeek", scheduleH.GetWorkWeek)
	schedules.PUT("/weeks/:yearWeek", scheduleH.UpdateWorkWeek)
	schedules.GET("/:family", scheduleH.GetSchedule)
	schedules.GET("/:family/:yearWeek", scheduleH.GetSchedule)

	workOrders := api.Group("/work-orders")
	workOrders.POST("", workOrderH.Create)
	workOrders.GET("", workOrderH.List)
	workOrders.GET("/parking-lot", workOrderH.ParkingLot)
	workOrders.GET("/:lot", workOrderH.Get)
	workOrders.DELETE("/:lot", workOrderH.Delete)
	workOrders.POST("/:lot/load", workOrderH.Load)
	workOrders.POST("/:lot/unload", workOrderH.Unload)
	workOrders.POST("/:lot/close", workOrderH.Close)
	workOrders.POST("/:lot/production", workOrderH.ReportProduction)

	return r
}

func createWorkOrderBody(lot int) map[string]interface{} {
	return map[string]interface{}{
		"product":       "FS-1",
		"product_name":  "Flu A/B Test Kit",
		"short_name":    "FluKit",
		"item_number":   "100-0123",
		"lot_id":        fmt.Sprintf("A%d", lot%10000),
		"lot_number":    lot,
		"strip_qty":     3000,
		"standard_rate": 1000,
	}
}

func TestWorkOrderLifecycle(t *testing.T) {
	r := setupTestAPI(t)
	token := testutil.DefaultTestToken()

	// 未认证被拒
	w := testutil.DoRequest(r, "POST", "/api/v1/work-orders", createWorkOrderBody(3001), "")
	if w.Code != 401 {
		t.Fatalf("unauthenticated create: status = %d, want 401", w.Code)
	}

	// 建单
	w = testutil.DoRequest(r, "POST", "/api/v1/work-orders", createWorkOrderBody(3001), token)
	if w.Code != 201 {
		t.Fatalf("create: status = %d, body = %s", w.Code, w.Body.String())
	}

	// 重复批号被拒
	w = testutil.DoRequest(r, "POST", "/api/v1/work-orders", createWorkOrderBody(3001), token)
	if w.Code != 400 {
		t.Fatalf("duplicate lot: status = %d, want 400", w.Code)
	}

	// 停放区能看到
	w = testutil.DoRequest(r, "GET", "/api/v1/work-orders/parking-lot", nil, token)
	if w.Code != 200 {
		t.Fatalf("parking lot: status = %d", w.Code)
	}
	resp := testutil.ParseResponse(w)
	lots, _ := resp["data"].([]interface{})
	if len(lots) != 1 {
		t.Fatalf("parking lot size = %d, want 1", len(lots))
	}

	// 装载
	w = testutil.DoRequest(r, "POST", "/api/v1/work-orders/3001/load",
		map[string]interface{}{"machine": "line5", "mode": "append"}, token)
	if w.Code != 200 {
		t.Fatalf("load: status = %d, body = %s", w.Code, w.Body.String())
	}

	// 在制工单不可删除
	w = testutil.DoRequest(r, "DELETE", "/api/v1/work-orders/3001", nil, token)
	if w.Code != 400 {
		t.Fatalf("delete loaded job: status = %d, want 400", w.Code)
	}

	// 报产
	w = testutil.DoRequest(r, "POST", "/api/v1/work-orders/3001/production",
		map[string]interface{}{"qty": 1000}, token)
	if w.Code != 200 {
		t.Fatalf("report production: status = %d, body = %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	data, _ := resp["data"].(map[string]interface{})
	if data["remaining_qty"].(float64) != 2000 {
		t.Errorf("remaining_qty = %v, want 2000", data["remaining_qty"])
	}

	// 关单
	w = testutil.DoRequest(r, "POST", "/api/v1/work-orders/3001/close", nil, token)
	if w.Code != 200 {
		t.Fatalf("close: status = %d, body = %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(r, "GET", "/api/v1/work-orders/3001", nil, token)
	resp = testutil.ParseResponse(w)
	data, _ = resp["data"].(map[string]interface{})
	if data["status"] != entity.StatusClosed {
		t.Errorf("status = %v, want Closed", data["status"])
	}

	// 未知批号404
	w = testutil.DoRequest(r, "GET", "/api/v1/work-orders/9999", nil, token)
	if w.Code != 404 {
		t.Errorf("unknown lot: status = %d, want 404", w.Code)
	}
}

func TestScheduleViewEndpoint(t *testing.T) {
	r := setupTestAPI(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(r, "POST", "/api/v1/work-orders", createWorkOrderBody(3002), token)
	if w.Code != 201 {
		t.Fatalf("create: status = %d", w.Code)
	}
	w = testutil.DoRequest(r, "POST", "/api/v1/work-orders/3002/load",
		map[string]interface{}{"machine": "line5", "mode": "append"}, token)
	if w.Code != 200 {
		t.Fatalf("load: status = %d, body = %s", w.Code, w.Body.String())
	}

	// 当前周看板
	w = testutil.DoRequest(r, "GET", "/api/v1/schedules/itrak", nil, token)
	if w.Code != 200 {
		t.Fatalf("schedule view: status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data, _ := resp["data"].(map[string]interface{})
	if data["family"] != "itrak" {
		t.Errorf("family = %v", data["family"])
	}
	machines, _ := data["machines"].([]interface{})
	if len(machines) != 2 {
		t.Fatalf("machine rows = %d, want 2", len(machines))
	}

	// 已配置但暂无机台的族返回空看板
	w = testutil.DoRequest(r, "GET", "/api/v1/schedules/swab", nil, token)
	if w.Code != 200 {
		t.Fatalf("empty family: status = %d, body = %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	data, _ = resp["data"].(map[string]interface{})
	if machines, ok := data["machines"].([]interface{}); !ok || len(machines) != 0 {
		t.Errorf("empty family machines = %v, want []", data["machines"])
	}

	// 未知机型族404
	w = testutil.DoRequest(r, "GET", "/api/v1/schedules/lathe", nil, token)
	if w.Code != 404 {
		t.Errorf("unknown family: status = %d, want 404", w.Code)
	}

	// 周历建档
	w = testutil.DoRequest(r, "GET", "/api/v1/schedules/weeks/2026-40", nil, token)
	if w.Code != 200 {
		t.Fatalf("work week: status = %d", w.Code)
	}
	resp = testutil.ParseResponse(w)
	data, _ = resp["data"].(map[string]interface{})
	if data["year_week"] != "2026-40" {
		t.Errorf("year_week = %v", data["year_week"])
	}
}
