package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gsfran/qmfg-tools/internal/pouching/service"
)

// Handlers 制袋排程处理器集合
type Handlers struct {
	Schedule  *ScheduleHandler
	WorkOrder *WorkOrderHandler
	Auth      *AuthHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(
	scheduleSvc *service.ScheduleService,
	calendarSvc *service.CalendarService,
	workOrderSvc *service.WorkOrderService,
	queueSvc *service.QueueService,
	authSvc *service.AuthService,
) *Handlers {
	return &Handlers{
		Schedule:  NewScheduleHandler(scheduleSvc, calendarSvc),
		WorkOrder: NewWorkOrderHandler(workOrderSvc, queueSvc),
		Auth:      NewAuthHandler(authSvc),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}

// LotNumberParam 解析路径中的批号
func LotNumberParam(c *gin.Context) (int, bool) {
	lot, err := strconv.Atoi(c.Param("lot"))
	if err != nil || lot <= 0 {
		BadRequest(c, "无效的批号")
		return 0, false
	}
	return lot, true
}
