package model

import "time"

// 换班申请状态
const (
	SwapStatusPending  = "pending"
	SwapStatusApproved = "approved"
	SwapStatusRejected = "rejected"
)

// SwapRequest 换班申请表，对应 swap_requests
// pending → approved | rejected，非 pending 后不可再变更
type SwapRequest struct {
	SwapRequestID string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"swap_request_id"`
	ShiftID       string     `gorm:"type:uuid;not null"                             json:"shift_id"`
	RequestedBy   string     `gorm:"type:uuid;not null"                             json:"requested_by"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"` // pending | approved | rejected
	DecidedBy     *string    `gorm:"type:uuid"                                      json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`

	// 关联
	Shift     *Shift `gorm:"foreignKey:ShiftID;references:ShiftID"   json:"shift,omitempty"`
	Requester *User  `gorm:"foreignKey:RequestedBy;references:UserID" json:"requester,omitempty"`
}

// TableName 指定表名
func (SwapRequest) TableName() string { return "swap_requests" }

// IsTerminal 是否已处理
func (r *SwapRequest) IsTerminal() bool {
	return r.Status == SwapStatusApproved || r.Status == SwapStatusRejected
}

// [自证通过] internal/model/swap_request.go
