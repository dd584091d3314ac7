package user

import (
	"time"
)

// User 是 users 表的 GORM 模型。
// 账号/会话由外部认证服务负责，这里只保留排班需要读取的司机身份信息。
type User struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Nickname  string    `gorm:"size:64"`
	Phone     string    `gorm:"size:32"`
	Email     string    `gorm:"size:128"`
	FamilyID  string    `gorm:"index;size:36"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
