package vehicle

import (
	"time"
)

// Vehicle 是 vehicles 表的 GORM 模型。
// 车辆由家庭（family）注册；排班核心只读取其身份与座位数，
// 不负责车辆档案本身的维护（Upsert 仅供注册入口与测试准备数据使用）。
type Vehicle struct {
	ID          string    `gorm:"primaryKey;size:36"`
	PlateNumber string    `gorm:"uniqueIndex;size:32;not null"`
	Name        string    `gorm:"size:64"` // 展示用名称，例如 "红色七座"
	Model       string    `gorm:"size:64"`
	FamilyID    string    `gorm:"index;size:36"`
	Capacity    int       `gorm:"not null"` // 注册座位数（不含司机位）
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}
