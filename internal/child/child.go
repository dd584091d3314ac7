package child

import (
	"time"
)

// Child 是 children 表的 GORM 模型。
// 孩子档案由家庭管理流程维护（本模块外），排班核心只读取其身份。
type Child struct {
	ID        string `gorm:"primaryKey;size:36"`
	FamilyID  string `gorm:"index;size:36"`
	Name      string `gorm:"size:64;not null"`
	Birthday  *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
