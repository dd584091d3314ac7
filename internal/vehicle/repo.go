package vehicle

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Upsert(ctx context.Context, v *Vehicle) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Save(v).Error
}

// FindByID 按 ID 查找车辆；不存在返回 (nil, nil)。
func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByFamily 列出一个家庭名下的车辆（展示用）。
func (r *Repo) ListByFamily(ctx context.Context, familyID string) ([]Vehicle, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var vehicles []Vehicle
	q := r.db.WithContext(ctx).Model(&Vehicle{})
	if familyID != "" {
		q = q.Where("family_id = ?", familyID)
	}
	if err := q.Order("created_at asc").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}
