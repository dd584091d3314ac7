package child

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

func (r *Repo) Create(ctx context.Context, c *Child) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(c).Error
}

// FindByID 按 ID 查找孩子；不存在返回 (nil, nil)。
func (r *Repo) FindByID(ctx context.Context, id string) (*Child, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Child
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByFamily 列出一个家庭的孩子（展示用）。
func (r *Repo) ListByFamily(ctx context.Context, familyID string) ([]Child, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var children []Child
	if err := r.db.WithContext(ctx).Where("family_id = ?", familyID).Order("created_at asc").Find(&children).Error; err != nil {
		return nil, err
	}
	return children, nil
}
