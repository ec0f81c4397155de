package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wanjalae/hr_portal/models"
)

// IdentityLookup resolves user and department existence. The employee and
// department domains live outside the messaging core; this is the only
// surface it consumes from them.
type IdentityLookup interface {
	UsersExist(ids []uuid.UUID) (bool, error)
	DepartmentExists(id uuid.UUID) (bool, error)
}

type GormIdentityLookup struct {
	db *gorm.DB
}

func NewGormIdentityLookup(db *gorm.DB) *GormIdentityLookup {
	return &GormIdentityLookup{db: db}
}

func (l *GormIdentityLookup) UsersExist(ids []uuid.UUID) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	var count int64
	err := l.db.Model(&models.User{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == int64(len(ids)), nil
}

func (l *GormIdentityLookup) DepartmentExists(id uuid.UUID) (bool, error) {
	var count int64
	err := l.db.Model(&models.Department{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
