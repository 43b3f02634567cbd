package repository

import (
	"errors"

	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"gorm.io/gorm"
)

type WorkWeekRepository struct {
	db *gorm.DB
}

func NewWorkWeekRepository(db *gorm.DB) *WorkWeekRepository {
	return &WorkWeekRepository{db: db}
}

func (r *WorkWeekRepository) Create(ww *entity.WorkWeek) error {
	return r.db.Create(ww).Error
}

func (r *WorkWeekRepository) GetByYearWeek(yearWeek string) (*entity.WorkWeek, error) {
	var ww entity.WorkWeek
	err := r.db.Where("year_week = ?", yearWeek).First(&ww).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &ww, err
}

func (r *WorkWeekRepository) Save(ww *entity.WorkWeek) error {
	return r.db.Save(ww).Error
}

// LaterThan 指定周之后（含当周）的全部已建档周
// year_week是定宽的"YYYY-WW"，字典序即时间序
func (r *WorkWeekRepository) LaterThan(yearWeek string) ([]entity.WorkWeek, error) {
	var wws []entity.WorkWeek
	err := r.db.Where("year_week >= ?", yearWeek).
		Order("year_week ASC").Find(&wws).Error
	return wws, err
}
