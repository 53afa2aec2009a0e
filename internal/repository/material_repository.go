package repository

import (
	"context"

	"oral_exam_backend/internal/model"

	"gorm.io/gorm"
)

type MaterialRepository struct {
	DB *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{DB: db}
}

func (r *MaterialRepository) Create(ctx context.Context, material *model.SubjectMaterial) error {
	return r.DB.WithContext(ctx).Create(material).Error
}

func (r *MaterialRepository) FindBySubject(ctx context.Context, subject string) ([]model.SubjectMaterial, error) {
	var materials []model.SubjectMaterial
	err := r.DB.WithContext(ctx).
		Where("subject = ?", subject).
		Order("id ASC").
		Find(&materials).Error
	return materials, err
}

func (r *MaterialRepository) DeleteBySubject(ctx context.Context, subject string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("subject = ?", subject).Delete(&model.SubjectMaterial{})
	return res.RowsAffected, res.Error
}

// Subjects lists the distinct subjects that have stored material.
func (r *MaterialRepository) Subjects(ctx context.Context) ([]string, error) {
	var subjects []string
	err := r.DB.WithContext(ctx).Model(&model.SubjectMaterial{}).
		Distinct("subject").
		Order("subject").
		Pluck("subject", &subjects).Error
	return subjects, err
}
