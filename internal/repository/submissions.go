package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/4uJustDev/medical-calculator-haq/internal/models"

	"gorm.io/gorm"
)

// SubmissionStore is the persistence contract for submissions. Records are
// immutable: they are inserted once and removed by id.
type SubmissionStore interface {
	ListAll(ctx context.Context) ([]*models.Submission, error)
	ListByPatient(ctx context.Context, name string) ([]*models.Submission, error)
	GetByID(ctx context.Context, id int64) (*models.Submission, error)
	Insert(ctx context.Context, sub *models.Submission) error
	DeleteByID(ctx context.Context, id int64) error
	Persistent() bool
}

// GormSubmissionStore keeps submissions in the SQL store opened by database.Open.
type GormSubmissionStore struct {
	db *gorm.DB
}

func NewGormSubmissionStore(db *gorm.DB) *GormSubmissionStore {
	return &GormSubmissionStore{db: db}
}

func (s *GormSubmissionStore) Persistent() bool {
	return true
}

// ListAll returns every stored submission ordered by id.
func (s *GormSubmissionStore) ListAll(ctx context.Context) ([]*models.Submission, error) {
	var rows []models.SubmissionRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list submissions: %w", models.ErrStorageUnavailable, err)
	}
	return toSubmissions(rows), nil
}

// ListByPatient returns the submissions recorded for an exact patient name.
func (s *GormSubmissionStore) ListByPatient(ctx context.Context, name string) ([]*models.Submission, error) {
	var rows []models.SubmissionRecord
	if err := s.db.WithContext(ctx).Where("patient_name = ?", name).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list submissions for patient: %w", models.ErrStorageUnavailable, err)
	}
	return toSubmissions(rows), nil
}

// GetByID loads one submission. A missing id is models.ErrSubmissionNotFound.
func (s *GormSubmissionStore) GetByID(ctx context.Context, id int64) (*models.Submission, error) {
	var rec models.SubmissionRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", models.ErrSubmissionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get submission %d: %w", models.ErrStorageUnavailable, id, err)
	}
	return rec.Submission(), nil
}

// Insert stores a new submission. An id that is already present is reported
// as models.ErrDuplicateKey and the existing record is left untouched.
func (s *GormSubmissionStore) Insert(ctx context.Context, sub *models.Submission) error {
	rec := models.NewSubmissionRecord(sub)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.SubmissionRecord{}).Where("id = ?", rec.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %d", models.ErrDuplicateKey, rec.ID)
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
		}
		return nil
	})
	if err != nil {
		if models.IsStorageError(err) {
			return err
		}
		return fmt.Errorf("%w: insert submission: %w", models.ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteByID removes a submission. Deleting a missing id is not an error.
func (s *GormSubmissionStore) DeleteByID(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&models.SubmissionRecord{}, id).Error; err != nil {
		return fmt.Errorf("%w: delete submission %d: %w", models.ErrStorageUnavailable, id, err)
	}
	return nil
}

func toSubmissions(rows []models.SubmissionRecord) []*models.Submission {
	subs := make([]*models.Submission, 0, len(rows))
	for i := range rows {
		subs = append(subs, rows[i].Submission())
	}
	return subs
}

// DiscardStore is used when the local store cannot be opened. The quiz keeps
// working, but nothing is saved and history stays empty.
type DiscardStore struct{}

func (DiscardStore) Persistent() bool {
	return false
}

func (DiscardStore) ListAll(context.Context) ([]*models.Submission, error) {
	return []*models.Submission{}, nil
}

func (DiscardStore) ListByPatient(context.Context, string) ([]*models.Submission, error) {
	return []*models.Submission{}, nil
}

func (DiscardStore) GetByID(_ context.Context, id int64) (*models.Submission, error) {
	return nil, fmt.Errorf("%w: %d", models.ErrSubmissionNotFound, id)
}

func (DiscardStore) Insert(context.Context, *models.Submission) error {
	return nil
}

func (DiscardStore) DeleteByID(context.Context, int64) error {
	return nil
}
