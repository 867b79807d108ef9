package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"
	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/report"
	"github.com/4uJustDev/medical-calculator-haq/internal/repository"

	"go.uber.org/zap"
)

// TimelinePoint is one submission on the score-over-time chart.
type TimelinePoint struct {
	ID    int64     `json:"id"`
	Date  time.Time `json:"date"`
	Score float64   `json:"score"`
}

// HistoryService backs the history tab: listing, deleting and exporting
// stored submissions.
type HistoryService struct {
	log          *zap.Logger
	store        repository.SubmissionStore
	catalog      *models.Catalog
	reportConfig func() config.ReportConfig
}

// NewHistoryService wires the service. reportConfig is read on every export
// so reloaded report settings apply without a restart.
func NewHistoryService(log *zap.Logger, store repository.SubmissionStore, catalog *models.Catalog, reportConfig func() config.ReportConfig) *HistoryService {
	return &HistoryService{
		log:          log,
		store:        store,
		catalog:      catalog,
		reportConfig: reportConfig,
	}
}

// Persistent reports whether submissions are actually being saved.
func (s *HistoryService) Persistent() bool {
	return s.store.Persistent()
}

// List returns stored submissions, newest first. A non-empty patient limits
// the list to that patient's submissions.
func (s *HistoryService) List(ctx context.Context, patient string) ([]*models.Submission, error) {
	var (
		subs []*models.Submission
		err  error
	)
	if patient = strings.TrimSpace(patient); patient != "" {
		subs, err = s.store.ListByPatient(ctx, patient)
	} else {
		subs, err = s.store.ListAll(ctx)
	}
	if err != nil {
		s.log.Error("Failed to list submissions", zap.Error(err), zap.String("patient", patient))
		return nil, err
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].ID > subs[j].ID })
	return subs, nil
}

// Find looks a single submission up by id.
func (s *HistoryService) Find(ctx context.Context, id int64) (*models.Submission, error) {
	return s.store.GetByID(ctx, id)
}

// Delete removes a submission from the store. Callers drop it from what they
// display only after this returns nil.
func (s *HistoryService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		s.log.Error("Failed to delete submission", zap.Error(err), zap.Int64("id", id))
		return err
	}
	s.log.Info("Submission deleted", zap.Int64("id", id))
	return nil
}

// Export renders the PDF report of a submission and returns its file name and
// contents.
func (s *HistoryService) Export(ctx context.Context, id int64) (string, []byte, error) {
	sub, err := s.Find(ctx, id)
	if err != nil {
		return "", nil, err
	}

	exporter := report.New(s.catalog, s.reportConfig())
	data, err := exporter.Render(sub)
	if err != nil {
		s.log.Error("Failed to export submission", zap.Error(err), zap.Int64("id", id))
		return "", nil, err
	}
	return exporter.FileName(sub), data, nil
}

// Timeline returns the score of every stored submission in creation order.
// Submission ids are creation times in milliseconds.
func (s *HistoryService) Timeline(ctx context.Context) ([]TimelinePoint, error) {
	subs, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })

	points := make([]TimelinePoint, 0, len(subs))
	for _, sub := range subs {
		points = append(points, TimelinePoint{
			ID:    sub.ID,
			Date:  time.UnixMilli(sub.ID).UTC(),
			Score: sub.Score,
		})
	}
	return points, nil
}
