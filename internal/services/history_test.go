package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"
	"github.com/4uJustDev/medical-calculator-haq/internal/database"
	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptr(v float64) *float64 { return &v }

func testCatalog(t *testing.T) *models.Catalog {
	t.Helper()
	opts := []models.Option{{Value: 0, Label: "Without any difficulty"}, {Value: 3, Label: "Unable to do"}}
	catalog, err := models.NewCatalog("HAQ-DI", "", "", []models.Category{
		{Name: "Dressing", Questions: []models.Question{{ID: 1, Text: "Dress?", Options: opts}}},
		{Name: "Arising", Questions: []models.Question{{ID: 2, Text: "Stand up?", Options: opts}}},
	})
	require.NoError(t, err)
	return catalog
}

func reportConfig() config.ReportConfig {
	return config.ReportConfig{Title: "Report", FilePrefix: "HAQ-DI_"}
}

func newTestService(t *testing.T) (*HistoryService, repository.SubmissionStore) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	store := repository.NewGormSubmissionStore(db)
	return NewHistoryService(zap.NewNop(), store, testCatalog(t), reportConfig), store
}

func seed(t *testing.T, store repository.SubmissionStore, id int64, name string, score float64) {
	t.Helper()
	sub := &models.Submission{
		ID:      id,
		Date:    time.UnixMilli(id).Format("02.01.2006, 15:04:05"),
		Answers: models.AnswerSet{1: ptr(score), 2: ptr(score)},
		Score:   score,
	}
	if name != "" {
		sub.PatientInfo = &models.PatientInfo{Name: name, Age: 50}
	}
	require.NoError(t, store.Insert(context.Background(), sub))
}

func TestListNewestFirst(t *testing.T) {
	svc, store := newTestService(t)
	seed(t, store, 1000, "Anna", 0)
	seed(t, store, 3000, "Oleg", 3)
	seed(t, store, 2000, "Anna", 3)

	subs, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, []int64{3000, 2000, 1000}, []int64{subs[0].ID, subs[1].ID, subs[2].ID})

	subs, err = svc.List(context.Background(), "  Anna ")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(2000), subs[0].ID)
}

func TestDeleteThenList(t *testing.T) {
	svc, store := newTestService(t)
	seed(t, store, 1000, "Anna", 0)
	seed(t, store, 2000, "Anna", 3)

	require.NoError(t, svc.Delete(context.Background(), 1000))
	require.NoError(t, svc.Delete(context.Background(), 1000))

	subs, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(2000), subs[0].ID)

	_, err = svc.Find(context.Background(), 1000)
	assert.ErrorIs(t, err, models.ErrSubmissionNotFound)
}

// lockedStore refuses every delete.
type lockedStore struct {
	repository.SubmissionStore
}

func (lockedStore) DeleteByID(context.Context, int64) error {
	return models.ErrStorageUnavailable
}

func TestDeleteFailureKeepsSubmission(t *testing.T) {
	_, store := newTestService(t)
	seed(t, store, 1000, "Anna", 0)
	svc := NewHistoryService(zap.NewNop(), lockedStore{store}, testCatalog(t), reportConfig)

	err := svc.Delete(context.Background(), 1000)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)

	subs, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(1000), subs[0].ID)
}

func TestExportUnknownOptionValue(t *testing.T) {
	svc, store := newTestService(t)
	require.NoError(t, store.Insert(context.Background(), &models.Submission{
		ID:      1000,
		Date:    "d",
		Answers: models.AnswerSet{1: ptr(7), 2: ptr(0)},
		Score:   3.5,
	}))

	name, data, err := svc.Export(context.Background(), 1000)
	assert.ErrorIs(t, err, models.ErrExportFailure)
	assert.Empty(t, name)
	assert.Nil(t, data)
}

func TestExport(t *testing.T) {
	svc, store := newTestService(t)
	seed(t, store, 1000, "Anna Smith", 3)

	name, data, err := svc.Export(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, "HAQ-DI_Anna_Smith.pdf", name)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	_, _, err = svc.Export(context.Background(), 42)
	assert.ErrorIs(t, err, models.ErrSubmissionNotFound)
}

func TestTimelineIsChronological(t *testing.T) {
	svc, store := newTestService(t)
	seed(t, store, 3000, "", 3)
	seed(t, store, 1000, "", 0)

	points, err := svc.Timeline(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(1000), points[0].ID)
	assert.Equal(t, time.UnixMilli(1000).UTC(), points[0].Date)
	assert.Equal(t, 3.0, points[1].Score)
}

func TestServiceWithoutStorage(t *testing.T) {
	svc := NewHistoryService(zap.NewNop(), repository.DiscardStore{}, testCatalog(t), reportConfig)
	assert.False(t, svc.Persistent())

	subs, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, subs)
}
