package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"Guardian/internal/models"
	"Guardian/pkg/errors"
	"Guardian/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := util.InitDatabase("sqlite", dsn, false)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestAlertStoreRoundTrip(t *testing.T) {
	s := NewAlertStore(newTestDB(t))
	ctx := context.Background()
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	a := &models.Alert{
		ID:         "a-1",
		Kind:       models.AlertKindSOS,
		Status:     models.AlertStatusActive,
		Latitude:   12.97,
		Longitude:  77.59,
		Details:    "help",
		ReporterID: "citizen-1",
		CreatedAt:  created,
	}
	require.NoError(t, s.Save(ctx, a))

	got, err := s.FindByID(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusActive, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Nil(t, got.AcknowledgedAt)

	ackAt := created.Add(time.Minute)
	got.Status = models.AlertStatusAcknowledged
	got.RespondingOfficerID = "officer-1"
	got.AcknowledgedAt = &ackAt
	require.NoError(t, s.Save(ctx, got))

	again, err := s.FindByID(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, again.Status)
	assert.Equal(t, "officer-1", again.RespondingOfficerID)
	require.NotNil(t, again.AcknowledgedAt)
	assert.True(t, ackAt.Equal(*again.AcknowledgedAt))

	_, err = s.FindByID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestAlertTransitionIsConditional(t *testing.T) {
	s := NewAlertStore(newTestDB(t))
	ctx := context.Background()
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, s.Save(ctx, &models.Alert{ID: "a-1", Status: models.AlertStatusActive, CreatedAt: created}))

	resolvedAt := created.Add(time.Minute)
	resolved := &models.Alert{ID: "a-1", Status: models.AlertStatusResolved, ResolvedAt: &resolvedAt, UpdatedAt: resolvedAt}
	ok, err := s.Transition(ctx, resolved, models.AlertStatusActive, models.AlertStatusAcknowledged)
	require.NoError(t, err)
	assert.True(t, ok)

	// a late acknowledge must not reopen it
	ackAt := created.Add(2 * time.Minute)
	ack := &models.Alert{ID: "a-1", Status: models.AlertStatusAcknowledged, RespondingOfficerID: "officer-1", AcknowledgedAt: &ackAt, UpdatedAt: ackAt}
	ok, err = s.Transition(ctx, ack, models.AlertStatusActive, models.AlertStatusAcknowledged)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.FindByID(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, got.Status)
	assert.Empty(t, got.RespondingOfficerID)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, resolvedAt.Equal(*got.ResolvedAt))
	assert.True(t, created.Equal(got.CreatedAt))

	ok, err = s.Transition(ctx, &models.Alert{ID: "missing", Status: models.AlertStatusResolved}, models.AlertStatusActive)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlertDefaultsOnCreate(t *testing.T) {
	s := NewAlertStore(newTestDB(t))
	a := &models.Alert{Latitude: 1, Longitude: 2}
	require.NoError(t, s.Save(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, models.AlertKindSOS, a.Kind)
	assert.Equal(t, models.AlertStatusActive, a.Status)
}

func TestAlertStoreFindAll(t *testing.T) {
	s := NewAlertStore(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		status := models.AlertStatusActive
		if i%2 == 1 {
			status = models.AlertStatusResolved
		}
		require.NoError(t, s.Save(ctx, &models.Alert{
			ID:         fmt.Sprintf("a-%d", i),
			Kind:       models.AlertKindSOS,
			Status:     status,
			ReporterID: fmt.Sprintf("citizen-%d", i%2),
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.Save(ctx, &models.Alert{
		ID: "m-1", Kind: models.AlertKindMedical, Status: models.AlertStatusActive, CreatedAt: base,
	}))

	all, total, err := s.FindAll(ctx, models.AlertFilter{Kind: models.AlertKindSOS}, models.Pagination{PageNum: 1, PageSize: 2, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, all, 2)
	assert.Equal(t, "a-4", all[0].ID)
	assert.Equal(t, "a-3", all[1].ID)

	page3, _, err := s.FindAll(ctx, models.AlertFilter{Kind: models.AlertKindSOS}, models.Pagination{PageNum: 3, PageSize: 2, Desc: true})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "a-0", page3[0].ID)

	resolved, total, err := s.FindAll(ctx, models.AlertFilter{Status: models.AlertStatusResolved}, models.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "a-1", resolved[0].ID)

	mine, total, err := s.FindAll(ctx, models.AlertFilter{ReporterID: "citizen-0", Since: base.Add(time.Hour)}, models.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"a-2", "a-4"}, []string{mine[0].ID, mine[1].ID})
}

func TestLocationStore(t *testing.T) {
	s := NewLocationStore(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, &models.OfficerLocation{OfficerID: "o1", Latitude: 1, Longitude: 1, LastUpdated: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Save(ctx, &models.OfficerLocation{OfficerID: "o2", Latitude: 2, Longitude: 2, LastUpdated: now}))
	require.NoError(t, s.Save(ctx, &models.OfficerLocation{OfficerID: "o1", Latitude: 3, Longitude: 3, LastUpdated: now.Add(-47 * time.Hour)}))

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 3.0, all[0].Latitude)

	n, err := s.DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err = s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "o2", all[0].OfficerID)
}

func TestLocationStoreKeepsNewestFix(t *testing.T) {
	s := NewLocationStore(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, &models.OfficerLocation{OfficerID: "o1", Latitude: 5, Longitude: 5, LastUpdated: now}))
	// a delayed ping with an older fix lands second
	require.NoError(t, s.Save(ctx, &models.OfficerLocation{OfficerID: "o1", Latitude: 4, Longitude: 4, LastUpdated: now.Add(-time.Minute)}))

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 5.0, all[0].Latitude)
	assert.True(t, now.Equal(all[0].LastUpdated))
}

func TestUserStore(t *testing.T) {
	s := NewUserStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &models.User{
		ID: "officer-1", Name: "Officer One", Role: models.RoleOfficer, NationalID: "234567890123",
	}))

	u, err := s.FindByNationalID(ctx, "234567890123")
	require.NoError(t, err)
	assert.Equal(t, "officer-1", u.ID)
	assert.True(t, u.IsOfficer())

	u, err = s.FindByID(ctx, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, "Officer One", u.Name)

	_, err = s.FindByNationalID(ctx, "999999999999")
	assert.True(t, errors.IsNotFound(err))
}

func TestCanceledContextIsTransient(t *testing.T) {
	s := NewAlertStore(newTestDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Save(ctx, &models.Alert{ID: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}
