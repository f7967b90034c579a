// Package store implements the record store on gorm.
package store

import (
	"context"
	stderrors "errors"
	"time"

	"Guardian/internal/models"
	"Guardian/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.AllModels()...)
}

func dbError(err error, format string, args ...interface{}) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.WrapCode(err, errors.CodeTransient, "record store timed out")
	}
	return errors.Transient(err, format, args...)
}

type AlertStore struct {
	db *gorm.DB
}

func NewAlertStore(db *gorm.DB) *AlertStore { return &AlertStore{db: db} }

// Save inserts or fully updates the alert.
func (s *AlertStore) Save(ctx context.Context, a *models.Alert) error {
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return dbError(err, "save alert %s", a.ID)
	}
	return nil
}

// Transition writes the lifecycle fields of a only while the stored status is one
// of from. It reports false when the row was missing or had moved on.
func (s *AlertStore) Transition(ctx context.Context, a *models.Alert, from ...string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND status IN ?", a.ID, from).
		Updates(map[string]interface{}{
			"status":                a.Status,
			"responding_officer_id": a.RespondingOfficerID,
			"acknowledged_at":       a.AcknowledgedAt,
			"resolved_at":           a.ResolvedAt,
			"updated_at":            a.UpdatedAt,
		})
	if res.Error != nil {
		return false, dbError(res.Error, "update alert %s", a.ID)
	}
	return res.RowsAffected > 0, nil
}

func (s *AlertStore) FindByID(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("alert %s not found", id)
	}
	if err != nil {
		return nil, dbError(err, "load alert %s", id)
	}
	return &a, nil
}

// FindAll returns one page of alerts matching filter and the total match count.
func (s *AlertStore) FindAll(ctx context.Context, filter models.AlertFilter, page models.Pagination) ([]models.Alert, int64, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&models.Alert{})
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ReporterID != "" {
		q = q.Where("reporter_id = ?", filter.ReporterID)
	}
	if filter.RespondingOfficerID != "" {
		q = q.Where("responding_officer_id = ?", filter.RespondingOfficerID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, dbError(err, "count alerts")
	}

	var alerts []models.Alert
	err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: page.Desc}).
		Order("id").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&alerts).Error
	if err != nil {
		return nil, 0, dbError(err, "list alerts")
	}
	return alerts, total, nil
}

type LocationStore struct {
	db *gorm.DB
}

func NewLocationStore(db *gorm.DB) *LocationStore { return &LocationStore{db: db} }

// Save upserts by officer id. An older fix never replaces a newer stored one.
func (s *LocationStore) Save(ctx context.Context, loc *models.OfficerLocation) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "officer_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.last_updated >= officer_locations.last_updated"},
		}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "last_updated"}),
	}).Create(loc).Error
	if err != nil {
		return dbError(err, "save location of %s", loc.OfficerID)
	}
	return nil
}

func (s *LocationStore) FindAll(ctx context.Context) ([]models.OfficerLocation, error) {
	var out []models.OfficerLocation
	if err := s.db.WithContext(ctx).Order("officer_id").Find(&out).Error; err != nil {
		return nil, dbError(err, "list locations")
	}
	return out, nil
}

func (s *LocationStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("last_updated < ?", before).Delete(&models.OfficerLocation{})
	if res.Error != nil {
		return 0, dbError(res.Error, "prune locations")
	}
	return res.RowsAffected, nil
}

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore { return &UserStore{db: db} }

func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) FindByNationalID(ctx context.Context, nationalID string) (*models.User, error) {
	return s.first(ctx, "national_id = ?", nationalID)
}

// Save is used for seeding; the service itself never writes users.
func (s *UserStore) Save(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return dbError(err, "save user %s", u.ID)
	}
	return nil
}

func (s *UserStore) first(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("user not found")
	}
	if err != nil {
		return nil, dbError(err, "load user")
	}
	return &u, nil
}
