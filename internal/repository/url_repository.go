package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snipgo/snip/internal/model"
)

// Open connects to MySQL and configures the connection pool. TranslateError
// is enabled so unique-constraint violations surface as
// gorm.ErrDuplicatedKey regardless of driver.
func Open(dsn string, maxIdleConns, maxOpenConns int) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)

	return db, nil
}

// URLRepository handles database operations for URL records
type URLRepository struct {
	db *gorm.DB
}

// NewURLRepository creates a repository over an open database handle and
// migrates the schema.
func NewURLRepository(db *gorm.DB) (*URLRepository, error) {
	if err := db.AutoMigrate(&model.URL{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &URLRepository{db: db}, nil
}

// Create persists a new URL record in two phases inside one transaction:
// insert with a unique placeholder code to obtain the assigned ID, then
// backfill the code derived from that ID via codeFor. A duplicate-key
// error from either phase (racing alias or code insert) is returned as
// gorm.ErrDuplicatedKey for the caller to translate.
func (r *URLRepository) Create(ctx context.Context, u *model.URL, codeFor func(id uint) (string, error)) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Placeholder must be unique: two in-flight creations may hold
		// uncommitted rows at the same time.
		u.ShortCode = "pending-" + uuid.NewString()
		if err := tx.Create(u).Error; err != nil {
			return err
		}

		code, err := codeFor(u.ID)
		if err != nil {
			return err
		}
		if err := tx.Model(u).Update("short_code", code).Error; err != nil {
			return err
		}
		u.ShortCode = code
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		return fmt.Errorf("failed to create URL record: %w", err)
	}
	return nil
}

// GetByID retrieves a URL record by its numeric ID, or nil when absent.
func (r *URLRepository) GetByID(ctx context.Context, id uint) (*model.URL, error) {
	var u model.URL
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get URL record: %w", err)
	}
	return &u, nil
}

// GetByIdentifier retrieves a URL record whose short code or custom alias
// equals the given identifier, or nil when absent. The two columns form a
// single lookup namespace.
func (r *URLRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.URL, error) {
	var u model.URL
	err := r.db.WithContext(ctx).
		Where("short_code = ? OR custom_alias = ?", identifier, identifier).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get URL record: %w", err)
	}
	return &u, nil
}

// IdentifierExists reports whether any record, active or not, holds the
// identifier as either its short code or custom alias.
func (r *URLRepository) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.URL{}).
		Where("short_code = ? OR custom_alias = ?", identifier, identifier).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check identifier: %w", err)
	}
	return count > 0, nil
}

// List returns records in creation order with offset pagination.
func (r *URLRepository) List(ctx context.Context, skip, limit int, activeOnly bool) ([]model.URL, error) {
	var urls []model.URL
	q := r.db.WithContext(ctx).Model(&model.URL{}).Order("id")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Offset(skip).Limit(limit).Find(&urls).Error; err != nil {
		return nil, fmt.Errorf("failed to list URL records: %w", err)
	}
	return urls, nil
}

// UpdateFields applies a column-scoped update carrying only the changed
// columns. A whole-record write-back would also persist the click counter
// and access time as read before the mutation, erasing any redirect that
// landed in between; scoping the write keeps those columns owned by the
// redirect path alone. Nil map values clear nullable columns.
func (r *URLRepository) UpdateFields(ctx context.Context, id uint, changes map[string]interface{}) error {
	if len(changes) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&model.URL{}).
		Where("id = ?", id).
		Updates(changes).Error
	if err != nil {
		return fmt.Errorf("failed to update URL record: %w", err)
	}
	return nil
}

// Deactivate flips is_active to false. It reports false when the record
// does not exist or is already inactive, making repeated soft deletes
// visible to the caller.
func (r *URLRepository) Deactivate(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.URL{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, fmt.Errorf("failed to deactivate URL record: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// HardDelete permanently removes the record, releasing its short code and
// custom alias. Reports false when nothing was deleted.
func (r *URLRepository) HardDelete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&model.URL{}, id)
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete URL record: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RecordClick increments the click counter and stamps the access time as
// one atomic update. The in-database increment keeps concurrent redirects
// from under-counting.
func (r *URLRepository) RecordClick(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.URL{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"click_count":      gorm.Expr("click_count + ?", 1),
			"last_accessed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to record click: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AllIdentifiers returns every short code and custom alias, used to seed
// the negative-lookup filter at startup.
func (r *URLRepository) AllIdentifiers(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).Model(&model.URL{}).
		Pluck("short_code", &codes).Error; err != nil {
		return nil, fmt.Errorf("failed to load short codes: %w", err)
	}

	var aliases []string
	if err := r.db.WithContext(ctx).Model(&model.URL{}).
		Where("custom_alias IS NOT NULL").
		Pluck("custom_alias", &aliases).Error; err != nil {
		return nil, fmt.Errorf("failed to load custom aliases: %w", err)
	}

	return append(codes, aliases...), nil
}

// Close closes the database connection
func (r *URLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
