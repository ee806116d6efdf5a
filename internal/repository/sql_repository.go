package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"go-photo-search/internal/logger"
	"go-photo-search/pkg/models"
)

// Driver names as registered with database/sql.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// reportTables maps each category to the table holding its reports.
var reportTables = map[models.Category]string{
	models.CategoryPerson:  "missing_persons",
	models.CategoryPet:     "missing_pets",
	models.CategoryDevice:  "stolen_devices",
	models.CategoryVehicle: "stolen_vehicles",
	models.CategoryItem:    "stolen_items",
}

const reportTableSchema = `CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    image_url TEXT,
    location TEXT,
    incident_date TEXT,
    status TEXT,
    title TEXT
)`

const listWithImagesQuery = `SELECT CAST(id AS TEXT), image_url,
    COALESCE(location, ''), COALESCE(CAST(incident_date AS TEXT), ''),
    COALESCE(status, ''), COALESCE(title, '')
FROM %s
WHERE image_url IS NOT NULL AND image_url <> ''
ORDER BY id`

// SQLCandidateRepository reads report photos from Postgres or SQLite.
type SQLCandidateRepository struct {
	db     *sql.DB
	driver string
}

// OpenSQLCandidateRepository opens the corpus database and checks that it
// answers.
func OpenSQLCandidateRepository(ctx context.Context, driver, dsn string) (*SQLCandidateRepository, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY on the same file
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return NewSQLCandidateRepositoryWithDB(db, driver), nil
}

// NewSQLCandidateRepositoryWithDB reuses an existing connection pool.
func NewSQLCandidateRepositoryWithDB(db *sql.DB, driver string) *SQLCandidateRepository {
	return &SQLCandidateRepository{db: db, driver: driver}
}

// EnsureSchema creates the report tables if they are missing.
func (r *SQLCandidateRepository) EnsureSchema(ctx context.Context) error {
	for _, category := range models.AllCategories() {
		table := reportTables[category]
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf(reportTableSchema, table)); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// DB exposes the underlying pool for seeding and maintenance.
func (r *SQLCandidateRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLCandidateRepository) ListCandidatesWithImages(ctx context.Context, categories ...models.Category) ([]models.CandidateImage, error) {
	if len(categories) == 0 {
		categories = models.AllCategories()
	}

	var out []models.CandidateImage
	seen := make(map[models.Category]bool, len(categories))
	for _, category := range categories {
		table, ok := reportTables[category]
		if !ok {
			logger.WithField("category", string(category)).Warn("Ignoring unknown category")
			continue
		}
		if seen[category] {
			continue
		}
		seen[category] = true

		rows, err := r.listTable(ctx, category, table)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}

	if out == nil {
		out = []models.CandidateImage{}
	}
	return out, nil
}

func (r *SQLCandidateRepository) listTable(ctx context.Context, category models.Category, table string) ([]models.CandidateImage, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(listWithImagesQuery, table))
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrRepositoryUnavailable, table, err)
	}
	defer rows.Close()

	var out []models.CandidateImage
	for rows.Next() {
		var id, imageURL, location, date, status, title string
		if err := rows.Scan(&id, &imageURL, &location, &date, &status, &title); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, models.CandidateImage{
			ID:            id,
			Category:      category,
			ImageLocation: imageURL,
			Metadata: map[string]string{
				models.MetaTitle:    title,
				models.MetaLocation: location,
				models.MetaDate:     date,
				models.MetaStatus:   status,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func (r *SQLCandidateRepository) Close() error {
	return r.db.Close()
}
