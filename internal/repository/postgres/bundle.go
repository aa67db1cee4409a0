package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/database"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/pagination"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// BundleRepository implements repository.BundleRepository using PostgreSQL.
// The configuration document is stored as JSONB; the scalar columns are kept
// for listing.
type BundleRepository struct {
	db database.DBTX
}

// NewBundleRepository creates a new PostgreSQL-backed bundle repository.
func NewBundleRepository(db database.DBTX) *BundleRepository {
	return &BundleRepository{db: db}
}

// Get retrieves the configuration of a bundle product.
func (r *BundleRepository) Get(ctx context.Context, productID int) (cfg *domain.BundleConfiguration, err error) {
	query := `SELECT config FROM bundle_configurations WHERE product_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetBundleConfiguration", query)
	defer func() { end(err) }()

	var raw []byte
	if err = r.db.QueryRow(ctx, query, productID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("bundle configuration", strconv.Itoa(productID))
		}
		return nil, fmt.Errorf("get bundle configuration: %w", err)
	}

	cfg = &domain.BundleConfiguration{}
	if err = json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal bundle configuration: %w", err)
	}
	cfg.ProductID = productID
	return cfg, nil
}

// List returns one page of configurations, most recently updated first.
func (r *BundleRepository) List(ctx context.Context, page pagination.Params) (out []domain.BundleConfiguration, total int, err error) {
	query := `
		SELECT product_id, config, count(*) OVER() AS total_count
		FROM bundle_configurations
		ORDER BY updated_at DESC, product_id
		LIMIT $1 OFFSET $2`

	ctx, end := database.TraceQuery(ctx, "ListBundleConfigurations", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, page.PerPage, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bundle configurations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int
			raw       []byte
			cfg       domain.BundleConfiguration
		)
		if err = rows.Scan(&productID, &raw, &total); err != nil {
			return nil, 0, fmt.Errorf("scan bundle configuration: %w", err)
		}
		if err = json.Unmarshal(raw, &cfg); err != nil {
			return nil, 0, fmt.Errorf("unmarshal bundle configuration %d: %w", productID, err)
		}
		cfg.ProductID = productID
		out = append(out, cfg)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate bundle configurations: %w", err)
	}

	if out == nil {
		out = []domain.BundleConfiguration{}
	}
	return out, total, nil
}

// Save upserts the configuration for its product.
func (r *BundleRepository) Save(ctx context.Context, cfg *domain.BundleConfiguration) (err error) {
	query := `
		INSERT INTO bundle_configurations (product_id, title, bundle_type, is_enabled, config, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id) DO UPDATE
		SET title = EXCLUDED.title, bundle_type = EXCLUDED.bundle_type, is_enabled = EXCLUDED.is_enabled,
		    config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`

	ctx, end := database.TraceQuery(ctx, "SaveBundleConfiguration", query)
	defer func() { end(err) }()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal bundle configuration: %w", err)
	}

	if _, err = r.db.Exec(ctx, query,
		cfg.ProductID,
		cfg.Title,
		cfg.BundleType,
		cfg.IsEnabled,
		raw,
		cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert bundle configuration: %w", err)
	}
	return nil
}

// Delete removes the configuration of a bundle product.
func (r *BundleRepository) Delete(ctx context.Context, productID int) (err error) {
	query := `DELETE FROM bundle_configurations WHERE product_id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteBundleConfiguration", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, productID)
	if err != nil {
		return fmt.Errorf("delete bundle configuration: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("bundle configuration", strconv.Itoa(productID))
	}
	return nil
}
