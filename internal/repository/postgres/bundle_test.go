package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/pagination"
)

func sampleConfig() *domain.BundleConfiguration {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cfg := domain.NewBundleConfiguration(501, now)
	cfg.Title = "Build Your Set"
	cfg.IsEnabled = true
	cfg.UniqueProducts = []int{12}
	cfg.PricingMode = domain.PricingSum
	cfg.AddItem(now)
	return cfg
}

func TestBundleRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := sampleConfig()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT config FROM bundle_configurations").
		WithArgs(501).
		WillReturnRows(pgxmock.NewRows([]string{"config"}).AddRow(raw))

	got, err := NewBundleRepository(mock).Get(context.Background(), 501)
	require.NoError(t, err)
	assert.Equal(t, cfg.Title, got.Title)
	assert.Equal(t, cfg.Items[0].ID, got.Items[0].ID)
	assert.Equal(t, []int{12}, got.UniqueProducts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBundleRepository_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT config FROM bundle_configurations").
		WithArgs(7).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewBundleRepository(mock).Get(context.Background(), 7)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBundleRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := sampleConfig()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	page := pagination.New(2, 10)
	mock.ExpectQuery("SELECT product_id, config, count").
		WithArgs(10, 10).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "config", "total_count"}).
			AddRow(501, raw, 11))

	got, total, err := NewBundleRepository(mock).List(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, got, 1)
	assert.Equal(t, 501, got[0].ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBundleRepository_List_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT product_id, config, count").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "config", "total_count"}))

	got, total, err := NewBundleRepository(mock).List(context.Background(), pagination.DefaultParams())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestBundleRepository_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := sampleConfig()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO bundle_configurations").
		WithArgs(cfg.ProductID, cfg.Title, cfg.BundleType, cfg.IsEnabled, raw, cfg.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewBundleRepository(mock).Save(context.Background(), cfg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBundleRepository_Save_ExecError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO bundle_configurations").
		WillReturnError(errors.New("connection refused"))

	err = NewBundleRepository(mock).Save(context.Background(), sampleConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert bundle configuration")
}

func TestBundleRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM bundle_configurations").
		WithArgs(501).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM bundle_configurations").
		WithArgs(502).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewBundleRepository(mock)
	require.NoError(t, repo.Delete(context.Background(), 501))
	assert.ErrorIs(t, repo.Delete(context.Background(), 502), apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_Embedded(t *testing.T) {
	names, err := fs.Glob(Migrations(), "*.up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_bundle_configurations.up.sql", "002_payment_attempts.up.sql"}, names)
}
