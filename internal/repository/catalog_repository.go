package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/service-order-api/internal/models"
)

// CatalogRepository reads reference data owned by the catalog.
type CatalogRepository struct {
	db sqlx.QueryerContext
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db sqlx.QueryerContext) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// LoadSnapshot reads every catalog table into one snapshot.
func (r *CatalogRepository) LoadSnapshot(ctx context.Context) (*models.CatalogSnapshot, error) {
	snapshot := &models.CatalogSnapshot{
		Departments:   map[string]models.Department{},
		Sectors:       map[string]models.Sector{},
		ActivityTypes: map[string]models.CatalogItem{},
		MachineTypes:  map[string]models.CatalogItem{},
		ReworkCauses:  map[string]models.CatalogItem{},
		LoadedAt:      time.Now().UTC(),
	}

	var departments []models.Department
	if err := sqlx.SelectContext(ctx, r.db, &departments, `SELECT id, name FROM departments ORDER BY name`); err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}
	for _, d := range departments {
		snapshot.Departments[d.ID] = d
	}

	var sectors []models.Sector
	if err := sqlx.SelectContext(ctx, r.db, &sectors, `SELECT id, department_id, name FROM sectors ORDER BY name`); err != nil {
		return nil, fmt.Errorf("load sectors: %w", err)
	}
	for _, s := range sectors {
		snapshot.Sectors[s.ID] = s
	}

	items := []struct {
		table string
		dest  map[string]models.CatalogItem
	}{
		{"activity_types", snapshot.ActivityTypes},
		{"machine_types", snapshot.MachineTypes},
		{"rework_causes", snapshot.ReworkCauses},
	}
	for _, it := range items {
		var rows []models.CatalogItem
		query := fmt.Sprintf(`SELECT id, label FROM %s ORDER BY label`, it.table)
		if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
			return nil, fmt.Errorf("load %s: %w", it.table, err)
		}
		for _, row := range rows {
			it.dest[row.ID] = row
		}
	}
	return snapshot, nil
}
