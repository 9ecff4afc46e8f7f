package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/service-order-api/internal/models"
)

// MemoryReference serves catalog and directory lookups from process memory.
type MemoryReference struct {
	mu       sync.RWMutex
	snapshot models.CatalogSnapshot
	contacts map[string]models.UserContact
}

// NewMemoryReference constructs an empty reference source.
func NewMemoryReference() *MemoryReference {
	return &MemoryReference{
		snapshot: models.CatalogSnapshot{
			Departments:   map[string]models.Department{},
			Sectors:       map[string]models.Sector{},
			ActivityTypes: map[string]models.CatalogItem{},
			MachineTypes:  map[string]models.CatalogItem{},
			ReworkCauses:  map[string]models.CatalogItem{},
		},
		contacts: map[string]models.UserContact{},
	}
}

// PutDepartment registers a department.
func (m *MemoryReference) PutDepartment(d models.Department) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Departments[d.ID] = d
}

// PutSector registers a sector.
func (m *MemoryReference) PutSector(s models.Sector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Sectors[s.ID] = s
}

// PutReworkCause registers a failure cause.
func (m *MemoryReference) PutReworkCause(item models.CatalogItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.ReworkCauses[item.ID] = item
}

// PutContact registers a directory entry.
func (m *MemoryReference) PutContact(c models.UserContact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.ID] = c
}

// LoadSnapshot returns a copy of the registered catalog.
func (m *MemoryReference) LoadSnapshot(_ context.Context) (*models.CatalogSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := &models.CatalogSnapshot{
		Departments:   make(map[string]models.Department, len(m.snapshot.Departments)),
		Sectors:       make(map[string]models.Sector, len(m.snapshot.Sectors)),
		ActivityTypes: make(map[string]models.CatalogItem, len(m.snapshot.ActivityTypes)),
		MachineTypes:  make(map[string]models.CatalogItem, len(m.snapshot.MachineTypes)),
		ReworkCauses:  make(map[string]models.CatalogItem, len(m.snapshot.ReworkCauses)),
		LoadedAt:      time.Now().UTC(),
	}
	for k, v := range m.snapshot.Departments {
		out.Departments[k] = v
	}
	for k, v := range m.snapshot.Sectors {
		out.Sectors[k] = v
	}
	for k, v := range m.snapshot.ActivityTypes {
		out.ActivityTypes[k] = v
	}
	for k, v := range m.snapshot.MachineTypes {
		out.MachineTypes[k] = v
	}
	for k, v := range m.snapshot.ReworkCauses {
		out.ReworkCauses[k] = v
	}
	return out, nil
}

// FindContact returns the registered contact or sql.ErrNoRows.
func (m *MemoryReference) FindContact(_ context.Context, id string) (*models.UserContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}
