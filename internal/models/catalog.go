package models

import "time"

// Department is catalog reference data.
type Department struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Sector belongs to a department and scopes work and authority.
type Sector struct {
	ID           string `db:"id" json:"id"`
	DepartmentID string `db:"department_id" json:"departmentId"`
	Name         string `db:"name" json:"name"`
}

// CatalogItem is a generic code/label pair (activity types, machine types, causes).
type CatalogItem struct {
	ID    string `db:"id" json:"id"`
	Label string `db:"label" json:"label"`
}

// CatalogSnapshot is an immutable view of reference data taken once per command.
type CatalogSnapshot struct {
	Departments   map[string]Department  `json:"departments"`
	Sectors       map[string]Sector      `json:"sectors"`
	ActivityTypes map[string]CatalogItem `json:"activityTypes"`
	MachineTypes  map[string]CatalogItem `json:"machineTypes"`
	ReworkCauses  map[string]CatalogItem `json:"reworkCauses"`
	LoadedAt      time.Time              `json:"loadedAt"`
}

// Sector looks up a sector by id.
func (c *CatalogSnapshot) Sector(id string) (Sector, bool) {
	if c == nil {
		return Sector{}, false
	}
	s, ok := c.Sectors[id]
	return s, ok
}

// ReworkCause looks up a failure/rework cause by id.
func (c *CatalogSnapshot) ReworkCause(id string) (CatalogItem, bool) {
	if c == nil {
		return CatalogItem{}, false
	}
	item, ok := c.ReworkCauses[id]
	return item, ok
}

// SectorLabel returns the sector name, falling back to its id.
func (c *CatalogSnapshot) SectorLabel(id string) string {
	if s, ok := c.Sector(id); ok && s.Name != "" {
		return s.Name
	}
	return id
}
