package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/service-order-api/internal/models"
)

// Fault points understood by MemoryStore.InjectFault.
const (
	OpOrderUpdate     = "orders.update"
	OpTimeEntryCreate = "time_entries.create"
	OpTimeEntryUpdate = "time_entries.update"
	OpScheduleCreate  = "schedules.create"
	OpScheduleUpdate  = "schedules.update"
	OpScheduleHistory = "schedules.history"
	OpIssueCreate     = "issues.create"
	OpIssueUpdate     = "issues.update"
	OpIssueLabels     = "issues.labels"
	OpAuditCreate     = "audit.create"
)

type memData struct {
	orders      map[string]models.ServiceOrder
	timeEntries map[string]models.TimeEntry
	schedules   map[string]models.ScheduleEntry
	issues      map[string]models.PendingIssue
	history     []models.ScheduleHistory
	audit       []models.AuditLog
}

func newMemData() *memData {
	return &memData{
		orders:      map[string]models.ServiceOrder{},
		timeEntries: map[string]models.TimeEntry{},
		schedules:   map[string]models.ScheduleEntry{},
		issues:      map[string]models.PendingIssue{},
	}
}

func (d *memData) clone() *memData {
	out := newMemData()
	for k, v := range d.orders {
		out.orders[k] = v
	}
	for k, v := range d.timeEntries {
		out.timeEntries[k] = v
	}
	for k, v := range d.schedules {
		out.schedules[k] = v
	}
	for k, v := range d.issues {
		out.issues[k] = v
	}
	out.history = append(out.history, d.history...)
	out.audit = append(out.audit, d.audit...)
	return out
}

// MemoryStore is a process-local UnitOfWork. Transactions are serialized and
// work on a copy of the data that replaces the committed state on success.
type MemoryStore struct {
	mu     sync.Mutex
	data   *memData
	faults map[string]error
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData(), faults: map[string]error{}}
}

// WithinTx runs fn against a private copy and commits it when fn returns nil.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := m.data.clone()
	if err := fn(ctx, m.bind(working, false)); err != nil {
		return err
	}
	m.data = working
	return nil
}

// Stores returns stores operating directly on committed data.
func (m *MemoryStore) Stores() Stores {
	return m.bind(nil, true)
}

// InjectFault makes the next call of op fail with err. Used to exercise
// rollback paths.
func (m *MemoryStore) InjectFault(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = err
}

func (m *MemoryStore) bind(data *memData, guarded bool) Stores {
	v := &memView{store: m, data: data, guarded: guarded}
	return Stores{
		Orders:      memOrders{v},
		TimeEntries: memTimeEntries{v},
		Schedules:   memSchedules{v},
		Issues:      memIssues{v},
		Audit:       memAudit{v},
	}
}

// PutOrder seeds or replaces an order.
func (m *MemoryStore) PutOrder(order models.ServiceOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	m.data.orders[order.Number] = order
}

// PutTimeEntry seeds or replaces a time entry.
func (m *MemoryStore) PutTimeEntry(entry models.TimeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.timeEntries[entry.ID] = entry
}

// PutSchedule seeds or replaces a schedule entry.
func (m *MemoryStore) PutSchedule(entry models.ScheduleEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.schedules[entry.ID] = entry
}

// PutIssue seeds or replaces a pending issue.
func (m *MemoryStore) PutIssue(issue models.PendingIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.issues[issue.ID] = issue
}

// Order returns the committed order.
func (m *MemoryStore) Order(number string) (models.ServiceOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.data.orders[number]
	return o, ok
}

// TimeEntry returns the committed time entry.
func (m *MemoryStore) TimeEntry(id string) (models.TimeEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data.timeEntries[id]
	return e, ok
}

// Schedule returns the committed schedule entry.
func (m *MemoryStore) Schedule(id string) (models.ScheduleEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data.schedules[id]
	return e, ok
}

// Issue returns the committed pending issue.
func (m *MemoryStore) Issue(id string) (models.PendingIssue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.data.issues[id]
	return i, ok
}

// AuditLogs returns a copy of the committed audit trail.
func (m *MemoryStore) AuditLogs() []models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditLog(nil), m.data.audit...)
}

// History returns a copy of the committed reassignment history.
func (m *MemoryStore) History() []models.ScheduleHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ScheduleHistory(nil), m.data.history...)
}

// memView resolves the data set an operation works on. Unguarded views
// belong to a transaction that already holds the store mutex.
type memView struct {
	store   *MemoryStore
	data    *memData
	guarded bool
}

func (v *memView) do(op string, fn func(d *memData) error) error {
	if v.guarded {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	if op != "" {
		if err, ok := v.store.faults[op]; ok {
			delete(v.store.faults, op)
			return err
		}
	}
	d := v.data
	if d == nil {
		d = v.store.data
	}
	return fn(d)
}

type memOrders struct{ v *memView }

func (s memOrders) Get(_ context.Context, number string) (*models.ServiceOrder, error) {
	var out *models.ServiceOrder
	err := s.v.do("", func(d *memData) error {
		o, ok := d.orders[number]
		if !ok {
			return sql.ErrNoRows
		}
		out = &o
		return nil
	})
	return out, err
}

func (s memOrders) GetForUpdate(ctx context.Context, number string) (*models.ServiceOrder, error) {
	return s.Get(ctx, number)
}

func (s memOrders) Update(_ context.Context, order *models.ServiceOrder) error {
	return s.v.do(OpOrderUpdate, func(d *memData) error {
		cur, ok := d.orders[order.Number]
		if !ok {
			return sql.ErrNoRows
		}
		next := *order
		if next.UpdatedAt.IsZero() {
			next.UpdatedAt = time.Now().UTC()
		}
		// checkpoints never regress
		if cur.InitialTestsDone {
			next.InitialTestsDone, next.InitialTestsAt, next.InitialTestsBy = true, cur.InitialTestsAt, cur.InitialTestsBy
		}
		if cur.PartialTestsDone {
			next.PartialTestsDone, next.PartialTestsAt, next.PartialTestsBy = true, cur.PartialTestsAt, cur.PartialTestsBy
		}
		if cur.FinalTestsDone {
			next.FinalTestsDone, next.FinalTestsAt, next.FinalTestsBy = true, cur.FinalTestsAt, cur.FinalTestsBy
		}
		next.CreatedAt = cur.CreatedAt
		d.orders[order.Number] = next
		return nil
	})
}

func (s memOrders) List(_ context.Context, filter models.OrderFilter) ([]models.ServiceOrder, error) {
	var out []models.ServiceOrder
	err := s.v.do("", func(d *memData) error {
		statuses := map[models.OrderStatus]bool{}
		for _, st := range filter.Status {
			statuses[st] = true
		}
		customer := strings.ToLower(filter.Customer)
		for _, o := range d.orders {
			if len(statuses) > 0 && !statuses[o.Status] {
				continue
			}
			if customer != "" && !strings.Contains(strings.ToLower(o.Customer), customer) {
				continue
			}
			if filter.MinPriority != nil && o.Priority < *filter.MinPriority {
				continue
			}
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Number < out[j].Number
	})

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []models.ServiceOrder{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

type memTimeEntries struct{ v *memView }

func (s memTimeEntries) Create(_ context.Context, entry *models.TimeEntry) error {
	return s.v.do(OpTimeEntryCreate, func(d *memData) error {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		if entry.UpdatedAt.IsZero() {
			entry.UpdatedAt = entry.CreatedAt
		}
		d.timeEntries[entry.ID] = *entry
		return nil
	})
}

func (s memTimeEntries) Get(_ context.Context, id string) (*models.TimeEntry, error) {
	var out *models.TimeEntry
	err := s.v.do("", func(d *memData) error {
		e, ok := d.timeEntries[id]
		if !ok {
			return sql.ErrNoRows
		}
		out = &e
		return nil
	})
	return out, err
}

func (s memTimeEntries) Update(_ context.Context, entry *models.TimeEntry) error {
	return s.v.do(OpTimeEntryUpdate, func(d *memData) error {
		cur, ok := d.timeEntries[entry.ID]
		if !ok {
			return sql.ErrNoRows
		}
		entry.UpdatedAt = time.Now().UTC()
		next := *entry
		next.CreatedAt = cur.CreatedAt
		d.timeEntries[entry.ID] = next
		return nil
	})
}

func (s memTimeEntries) ListOpenByOrder(ctx context.Context, orderNumber string) ([]models.TimeEntry, error) {
	return s.list(func(e models.TimeEntry) bool { return e.OrderNumber == orderNumber && e.Open() })
}

func (s memTimeEntries) ListByOrder(ctx context.Context, orderNumber string) ([]models.TimeEntry, error) {
	return s.list(func(e models.TimeEntry) bool { return e.OrderNumber == orderNumber })
}

func (s memTimeEntries) list(match func(models.TimeEntry) bool) ([]models.TimeEntry, error) {
	var out []models.TimeEntry
	err := s.v.do("", func(d *memData) error {
		for _, e := range d.timeEntries {
			if match(e) {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type memSchedules struct{ v *memView }

func (s memSchedules) Create(_ context.Context, entry *models.ScheduleEntry) error {
	return s.v.do(OpScheduleCreate, func(d *memData) error {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.Status == "" {
			entry.Status = models.ScheduleStatusPlanned
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		if entry.UpdatedAt.IsZero() {
			entry.UpdatedAt = entry.CreatedAt
		}
		d.schedules[entry.ID] = *entry
		return nil
	})
}

func (s memSchedules) Get(_ context.Context, id string) (*models.ScheduleEntry, error) {
	var out *models.ScheduleEntry
	err := s.v.do("", func(d *memData) error {
		e, ok := d.schedules[id]
		if !ok {
			return sql.ErrNoRows
		}
		out = &e
		return nil
	})
	return out, err
}

func (s memSchedules) Update(_ context.Context, entry *models.ScheduleEntry) error {
	return s.v.do(OpScheduleUpdate, func(d *memData) error {
		cur, ok := d.schedules[entry.ID]
		if !ok {
			return sql.ErrNoRows
		}
		if entry.UpdatedAt.IsZero() {
			entry.UpdatedAt = time.Now().UTC()
		}
		next := *entry
		next.CreatedAt = cur.CreatedAt
		next.CreatedBy = cur.CreatedBy
		d.schedules[entry.ID] = next
		return nil
	})
}

func (s memSchedules) ListByOrder(_ context.Context, orderNumber string) ([]models.ScheduleEntry, error) {
	return s.list(func(e models.ScheduleEntry) bool { return e.OrderNumber == orderNumber })
}

func (s memSchedules) ListByOrderSector(_ context.Context, orderNumber, sectorID string, statuses ...models.ScheduleStatus) ([]models.ScheduleEntry, error) {
	allowed := map[models.ScheduleStatus]bool{}
	for _, st := range statuses {
		allowed[st] = true
	}
	return s.list(func(e models.ScheduleEntry) bool {
		if e.OrderNumber != orderNumber || e.SectorID != sectorID {
			return false
		}
		return len(allowed) == 0 || allowed[e.Status]
	})
}

func (s memSchedules) list(match func(models.ScheduleEntry) bool) ([]models.ScheduleEntry, error) {
	var out []models.ScheduleEntry
	err := s.v.do("", func(d *memData) error {
		for _, e := range d.schedules {
			if match(e) {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlannedStart.Equal(out[j].PlannedStart) {
			return out[i].PlannedStart.Before(out[j].PlannedStart)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (s memSchedules) AddHistory(_ context.Context, history *models.ScheduleHistory) error {
	return s.v.do(OpScheduleHistory, func(d *memData) error {
		if history.ID == "" {
			history.ID = uuid.NewString()
		}
		if history.ChangedAt.IsZero() {
			history.ChangedAt = time.Now().UTC()
		}
		d.history = append(d.history, *history)
		return nil
	})
}

type memIssues struct{ v *memView }

func (s memIssues) Create(_ context.Context, issue *models.PendingIssue) error {
	return s.v.do(OpIssueCreate, func(d *memData) error {
		if issue.ID == "" {
			issue.ID = uuid.NewString()
		}
		if issue.Status == "" {
			issue.Status = models.IssueStatusOpen
		}
		if issue.OpenedAt.IsZero() {
			issue.OpenedAt = time.Now().UTC()
		}
		d.issues[issue.ID] = *issue
		return nil
	})
}

func (s memIssues) Get(_ context.Context, id string) (*models.PendingIssue, error) {
	var out *models.PendingIssue
	err := s.v.do("", func(d *memData) error {
		i, ok := d.issues[id]
		if !ok {
			return sql.ErrNoRows
		}
		out = &i
		return nil
	})
	return out, err
}

func (s memIssues) Update(_ context.Context, issue *models.PendingIssue) error {
	return s.v.do(OpIssueUpdate, func(d *memData) error {
		if _, ok := d.issues[issue.ID]; !ok {
			return sql.ErrNoRows
		}
		d.issues[issue.ID] = *issue
		return nil
	})
}

func (s memIssues) ListByOrder(_ context.Context, orderNumber string) ([]models.PendingIssue, error) {
	var out []models.PendingIssue
	err := s.v.do("", func(d *memData) error {
		for _, i := range d.issues {
			if i.OrderNumber == orderNumber {
				out = append(out, i)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (s memIssues) CountOpen(_ context.Context, orderNumber string) (int, error) {
	count := 0
	err := s.v.do("", func(d *memData) error {
		for _, i := range d.issues {
			if i.OrderNumber == orderNumber && i.Status == models.IssueStatusOpen {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (s memIssues) UpdateCustomerLabel(_ context.Context, orderNumber, label string) (int64, error) {
	var changed int64
	err := s.v.do(OpIssueLabels, func(d *memData) error {
		for id, i := range d.issues {
			if i.OrderNumber == orderNumber && i.CustomerLabel != label {
				i.CustomerLabel = label
				d.issues[id] = i
				changed++
			}
		}
		return nil
	})
	return changed, err
}

type memAudit struct{ v *memView }

func (s memAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	return s.v.do(OpAuditCreate, func(d *memData) error {
		if log.ID == "" {
			log.ID = uuid.NewString()
		}
		if log.CreatedAt.IsZero() {
			log.CreatedAt = time.Now().UTC()
		}
		d.audit = append(d.audit, *log)
		return nil
	})
}
