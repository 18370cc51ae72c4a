// Package store provides an in-memory Store implementation (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hiraya/paluwagan-engine/paluwagan"
)

// Ensure Memory implements the transactional store.
var (
	_ paluwagan.TxStore = (*Memory)(nil)
	_ paluwagan.Store   = txView{}
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory guards a table set with one mutex. Exported methods take the lock
// and delegate to memTables; WithTx holds the write lock for the whole
// transaction and hands fn a txView that goes straight to the tables, the
// same single-writer discipline the SQLite store runs under. Snapshots are
// restored on error, giving tests real rollback semantics.
type Memory struct {
	mu     sync.RWMutex
	tables memTables
}

func NewMemory() *Memory {
	return &Memory{tables: newMemTables()}
}

// WithTx runs fn against the store while holding the write lock, restoring
// the pre-transaction snapshot if fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(paluwagan.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.tables.snapshot()
	if err := fn(txView{&m.tables}); err != nil {
		m.tables = snapshot
		return err
	}
	return nil
}

// txView gives the transaction callback lock-free table access; the outer
// WithTx already holds the write lock.
type txView struct{ *memTables }

func (m *Memory) lock() func() {
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) rlock() func() {
	m.mu.RLock()
	return m.mu.RUnlock
}

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) CreateGroup(ctx context.Context, g *paluwagan.Group) error {
	defer m.lock()()
	return m.tables.CreateGroup(ctx, g)
}

func (m *Memory) GetGroup(ctx context.Context, id paluwagan.GroupID) (*paluwagan.Group, error) {
	defer m.rlock()()
	return m.tables.GetGroup(ctx, id)
}

func (m *Memory) ListGroups(ctx context.Context) ([]paluwagan.Group, error) {
	defer m.rlock()()
	return m.tables.ListGroups(ctx)
}

func (m *Memory) ListGroupsByStatus(ctx context.Context, status paluwagan.GroupStatus) ([]paluwagan.Group, error) {
	defer m.rlock()()
	return m.tables.ListGroupsByStatus(ctx, status)
}

func (m *Memory) UpdateGroupStatus(ctx context.Context, id paluwagan.GroupID, from, to paluwagan.GroupStatus) error {
	defer m.lock()()
	return m.tables.UpdateGroupStatus(ctx, id, from, to)
}

func (m *Memory) CreateMember(ctx context.Context, mem *paluwagan.Member) error {
	defer m.lock()()
	return m.tables.CreateMember(ctx, mem)
}

func (m *Memory) GetMember(ctx context.Context, id paluwagan.MemberID) (*paluwagan.Member, error) {
	defer m.rlock()()
	return m.tables.GetMember(ctx, id)
}

func (m *Memory) GetMemberByUser(ctx context.Context, groupID paluwagan.GroupID, userID paluwagan.UserID) (*paluwagan.Member, error) {
	defer m.rlock()()
	return m.tables.GetMemberByUser(ctx, groupID, userID)
}

func (m *Memory) ListMembers(ctx context.Context, groupID paluwagan.GroupID) ([]paluwagan.Member, error) {
	defer m.rlock()()
	return m.tables.ListMembers(ctx, groupID)
}

func (m *Memory) UpdateMemberStatus(ctx context.Context, id paluwagan.MemberID, status paluwagan.MemberStatus) error {
	defer m.lock()()
	return m.tables.UpdateMemberStatus(ctx, id, status)
}

func (m *Memory) SetPayoutPosition(ctx context.Context, id paluwagan.MemberID, position int) error {
	defer m.lock()()
	return m.tables.SetPayoutPosition(ctx, id, position)
}

func (m *Memory) ListUserMemberships(ctx context.Context, userID paluwagan.UserID) ([]paluwagan.MembershipDetail, error) {
	defer m.rlock()()
	return m.tables.ListUserMemberships(ctx, userID)
}

func (m *Memory) CreateCycles(ctx context.Context, cycles []paluwagan.Cycle) error {
	defer m.lock()()
	return m.tables.CreateCycles(ctx, cycles)
}

func (m *Memory) GetCycle(ctx context.Context, id paluwagan.CycleID) (*paluwagan.Cycle, error) {
	defer m.rlock()()
	return m.tables.GetCycle(ctx, id)
}

func (m *Memory) ListCycles(ctx context.Context, groupID paluwagan.GroupID) ([]paluwagan.Cycle, error) {
	defer m.rlock()()
	return m.tables.ListCycles(ctx, groupID)
}

func (m *Memory) OpenCycle(ctx context.Context, groupID paluwagan.GroupID) (*paluwagan.Cycle, error) {
	defer m.rlock()()
	return m.tables.OpenCycle(ctx, groupID)
}

func (m *Memory) UpdateCycleStatus(ctx context.Context, id paluwagan.CycleID, from, to paluwagan.CycleStatus) error {
	defer m.lock()()
	return m.tables.UpdateCycleStatus(ctx, id, from, to)
}

func (m *Memory) CreateContributions(ctx context.Context, contributions []paluwagan.Contribution) error {
	defer m.lock()()
	return m.tables.CreateContributions(ctx, contributions)
}

func (m *Memory) GetContribution(ctx context.Context, id paluwagan.ContributionID) (*paluwagan.Contribution, error) {
	defer m.rlock()()
	return m.tables.GetContribution(ctx, id)
}

func (m *Memory) ListContributionsByCycle(ctx context.Context, cycleID paluwagan.CycleID) ([]paluwagan.Contribution, error) {
	defer m.rlock()()
	return m.tables.ListContributionsByCycle(ctx, cycleID)
}

func (m *Memory) ListContributionsByGroup(ctx context.Context, groupID paluwagan.GroupID) ([]paluwagan.Contribution, error) {
	defer m.rlock()()
	return m.tables.ListContributionsByGroup(ctx, groupID)
}

func (m *Memory) UpdateContribution(ctx context.Context, c *paluwagan.Contribution) error {
	defer m.lock()()
	return m.tables.UpdateContribution(ctx, c)
}

func (m *Memory) CreatePayout(ctx context.Context, p *paluwagan.Payout) error {
	defer m.lock()()
	return m.tables.CreatePayout(ctx, p)
}

func (m *Memory) GetPayout(ctx context.Context, id paluwagan.PayoutID) (*paluwagan.Payout, error) {
	defer m.rlock()()
	return m.tables.GetPayout(ctx, id)
}

func (m *Memory) GetPayoutByCycle(ctx context.Context, cycleID paluwagan.CycleID) (*paluwagan.Payout, error) {
	defer m.rlock()()
	return m.tables.GetPayoutByCycle(ctx, cycleID)
}

func (m *Memory) ListPayoutsByGroup(ctx context.Context, groupID paluwagan.GroupID) ([]paluwagan.Payout, error) {
	defer m.rlock()()
	return m.tables.ListPayoutsByGroup(ctx, groupID)
}

func (m *Memory) UpdatePayout(ctx context.Context, p *paluwagan.Payout) error {
	defer m.lock()()
	return m.tables.UpdatePayout(ctx, p)
}

func (m *Memory) AppendAudit(ctx context.Context, entry paluwagan.AuditEntry) error {
	defer m.lock()()
	return m.tables.AppendAudit(ctx, entry)
}

func (m *Memory) ListAudit(ctx context.Context, groupID paluwagan.GroupID, limit int) ([]paluwagan.AuditEntry, error) {
	defer m.rlock()()
	return m.tables.ListAudit(ctx, groupID, limit)
}

func (m *Memory) AppendNotification(ctx context.Context, n paluwagan.Notification) error {
	defer m.lock()()
	return m.tables.AppendNotification(ctx, n)
}

func (m *Memory) ListNotifications(ctx context.Context, userID paluwagan.UserID, unreadOnly bool) ([]paluwagan.Notification, error) {
	defer m.rlock()()
	return m.tables.ListNotifications(ctx, userID, unreadOnly)
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id string) error {
	defer m.lock()()
	return m.tables.MarkNotificationRead(ctx, id)
}

// =============================================================================
// TABLES
// =============================================================================

// memTables holds every table as a value map. Its methods never lock; the
// caller (Memory wrapper or WithTx) owns synchronization.
type memTables struct {
	groups        map[paluwagan.GroupID]paluwagan.Group
	members       map[paluwagan.MemberID]paluwagan.Member
	cycles        map[paluwagan.CycleID]paluwagan.Cycle
	contributions map[paluwagan.ContributionID]paluwagan.Contribution
	payouts       map[paluwagan.PayoutID]paluwagan.Payout
	audit         []paluwagan.AuditEntry
	notifications []paluwagan.Notification
}

func newMemTables() memTables {
	return memTables{
		groups:        make(map[paluwagan.GroupID]paluwagan.Group),
		members:       make(map[paluwagan.MemberID]paluwagan.Member),
		cycles:        make(map[paluwagan.CycleID]paluwagan.Cycle),
		contributions: make(map[paluwagan.ContributionID]paluwagan.Contribution),
		payouts:       make(map[paluwagan.PayoutID]paluwagan.Payout),
	}
}

func (t *memTables) snapshot() memTables {
	s := newMemTables()
	for k, v := range t.groups {
		s.groups[k] = v
	}
	for k, v := range t.members {
		s.members[k] = v
	}
	for k, v := range t.cycles {
		s.cycles[k] = v
	}
	for k, v := range t.contributions {
		s.contributions[k] = v
	}
	for k, v := range t.payouts {
		s.payouts[k] = v
	}
	s.audit = append([]paluwagan.AuditEntry(nil), t.audit...)
	s.notifications = append([]paluwagan.Notification(nil), t.notifications...)
	return s
}

// =============================================================================
// GROUPS
// =============================================================================

func (t *memTables) CreateGroup(_ context.Context, g *paluwagan.Group) error {
	if g.ID == "" {
		g.ID = paluwagan.GroupID(uuid.New().String())
	}
	t.groups[g.ID] = *g
	return nil
}

func (t *memTables) GetGroup(_ context.Context, id paluwagan.GroupID) (*paluwagan.Group, error) {
	g, ok := t.groups[id]
	if !ok {
		return nil, &paluwagan.NotFoundError{Entity: "group", ID: string(id)}
	}
	return &g, nil
}

func (t *memTables) ListGroups(_ context.Context) ([]paluwagan.Group, error) {
	out := make([]paluwagan.Group, 0, len(t.groups))
	for _, g := range t.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTables) ListGroupsByStatus(_ context.Context, status paluwagan.GroupStatus) ([]paluwagan.Group, error) {
	var out []paluwagan.Group
	for _, g := range t.groups {
		if g.Status == status {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTables) UpdateGroupStatus(_ context.Context, id paluwagan.GroupID, from, to paluwagan.GroupStatus) error {
	g, ok := t.groups[id]
	if !ok {
		return &paluwagan.NotFoundError{Entity: "group", ID: string(id)}
	}
	if g.Status != from {
		return paluwagan.ErrStateConflict
	}
	g.Status = to
	g.UpdatedAt = time.Now()
	t.groups[id] = g
	return nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (t *memTables) CreateMember(_ context.Context, mem *paluwagan.Member) error {
	if mem.ID == "" {
		mem.ID = paluwagan.MemberID(uuid.New().String())
	}
	t.members[mem.ID] = *mem
	return nil
}

func (t *memTables) GetMember(_ context.Context, id paluwagan.MemberID) (*paluwagan.Member, error) {
	mem, ok := t.members[id]
	if !ok {
		return nil, &paluwagan.NotFoundError{Entity: "member", ID: string(id)}
	}
	return &mem, nil
}

func (t *memTables) GetMemberByUser(_ context.Context, groupID paluwagan.GroupID, userID paluwagan.UserID) (*paluwagan.Member, error) {
	for _, mem := range t.members {
		if mem.GroupID == groupID && mem.UserID == userID && mem.Status != paluwagan.MemberRemoved {
			out := mem
			return &out, nil
		}
	}
	return nil, &paluwagan.NotFoundError{Entity: "member", ID: string(userID)}
}

func (t *memTables) ListMembers(_ context.Context, groupID paluwagan.GroupID) ([]paluwagan.Member, error) {
	var out []paluwagan.Member
	for _, mem := range t.members {
		if mem.GroupID == groupID {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (t *memTables) UpdateMemberStatus(_ context.Context, id paluwagan.MemberID, status paluwagan.MemberStatus) error {
	mem, ok := t.members[id]
	if !ok {
		return &paluwagan.NotFoundError{Entity: "member", ID: string(id)}
	}
	mem.Status = status
	mem.UpdatedAt = time.Now()
	t.members[id] = mem
	return nil
}

func (t *memTables) SetPayoutPosition(_ context.Context, id paluwagan.MemberID, position int) error {
	mem, ok := t.members[id]
	if !ok {
		return &paluwagan.NotFoundError{Entity: "member", ID: string(id)}
	}
	mem.PayoutPosition = &position
	t.members[id] = mem
	return nil
}

func (t *memTables) ListUserMemberships(_ context.Context, userID paluwagan.UserID) ([]paluwagan.MembershipDetail, error) {
	var out []paluwagan.MembershipDetail
	for _, mem := range t.members {
		if mem.UserID != userID {
			continue
		}
		g, ok := t.groups[mem.GroupID]
		if !ok {
			continue
		}
		out = append(out, paluwagan.MembershipDetail{
			GroupID:     g.ID,
			GroupName:   g.Name,
			GroupStatus: g.Status,
			Status:      mem.Status,
			Amount:      g.Amount,
			Frequency:   g.Frequency,
		})
	}
	return out, nil
}

// =============================================================================
// CYCLES
// =============================================================================

func (t *memTables) CreateCycles(_ context.Context, cycles []paluwagan.Cycle) error {
	for _, c := range cycles {
		t.cycles[c.ID] = c
	}
	return nil
}

func (t *memTables) GetCycle(_ context.Context, id paluwagan.CycleID) (*paluwagan.Cycle, error) {
	c, ok := t.cycles[id]
	if !ok {
		return nil, &paluwagan.NotFoundError{Entity: "cycle", ID: string(id)}
	}
	return &c, nil
}

func (t *memTables) ListCycles(_ context.Context, groupID paluwagan.GroupID) ([]paluwagan.Cycle, error) {
	var out []paluwagan.Cycle
	for _, c := range t.cycles {
		if c.GroupID == groupID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (t *memTables) OpenCycle(_ context.Context, groupID paluwagan.GroupID) (*paluwagan.Cycle, error) {
	for _, c := range t.cycles {
		if c.GroupID == groupID && c.Status == paluwagan.CycleOpen {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (t *memTables) UpdateCycleStatus(_ context.Context, id paluwagan.CycleID, from, to paluwagan.CycleStatus) error {
	c, ok := t.cycles[id]
	if !ok {
		return &paluwagan.NotFoundError{Entity: "cycle", ID: string(id)}
	}
	if c.Status != from {
		return paluwagan.ErrStateConflict
	}
	c.Status = to
	t.cycles[id] = c
	return nil
}

// =============================================================================
// CONTRIBUTIONS
// =============================================================================

func (t *memTables) CreateContributions(_ context.Context, contributions []paluwagan.Contribution) error {
	for _, c := range contributions {
		t.contributions[c.ID] = c
	}
	return nil
}

func (t *memTables) GetContribution(_ context.Context, id paluwagan.ContributionID) (*paluwagan.Contribution, error) {
	c, ok := t.contributions[id]
	if !ok {
		return nil, &paluwagan.NotFoundError{Entity: "contribution", ID: string(id)}
	}
	return &c, nil
}

func (t *memTables) ListContributionsByCycle(_ context.Context, cycleID paluwagan.CycleID) ([]paluwagan.Contribution, error) {
	var out []paluwagan.Contribution
	for _, c := range t.contributions {
		if c.CycleID == cycleID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTables) ListContributionsByGroup(_ context.Context, groupID paluwagan.GroupID) ([]paluwagan.Contribution, error) {
	var out []paluwagan.Contribution
	for _, c := range t.contributions {
		if c.GroupID == groupID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTables) UpdateContribution(_ context.Context, c *paluwagan.Contribution) error {
	if _, ok := t.contributions[c.ID]; !ok {
		return &paluwagan.NotFoundError{Entity: "contribution", ID: string(c.ID)}
	}
	t.contributions[c.ID] = *c
	return nil
}

// =============================================================================
// PAYOUTS
// =============================================================================

func (t *memTables) CreatePayout(_ context.Context, p *paluwagan.Payout) error {
	if p.ID == "" {
		p.ID = paluwagan.PayoutID(uuid.New().String())
	}
	t.payouts[p.ID] = *p
	return nil
}

func (t *memTables) GetPayout(_ context.Context, id paluwagan.PayoutID) (*paluwagan.Payout, error) {
	p, ok := t.payouts[id]
	if !ok {
		return nil, &paluwagan.NotFoundError{Entity: "payout", ID: string(id)}
	}
	return &p, nil
}

func (t *memTables) GetPayoutByCycle(_ context.Context, cycleID paluwagan.CycleID) (*paluwagan.Payout, error) {
	for _, p := range t.payouts {
		if p.CycleID == cycleID {
			out := p
			return &out, nil
		}
	}
	return nil, &paluwagan.NotFoundError{Entity: "payout", ID: string(cycleID)}
}

func (t *memTables) ListPayoutsByGroup(_ context.Context, groupID paluwagan.GroupID) ([]paluwagan.Payout, error) {
	var out []paluwagan.Payout
	for _, p := range t.payouts {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTables) UpdatePayout(_ context.Context, p *paluwagan.Payout) error {
	if _, ok := t.payouts[p.ID]; !ok {
		return &paluwagan.NotFoundError{Entity: "payout", ID: string(p.ID)}
	}
	t.payouts[p.ID] = *p
	return nil
}

// =============================================================================
// AUDIT + NOTIFICATIONS (append-only)
// =============================================================================

func (t *memTables) AppendAudit(_ context.Context, entry paluwagan.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	t.audit = append(t.audit, entry)
	return nil
}

func (t *memTables) ListAudit(_ context.Context, groupID paluwagan.GroupID, limit int) ([]paluwagan.AuditEntry, error) {
	var out []paluwagan.AuditEntry
	for i := len(t.audit) - 1; i >= 0; i-- {
		if t.audit[i].GroupID != groupID {
			continue
		}
		out = append(out, t.audit[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (t *memTables) AppendNotification(_ context.Context, n paluwagan.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	t.notifications = append(t.notifications, n)
	return nil
}

func (t *memTables) ListNotifications(_ context.Context, userID paluwagan.UserID, unreadOnly bool) ([]paluwagan.Notification, error) {
	var out []paluwagan.Notification
	for i := len(t.notifications) - 1; i >= 0; i-- {
		n := t.notifications[i]
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (t *memTables) MarkNotificationRead(_ context.Context, id string) error {
	for i := range t.notifications {
		if t.notifications[i].ID == id {
			t.notifications[i].Read = true
			return nil
		}
	}
	return &paluwagan.NotFoundError{Entity: "notification", ID: id}
}
