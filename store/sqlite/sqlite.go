/*
Package sqlite provides the SQLite-backed implementation of the paluwagan
store interfaces.

PURPOSE:
  Implements paluwagan.TxStore over SQLite. The same SQL shapes port to
  PostgreSQL with minor dialect changes; the Store interface is the seam.

SCHEMA ENFORCEMENT:
  Invariants from the domain model are backed by the schema, not only code:
  - idx_members_one_per_user: one non-removed membership per (group, user)
  - idx_cycles_number: cycle numbers unique per group
  - idx_cycles_one_open: at most one open cycle per group
  - idx_contrib_cycle_member: one contribution per (cycle, member)
  - payouts.cycle_id UNIQUE: one payout per cycle

CONDITIONAL UPDATES:
  UpdateGroupStatus / UpdateCycleStatus run "UPDATE ... WHERE id = ? AND
  status = ?". Zero affected rows means a concurrent caller transitioned
  the row first; that surfaces as paluwagan.ErrStateConflict and the
  enclosing transaction rolls back.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers never block
  behind the single writer, and foreign keys are enforced.

USAGE:
  store, err := sqlite.New("./data/paluwagan.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - paluwagan/store.go: Interface definitions
  - paluwagan/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/hiraya/paluwagan-engine/paluwagan"
)

var _ paluwagan.TxStore = (*Store)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements paluwagan.TxStore using SQLite.
type Store struct {
	db *sql.DB
	queries
}

// queries implements every read/write against a dbtx, so the same code
// serves both the root connection and an open transaction.
type queries struct {
	db dbtx
}

// New creates a Store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, queries: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a single SQL transaction.
func (s *Store) WithTx(ctx context.Context, fn func(paluwagan.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{queries{db: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the Store view bound to an open transaction.
type txStore struct {
	queries
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		amount TEXT NOT NULL,
		frequency TEXT NOT NULL,
		start_date TEXT NOT NULL,
		capacity INTEGER NOT NULL,
		order_method TEXT NOT NULL,
		status TEXT NOT NULL,
		fee_mode TEXT NOT NULL,
		fee_percent TEXT NOT NULL,
		fee_amount TEXT NOT NULL,
		rules_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_groups_status ON groups(status);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES groups(id),
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		payout_position INTEGER,
		joined_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_members_one_per_user
		ON members(group_id, user_id) WHERE status != 'removed';
	CREATE INDEX IF NOT EXISTS idx_members_group ON members(group_id);
	CREATE INDEX IF NOT EXISTS idx_members_user ON members(user_id);

	CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES groups(id),
		number INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		recipient_id TEXT,
		status TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_cycles_number
		ON cycles(group_id, number);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_cycles_one_open
		ON cycles(group_id) WHERE status = 'open';

	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL REFERENCES cycles(id),
		group_id TEXT NOT NULL REFERENCES groups(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		proof_ref TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		dispute_reason TEXT NOT NULL DEFAULT '',
		is_late INTEGER NOT NULL DEFAULT 0,
		submitted_at TEXT,
		confirmed_by TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_contrib_cycle_member
		ON contributions(cycle_id, member_id);
	CREATE INDEX IF NOT EXISTS idx_contrib_group ON contributions(group_id);

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL UNIQUE REFERENCES cycles(id),
		group_id TEXT NOT NULL REFERENCES groups(id),
		recipient_id TEXT NOT NULL,
		gross TEXT NOT NULL,
		fee TEXT NOT NULL,
		net TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		dispute_reason TEXT NOT NULL DEFAULT '',
		sent_at TEXT,
		confirmed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_payouts_group ON payouts(group_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		actor_user_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_group ON audit_log(group_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		group_id TEXT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		data_json TEXT,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

const timeFormat = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func decodeTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := decodeTime(s.String)
	return &t
}

func decodeDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decodeDate(s string) paluwagan.Date {
	d, _ := paluwagan.ParseDate(s)
	return d
}

func encodeJSON(v map[string]any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeMeta(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

// =============================================================================
// GROUPS
// =============================================================================

func (q queries) CreateGroup(ctx context.Context, g *paluwagan.Group) error {
	if g.ID == "" {
		g.ID = paluwagan.GroupID(uuid.New().String())
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
		g.UpdatedAt = g.CreatedAt
	}
	rules, err := json.Marshal(g.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO groups (id, organizer_id, name, amount, frequency, start_date,
			capacity, order_method, status, fee_mode, fee_percent, fee_amount,
			rules_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.OrganizerID, g.Name, g.Amount.String(), g.Frequency, g.StartDate.String(),
		g.Capacity, g.OrderMethod, g.Status, g.Fee.Mode, g.Fee.Percent.String(), g.Fee.Amount.String(),
		string(rules), encodeTime(g.CreatedAt), encodeTime(g.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

const groupColumns = `id, organizer_id, name, amount, frequency, start_date,
	capacity, order_method, status, fee_mode, fee_percent, fee_amount,
	rules_json, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (*paluwagan.Group, error) {
	var (
		g                           paluwagan.Group
		amount, start, pct, fixed   string
		rules, createdAt, updatedAt string
	)
	err := row.Scan(&g.ID, &g.OrganizerID, &g.Name, &amount, &g.Frequency, &start,
		&g.Capacity, &g.OrderMethod, &g.Status, &g.Fee.Mode, &pct, &fixed,
		&rules, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	g.Amount = decodeDecimal(amount)
	g.StartDate = decodeDate(start)
	g.Fee.Percent = decodeDecimal(pct)
	g.Fee.Amount = decodeDecimal(fixed)
	if err := json.Unmarshal([]byte(rules), &g.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	g.CreatedAt = decodeTime(createdAt)
	g.UpdatedAt = decodeTime(updatedAt)
	return &g, nil
}

func (q queries) GetGroup(ctx context.Context, id paluwagan.GroupID) (*paluwagan.Group, error) {
	g, err := scanGroup(q.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, &paluwagan.NotFoundError{Entity: "group", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func (q queries) listGroups(ctx context.Context, query string, args ...any) ([]paluwagan.Group, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var out []paluwagan.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (q queries) ListGroups(ctx context.Context) ([]paluwagan.Group, error) {
	return q.listGroups(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY created_at`)
}

func (q queries) ListGroupsByStatus(ctx context.Context, status paluwagan.GroupStatus) ([]paluwagan.Group, error) {
	return q.listGroups(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE status = ? ORDER BY created_at`, status)
}

func (q queries) UpdateGroupStatus(ctx context.Context, id paluwagan.GroupID, from, to paluwagan.GroupStatus) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE groups SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, encodeTime(time.Now()), id, from)
	if err != nil {
		return fmt.Errorf("failed to update group status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return paluwagan.ErrStateConflict
	}
	return nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (q queries) CreateMember(ctx context.Context, m *paluwagan.Member) error {
	if m.ID == "" {
		m.ID = paluwagan.MemberID(uuid.New().String())
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.JoinedAt
	}
	var pos any
	if m.PayoutPosition != nil {
		pos = *m.PayoutPosition
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO members (id, group_id, user_id, role, status, payout_position, joined_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.UserID, m.Role, m.Status, pos,
		encodeTime(m.JoinedAt), encodeTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

const memberColumns = `id, group_id, user_id, role, status, payout_position, joined_at, updated_at`

func scanMember(row interface{ Scan(...any) error }) (*paluwagan.Member, error) {
	var (
		m                   paluwagan.Member
		pos                 sql.NullInt64
		joinedAt, updatedAt string
	)
	err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.Status, &pos, &joinedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if pos.Valid {
		p := int(pos.Int64)
		m.PayoutPosition = &p
	}
	m.JoinedAt = decodeTime(joinedAt)
	m.UpdatedAt = decodeTime(updatedAt)
	return &m, nil
}

func (q queries) GetMember(ctx context.Context, id paluwagan.MemberID) (*paluwagan.Member, error) {
	m, err := scanMember(q.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, &paluwagan.NotFoundError{Entity: "member", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (q queries) GetMemberByUser(ctx context.Context, groupID paluwagan.GroupID, userID paluwagan.UserID) (*paluwagan.Member, error) {
	m, err := scanMember(q.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE group_id = ? AND user_id = ? AND status != 'removed'`, groupID, userID))
	if err == sql.ErrNoRows {
		return nil, &paluwagan.NotFoundError{Entity: "member", ID: string(userID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (q queries) ListMembers(ctx context.Context, groupID paluwagan.GroupID) ([]paluwagan.Member, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE group_id = ? ORDER BY joined_at`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []paluwagan.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (q queries) UpdateMemberStatus(ctx context.Context, id paluwagan.MemberID, status paluwagan.MemberStatus) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE members SET status = ?, updated_at = ? WHERE id = ?`,
		status, encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update member status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &paluwagan.NotFoundError{Entity: "member", ID: string(id)}
	}
	return nil
}

func (q queries) SetPayoutPosition(ctx context.Context, id paluwagan.MemberID, position int) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE members SET payout_position = ? WHERE id = ?`, position, id)
	if err != nil {
		return fmt.Errorf("failed to set payout position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &paluwagan.NotFoundError{Entity: "member", ID: string(id)}
	}
	return nil
}

func (q queries) ListUserMemberships(ctx context.Context, userID paluwagan.UserID) ([]paluwagan.MembershipDetail, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.status, m.status, g.amount, g.frequency
		FROM members m JOIN groups g ON g.id = m.group_id
		WHERE m.user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []paluwagan.MembershipDetail
	for rows.Next() {
		var (
			d      paluwagan.MembershipDetail
			amount string
		)
		if err := rows.Scan(&d.GroupID, &d.GroupName, &d.GroupStatus, &d.Status, &amount, &d.Frequency); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		d.Amount = decodeDecimal(amount)
		out = append(out, d)
	}
	return out, rows.Err()
}

// =============================================================================
// CYCLES
// =============================================================================

func (q queries) CreateCycles(ctx context.Context, cycles []paluwagan.Cycle) error {
	for i := range cycles {
		c := &cycles[i]
		if c.ID == "" {
			c.ID = paluwagan.CycleID(uuid.New().String())
		}
		var recipient any
		if c.RecipientID != nil {
			recipient = *c.RecipientID
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO cycles (id, group_id, number, start_date, due_date, recipient_id, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.GroupID, c.Number, c.Start.String(), c.Due.String(), recipient, c.Status)
		if err != nil {
			return fmt.Errorf("failed to insert cycle %d: %w", c.Number, err)
		}
	}
	return nil
}

const cycleColumns = `id, group_id, number, start_date, due_date, recipient_id, status`

func scanCycle(row interface{ Scan(...any) error }) (*paluwagan.Cycle, error) {
	var (
		c          paluwagan.Cycle
		start, due string
		recipient  sql.NullString
	)
	err := row.Scan(&c.ID, &c.GroupID, &c.Number, &start, &due, &recipient, &c.Status)
	if err != nil {
		return nil, err
	}
	c.Start = decodeDate(start)
	c.Due = decodeDate(due)
	if recipient.Valid {
		u := paluwagan.UserID(recipient.String)
		c.RecipientID = &u
	}
	return &c, nil
}

func (q queries) GetCycle(ctx context.Context, id paluwagan.CycleID) (*paluwagan.Cycle, error) {
	c, err := scanCycle(q.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, &paluwagan.NotFoundError{Entity: "cycle", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	return c, nil
}

func (q queries) ListCycles(ctx context.Context, groupID paluwagan.GroupID) ([]paluwagan.Cycle, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE group_id = ? ORDER BY number`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var out []paluwagan.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (q queries) OpenCycle(ctx context.Context, groupID paluwagan.GroupID) (*paluwagan.Cycle, error) {
	c, err := scanCycle(q.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE group_id = ? AND status = 'open'`, groupID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open cycle: %w", err)
	}
	return c, nil
}

func (q queries) UpdateCycleStatus(ctx context.Context, id paluwagan.CycleID, from, to paluwagan.CycleStatus) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE cycles SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update cycle status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return paluwagan.ErrStateConflict
	}
	return nil
}

// =============================================================================
// CONTRIBUTIONS
// =============================================================================

func (q queries) CreateContributions(ctx context.Context, contributions []paluwagan.Contribution) error {
	for i := range contributions {
		c := &contributions[i]
		if c.ID == "" {
			c.ID = paluwagan.ContributionID(uuid.New().String())
		}
		var confirmedBy any
		if c.ConfirmedBy != nil {
			confirmedBy = *c.ConfirmedBy
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO contributions (id, cycle_id, group_id, member_id, user_id,
				amount, status, proof_ref, note, dispute_reason, is_late, submitted_at, confirmed_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.CycleID, c.GroupID, c.MemberID, c.UserID,
			c.Amount.String(), c.Status, c.ProofRef, c.Note, c.DisputeReason, c.IsLate,
			encodeTimePtr(c.SubmittedAt), confirmedBy)
		if err != nil {
			return fmt.Errorf("failed to insert contribution: %w", err)
		}
	}
	return nil
}

const contribColumns = `id, cycle_id, group_id, member_id, user_id, amount, status,
	proof_ref, note, dispute_reason, is_late, submitted_at, confirmed_by`

func scanContribution(row interface{ Scan(...any) error }) (*paluwagan.Contribution, error) {
	var (
		c                      paluwagan.Contribution
		amount                 string
		submittedAt, confirmed sql.NullString
	)
	err := row.Scan(&c.ID, &c.CycleID, &c.GroupID, &c.MemberID, &c.UserID, &amount, &c.Status,
		&c.ProofRef, &c.Note, &c.DisputeReason, &c.IsLate, &submittedAt, &confirmed)
	if err != nil {
		return nil, err
	}
	c.Amount = decodeDecimal(amount)
	c.SubmittedAt = decodeTimePtr(submittedAt)
	if confirmed.Valid {
		u := paluwagan.UserID(confirmed.String)
		c.ConfirmedBy = &u
	}
	return &c, nil
}

func (q queries) GetContribution(ctx context.Context, id paluwagan.ContributionID) (*paluwagan.Contribution, error) {
	c, err := scanContribution(q.db.QueryRowContext(ctx,
		`SELECT `+contribColumns+` FROM contributions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, &paluwagan.NotFoundError{Entity: "contribution", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution: %w", err)
	}
	return c, nil
}

func (q queries) listContributions(ctx context.Context, query string, args ...any) ([]paluwagan.Contribution, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var out []paluwagan.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (q queries) ListContributionsByCycle(ctx context.Context, cycleID paluwagan.CycleID) ([]paluwagan.Contribution, error) {
	return q.listContributions(ctx,
		`SELECT `+contribColumns+` FROM contributions WHERE cycle_id = ? ORDER BY id`, cycleID)
}

func (q queries) ListContributionsByGroup(ctx context.Context, groupID paluwagan.GroupID) ([]paluwagan.Contribution, error) {
	return q.listContributions(ctx,
		`SELECT `+contribColumns+` FROM contributions WHERE group_id = ? ORDER BY id`, groupID)
}

func (q queries) UpdateContribution(ctx context.Context, c *paluwagan.Contribution) error {
	var confirmedBy any
	if c.ConfirmedBy != nil {
		confirmedBy = *c.ConfirmedBy
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE contributions
		SET status = ?, proof_ref = ?, note = ?, dispute_reason = ?, is_late = ?, submitted_at = ?, confirmed_by = ?
		WHERE id = ?`,
		c.Status, c.ProofRef, c.Note, c.DisputeReason, c.IsLate, encodeTimePtr(c.SubmittedAt), confirmedBy, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update contribution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &paluwagan.NotFoundError{Entity: "contribution", ID: string(c.ID)}
	}
	return nil
}

// =============================================================================
// PAYOUTS
// =============================================================================

func (q queries) CreatePayout(ctx context.Context, p *paluwagan.Payout) error {
	if p.ID == "" {
		p.ID = paluwagan.PayoutID(uuid.New().String())
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payouts (id, cycle_id, group_id, recipient_id, gross, fee, net,
			status, note, dispute_reason, sent_at, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CycleID, p.GroupID, p.RecipientID,
		p.Gross.String(), p.Fee.String(), p.Net.String(),
		p.Status, p.Note, p.DisputeReason, encodeTimePtr(p.SentAt), encodeTimePtr(p.ConfirmedAt))
	if err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}
	return nil
}

const payoutColumns = `id, cycle_id, group_id, recipient_id, gross, fee, net,
	status, note, dispute_reason, sent_at, confirmed_at`

func scanPayout(row interface{ Scan(...any) error }) (*paluwagan.Payout, error) {
	var (
		p                   paluwagan.Payout
		gross, fee, net     string
		sentAt, confirmedAt sql.NullString
	)
	err := row.Scan(&p.ID, &p.CycleID, &p.GroupID, &p.RecipientID, &gross, &fee, &net,
		&p.Status, &p.Note, &p.DisputeReason, &sentAt, &confirmedAt)
	if err != nil {
		return nil, err
	}
	p.Gross = decodeDecimal(gross)
	p.Fee = decodeDecimal(fee)
	p.Net = decodeDecimal(net)
	p.SentAt = decodeTimePtr(sentAt)
	p.ConfirmedAt = decodeTimePtr(confirmedAt)
	return &p, nil
}

func (q queries) GetPayout(ctx context.Context, id paluwagan.PayoutID) (*paluwagan.Payout, error) {
	p, err := scanPayout(q.db.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, &paluwagan.NotFoundError{Entity: "payout", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

func (q queries) GetPayoutByCycle(ctx context.Context, cycleID paluwagan.CycleID) (*paluwagan.Payout, error) {
	p, err := scanPayout(q.db.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE cycle_id = ?`, cycleID))
	if err == sql.ErrNoRows {
		return nil, &paluwagan.NotFoundError{Entity: "payout", ID: string(cycleID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

func (q queries) ListPayoutsByGroup(ctx context.Context, groupID paluwagan.GroupID) ([]paluwagan.Payout, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE group_id = ? ORDER BY id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var out []paluwagan.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (q queries) UpdatePayout(ctx context.Context, p *paluwagan.Payout) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE payouts SET status = ?, note = ?, dispute_reason = ?, sent_at = ?, confirmed_at = ?
		WHERE id = ?`,
		p.Status, p.Note, p.DisputeReason, encodeTimePtr(p.SentAt), encodeTimePtr(p.ConfirmedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &paluwagan.NotFoundError{Entity: "payout", ID: string(p.ID)}
	}
	return nil
}

// =============================================================================
// AUDIT + NOTIFICATIONS
// =============================================================================

func (q queries) AppendAudit(ctx context.Context, e paluwagan.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, group_id, actor_user_id, entity_type, entity_id,
			action, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, e.ActorID, e.EntityType, e.EntityID,
		e.Action, encodeJSON(e.Metadata), encodeTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (q queries) ListAudit(ctx context.Context, groupID paluwagan.GroupID, limit int) ([]paluwagan.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, group_id, actor_user_id, entity_type, entity_id, action, metadata_json, created_at
		FROM audit_log WHERE group_id = ? ORDER BY created_at DESC LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []paluwagan.AuditEntry
	for rows.Next() {
		var (
			e         paluwagan.AuditEntry
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &e.ActorID, &e.EntityType, &e.EntityID,
			&e.Action, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Metadata = decodeMeta(meta)
		e.CreatedAt = decodeTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q queries) AppendNotification(ctx context.Context, n paluwagan.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	var groupID any
	if n.GroupID != nil {
		groupID = *n.GroupID
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, group_id, type, title, message, data_json, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, groupID, n.Type, n.Title, n.Message,
		encodeJSON(n.Data), n.Read, encodeTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

func (q queries) ListNotifications(ctx context.Context, userID paluwagan.UserID, unreadOnly bool) ([]paluwagan.Notification, error) {
	query := `SELECT id, user_id, group_id, type, title, message, data_json, read, created_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []paluwagan.Notification
	for rows.Next() {
		var (
			n         paluwagan.Notification
			groupID   sql.NullString
			data      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &groupID, &n.Type, &n.Title, &n.Message,
			&data, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if groupID.Valid {
			g := paluwagan.GroupID(groupID.String)
			n.GroupID = &g
		}
		n.Data = decodeMeta(data)
		n.CreatedAt = decodeTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q queries) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &paluwagan.NotFoundError{Entity: "notification", ID: id}
	}
	return nil
}
