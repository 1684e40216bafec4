// Package postgres implements types.Directory, types.ParticipantLookup and
// types.GroupStore on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arloliu/reach/directory"
	"github.com/arloliu/reach/internal/visibility"
	"github.com/arloliu/reach/types"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// Config configures the PostgreSQL directory.
type Config struct {
	// DSN is a postgres:// connection string.
	DSN string `yaml:"dsn"`

	// Schema sets search_path for every pooled connection ("" keeps the server default).
	Schema string `yaml:"schema"`

	// MaxConns caps the pool size (default: 4).
	MaxConns int32 `yaml:"maxConns"`

	// InitSchema creates the tables if they do not exist.
	InitSchema bool `yaml:"initSchema"`
}

// Directory reads the directory tables of a PostgreSQL database.
type Directory struct {
	pool  *pgxpool.Pool
	owned bool
}

var _ directory.Backend = (*Directory)(nil)

// Connect creates a pool, verifies it with a ping and optionally creates the schema.
//
// Parameters:
//   - ctx: Context for connecting
//   - cfg: Connection configuration
//
// Returns:
//   - *Directory: Directory owning the pool
//   - error: Parse, connect or schema failure
func Connect(ctx context.Context, cfg Config) (*Directory, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: %w: dsn is required", types.ErrInvalidConfig)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w: %w", types.ErrInvalidConfig, err)
	}
	poolCfg.MaxConns = 4
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	if cfg.Schema != "" {
		poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.Schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, wrap("new pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap("ping", err)
	}

	d := &Directory{pool: pool, owned: true}
	if cfg.InitSchema {
		if err := d.InitSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return d, nil
}

// New wraps an existing pool. Close leaves the pool open.
func New(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// InitSchema creates the directory tables if they do not exist.
func (d *Directory) InitSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, schema)
	return wrap("init schema", err)
}

// Close closes the pool if Connect created it.
func (d *Directory) Close() {
	if d.owned {
		d.pool.Close()
	}
}

// Seed inserts a dataset in one transaction using a single batch.
func (d *Directory) Seed(ctx context.Context, ds directory.Dataset) error {
	batch := &pgx.Batch{}

	for _, u := range ds.Users {
		batch.Queue(`INSERT INTO users (id, name, sortable_name, workflow_state) VALUES ($1, $2, $3, $4)`,
			int64(u.ID), u.Name, u.SortableName, string(orDefault(u.State, types.UserRegistered)))
	}
	for _, c := range ds.Courses {
		batch.Queue(`INSERT INTO courses (id, account_id, name, workflow_state, conclude_at) VALUES ($1, $2, $3, $4, $5)`,
			int64(c.ID), int64(c.AccountID), c.Name, string(c.State), c.ConcludeAt)
	}
	for _, s := range ds.AllSections() {
		batch.Queue(`INSERT INTO course_sections (id, course_id, name) VALUES ($1, $2, $3)`,
			int64(s.ID), int64(s.CourseID), s.Name)
	}
	for _, e := range ds.Enrollments {
		batch.Queue(`INSERT INTO enrollments (user_id, course_id, course_section_id, type, workflow_state, associated_user_id, limit_privileges_to_course_section)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			int64(e.UserID), int64(e.CourseID), int64(e.SectionID), string(e.Role), string(e.State), int64(e.AssociatedUserID), e.LimitToSection)
	}
	for _, g := range ds.Groups {
		batch.Queue(`INSERT INTO "groups" (id, name, context_type, context_id, active) VALUES ($1, $2, $3, $4, $5)`,
			int64(g.ID), g.Name, string(g.ContextType), g.ContextID, g.Active)
	}
	for _, m := range ds.Memberships {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(`INSERT INTO group_memberships (id, group_id, user_id, workflow_state) VALUES ($1, $2, $3, $4)`,
			id, int64(m.GroupID), int64(m.UserID), string(m.State))
	}
	for _, a := range ds.Accounts {
		batch.Queue(`INSERT INTO account_users (user_id, account_id, can_read_roster) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, account_id) DO UPDATE SET can_read_roster = EXCLUDED.can_read_roster`,
			int64(a.UserID), int64(a.AccountID), a.CanReadRoster)
	}
	for _, p := range ds.Participations {
		batch.Queue(`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			int64(p.ConversationID), int64(p.UserID))
	}

	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})

	return wrap("seed", err)
}

const (
	userColumns       = `id, name, sortable_name, workflow_state`
	courseColumns     = `id, account_id, name, workflow_state, conclude_at`
	enrollmentColumns = `user_id, course_id, course_section_id, type, workflow_state, associated_user_id, limit_privileges_to_course_section`
	groupColumns      = `id, name, context_type, context_id, active`
	membershipColumns = `id::text AS id, group_id, user_id, workflow_state`
)

// UsersByID loads users in the order of ids, skipping unknown ids.
func (d *Directory) UsersByID(ctx context.Context, ids []types.UserID) ([]types.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := collect[types.User](ctx, d.pool, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, int64s(ids))
	if err != nil {
		return nil, wrap("users by id", err)
	}

	byID := make(map[types.UserID]types.User, len(rows))
	for _, u := range rows {
		byID[u.ID] = u
	}
	out := make([]types.User, 0, len(rows))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
			delete(byID, id)
		}
	}

	return out, nil
}

// EnrollmentsOf returns every enrollment of a user.
func (d *Directory) EnrollmentsOf(ctx context.Context, userID types.UserID) ([]types.Enrollment, error) {
	out, err := collect[types.Enrollment](ctx, d.pool,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 ORDER BY id`, int64(userID))

	return out, wrap("enrollments of user", err)
}

// GroupMembershipsOf returns every membership of a user.
func (d *Directory) GroupMembershipsOf(ctx context.Context, userID types.UserID) ([]types.GroupMembership, error) {
	out, err := collect[types.GroupMembership](ctx, d.pool,
		`SELECT `+membershipColumns+` FROM group_memberships WHERE user_id = $1 ORDER BY group_id`, int64(userID))

	return out, wrap("memberships of user", err)
}

// AccountsOf returns the accounts a user is associated with.
func (d *Directory) AccountsOf(ctx context.Context, userID types.UserID) ([]types.AccountAccess, error) {
	out, err := collect[types.AccountAccess](ctx, d.pool,
		`SELECT account_id, can_read_roster FROM account_users WHERE user_id = $1 ORDER BY account_id`, int64(userID))

	return out, wrap("accounts of user", err)
}

// CoursesByID loads courses, skipping unknown ids.
func (d *Directory) CoursesByID(ctx context.Context, ids []types.CourseID) ([]types.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	out, err := collect[types.Course](ctx, d.pool,
		`SELECT `+courseColumns+` FROM courses WHERE id = ANY($1) ORDER BY id`, int64s(ids))

	return out, wrap("courses by id", err)
}

// FindCourse loads one course or returns types.ErrNotFound.
func (d *Directory) FindCourse(ctx context.Context, id types.CourseID) (types.Course, error) {
	c, err := collectOne[types.Course](ctx, d.pool, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, int64(id))
	return c, wrapFind("course", int64(id), err)
}

// FindSection loads one section or returns types.ErrNotFound.
func (d *Directory) FindSection(ctx context.Context, id types.SectionID) (types.Section, error) {
	s, err := collectOne[types.Section](ctx, d.pool, `SELECT id, course_id, name FROM course_sections WHERE id = $1`, int64(id))
	return s, wrapFind("section", int64(id), err)
}

// FindGroup loads one group or returns types.ErrNotFound.
func (d *Directory) FindGroup(ctx context.Context, id types.GroupID) (types.Group, error) {
	g, err := collectOne[types.Group](ctx, d.pool, `SELECT `+groupColumns+` FROM "groups" WHERE id = $1`, int64(id))
	return g, wrapFind("group", int64(id), err)
}

// EnrollmentsInCourses returns the enrollments of userIDs (nil: everyone) in courseIDs.
func (d *Directory) EnrollmentsInCourses(ctx context.Context, courseIDs []types.CourseID, userIDs []types.UserID) ([]types.Enrollment, error) {
	if len(courseIDs) == 0 || (userIDs != nil && len(userIDs) == 0) {
		return nil, nil
	}

	var out []types.Enrollment
	var err error
	if userIDs == nil {
		out, err = collect[types.Enrollment](ctx, d.pool,
			`SELECT `+enrollmentColumns+` FROM enrollments WHERE course_id = ANY($1) ORDER BY id`, int64s(courseIDs))
	} else {
		out, err = collect[types.Enrollment](ctx, d.pool,
			`SELECT `+enrollmentColumns+` FROM enrollments WHERE course_id = ANY($1) AND user_id = ANY($2) ORDER BY id`,
			int64s(courseIDs), int64s(userIDs))
	}

	return out, wrap("enrollments in courses", err)
}

// MembershipsInGroups returns the memberships of userIDs (nil: everyone) in groupIDs.
func (d *Directory) MembershipsInGroups(ctx context.Context, groupIDs []types.GroupID, userIDs []types.UserID) ([]types.GroupMembership, error) {
	if len(groupIDs) == 0 || (userIDs != nil && len(userIDs) == 0) {
		return nil, nil
	}

	var out []types.GroupMembership
	var err error
	if userIDs == nil {
		out, err = collect[types.GroupMembership](ctx, d.pool,
			`SELECT `+membershipColumns+` FROM group_memberships WHERE group_id = ANY($1) ORDER BY group_id, user_id`, int64s(groupIDs))
	} else {
		out, err = collect[types.GroupMembership](ctx, d.pool,
			`SELECT `+membershipColumns+` FROM group_memberships WHERE group_id = ANY($1) AND user_id = ANY($2) ORDER BY group_id, user_id`,
			int64s(groupIDs), int64s(userIDs))
	}

	return out, wrap("memberships in groups", err)
}

// GroupsInCourses returns the active course groups of courseIDs, ordered by id.
func (d *Directory) GroupsInCourses(ctx context.Context, courseIDs []types.CourseID) ([]types.Group, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}

	out, err := collect[types.Group](ctx, d.pool,
		`SELECT `+groupColumns+` FROM "groups" WHERE active AND context_type = 'Course' AND context_id = ANY($1) ORDER BY id`,
		int64s(courseIDs))

	return out, wrap("groups in courses", err)
}

// LinkedObservers returns the users observing userID through a current
// observer enrollment.
func (d *Directory) LinkedObservers(ctx context.Context, userID types.UserID) ([]types.UserID, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM enrollments
		 WHERE type = 'ObserverEnrollment' AND associated_user_id = $1 AND workflow_state NOT IN ('deleted', 'rejected')
		 ORDER BY user_id`, int64(userID))
	if err != nil {
		return nil, wrap("linked observers", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[types.UserID])

	return out, wrap("linked observers", err)
}

type accountEnrollment struct {
	UserID      types.UserID          `db:"user_id"`
	AccountID   types.AccountID       `db:"account_id"`
	Role        types.EnrollmentRole  `db:"type"`
	State       types.EnrollmentState `db:"workflow_state"`
	CourseState types.CourseState     `db:"course_state"`
}

// AccountMembers returns the associations of userIDs (nil: everyone) with
// accountIDs, each with the user's best current role in the account.
func (d *Directory) AccountMembers(ctx context.Context, accountIDs []types.AccountID, userIDs []types.UserID) ([]types.AccountMember, error) {
	if len(accountIDs) == 0 || (userIDs != nil && len(userIDs) == 0) {
		return nil, nil
	}

	var members []types.AccountMember
	var err error
	if userIDs == nil {
		members, err = collectLax[types.AccountMember](ctx, d.pool,
			`SELECT account_id, user_id FROM account_users WHERE account_id = ANY($1) ORDER BY user_id, account_id`,
			int64s(accountIDs))
	} else {
		members, err = collectLax[types.AccountMember](ctx, d.pool,
			`SELECT account_id, user_id FROM account_users WHERE account_id = ANY($1) AND user_id = ANY($2) ORDER BY user_id, account_id`,
			int64s(accountIDs), int64s(userIDs))
	}
	if err != nil {
		return nil, wrap("account members", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	memberIDs := make([]int64, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, int64(m.UserID))
	}

	rows, err := collect[accountEnrollment](ctx, d.pool,
		`SELECT e.user_id, c.account_id, e.type, e.workflow_state, c.workflow_state AS course_state
		 FROM enrollments e INNER JOIN courses c ON c.id = e.course_id
		 WHERE c.account_id = ANY($1) AND e.user_id = ANY($2)`, int64s(accountIDs), memberIDs)
	if err != nil {
		return nil, wrap("account member roles", err)
	}

	type key struct {
		user    types.UserID
		account types.AccountID
	}
	best := make(map[key]types.EnrollmentRole)
	for _, r := range rows {
		e := types.Enrollment{Role: r.Role, State: r.State}
		if !visibility.Eligible(e, types.Course{State: r.CourseState}, true, false) {
			continue
		}
		k := key{r.UserID, r.AccountID}
		best[k] = types.BestRole(best[k], r.Role)
	}

	for i := range members {
		members[i].PrimaryRole = best[key{members[i].UserID, members[i].AccountID}]
	}

	return members, nil
}

// ParticipantsOf returns the candidates participating in the conversation.
func (d *Directory) ParticipantsOf(ctx context.Context, id types.ConversationID, candidates []types.UserID) ([]types.UserID, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	rows, err := d.pool.Query(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = $1 AND user_id = ANY($2) ORDER BY user_id`,
		int64(id), int64s(candidates))
	if err != nil {
		return nil, wrap("conversation participants", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[types.UserID])

	return out, wrap("conversation participants", err)
}

// AddMember creates an accepted membership.
//
// Returns types.ErrMembershipConflict when the group is unknown or inactive,
// or when the user already has a non-deleted membership in it. The partial
// unique index on live memberships rejects concurrent duplicates.
func (d *Directory) AddMember(ctx context.Context, groupID types.GroupID, userID types.UserID) (types.GroupMembership, error) {
	m := types.GroupMembership{ID: uuid.NewString(), GroupID: groupID, UserID: userID, State: types.MembershipAccepted}

	tag, err := d.pool.Exec(ctx,
		`INSERT INTO group_memberships (id, group_id, user_id, workflow_state)
		 SELECT $1::uuid, g.id, $3::bigint, $4::text FROM "groups" g WHERE g.id = $2 AND g.active`,
		m.ID, int64(groupID), int64(userID), string(m.State))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return types.GroupMembership{}, fmt.Errorf("user %d already in group %d: %w", userID, groupID, types.ErrMembershipConflict)
		}

		return types.GroupMembership{}, wrap("add member", err)
	}
	if tag.RowsAffected() == 0 {
		return types.GroupMembership{}, fmt.Errorf("group %d does not accept members: %w", groupID, types.ErrMembershipConflict)
	}

	return m, nil
}

// TouchGroups sets updated_at of every group in one statement.
func (d *Directory) TouchGroups(ctx context.Context, groupIDs []types.GroupID, at time.Time) error {
	if len(groupIDs) == 0 {
		return nil
	}

	_, err := d.pool.Exec(ctx, `UPDATE "groups" SET updated_at = $1 WHERE id = ANY($2)`, at, int64s(groupIDs))

	return wrap("touch groups", err)
}

// MemberCounts counts the non-deleted memberships of each group.
func (d *Directory) MemberCounts(ctx context.Context, groupIDs []types.GroupID) (map[types.GroupID]int, error) {
	out := make(map[types.GroupID]int, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	for _, id := range groupIDs {
		out[id] = 0
	}

	rows, err := d.pool.Query(ctx,
		`SELECT group_id, COUNT(*) FROM group_memberships WHERE group_id = ANY($1) AND workflow_state <> 'deleted' GROUP BY group_id`,
		int64s(groupIDs))
	if err != nil {
		return nil, wrap("member counts", err)
	}

	var groupID int64
	var n int64
	_, err = pgx.ForEachRow(rows, []any{&groupID, &n}, func() error {
		out[types.GroupID(groupID)] = int(n)
		return nil
	})
	if err != nil {
		return nil, wrap("member counts", err)
	}

	return out, nil
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

func collectLax[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
}

func collectOne[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) (T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		var zero T
		return zero, err
	}

	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
}

func int64s[T ~int64](ids []T) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}

	return out
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}

	return v
}

// wrap marks connection, timeout and context failures as ErrUnavailable.
// Server-side errors (*pgconn.PgError) and scan errors stay plain.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectivity(err) {
		return fmt.Errorf("postgres %s: %w: %w", op, types.ErrUnavailable, err)
	}

	return fmt.Errorf("postgres %s: %w", op, err)
}

func isConnectivity(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error

	return types.IsUnavailable(err) ||
		pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) ||
		errors.As(err, &connectErr) ||
		errors.As(err, &netErr)
}

func wrapFind(kind string, id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", kind, id, types.ErrNotFound)
	}

	return wrap("find "+kind, err)
}
