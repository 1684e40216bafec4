// Package sqlite implements types.Directory, types.ParticipantLookup and
// types.GroupStore on SQLite (modernc.org/sqlite, pure Go) through sqlx.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/arloliu/reach/directory"
	"github.com/arloliu/reach/internal/visibility"
	"github.com/arloliu/reach/types"
)

//go:embed schema.sql
var schema string

// Config configures the SQLite directory.
type Config struct {
	// DSN is the database path or URI (":memory:" for a private in-memory database).
	DSN string `yaml:"dsn"`

	// InitSchema creates the tables if they do not exist.
	InitSchema bool `yaml:"initSchema"`
}

// Directory reads the directory tables of a SQLite database.
type Directory struct {
	db *sqlx.DB
}

var _ directory.Backend = (*Directory)(nil)

// Open opens the database and optionally creates the schema.
//
// An in-memory database is private to one connection, so the pool is limited
// to a single connection for ":memory:" DSNs.
//
// Parameters:
//   - ctx: Context for schema creation
//   - cfg: Database configuration
//
// Returns:
//   - *Directory: Directory bound to the database
//   - error: Open or schema failure
func Open(ctx context.Context, cfg Config) (*Directory, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite: %w: dsn is required", types.ErrInvalidConfig)
	}

	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	d := &Directory{db: db}
	if cfg.InitSchema {
		if err := d.InitSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return d, nil
}

// InitSchema creates the directory tables if they do not exist.
func (d *Directory) InitSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}

	return nil
}

// Close closes the database.
func (d *Directory) Close() error {
	return d.db.Close()
}

// Seed inserts a dataset in one transaction.
func (d *Directory) Seed(ctx context.Context, ds directory.Dataset) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("seed", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range ds.Users {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO users (id, name, sortable_name, workflow_state) VALUES (:id, :name, :sortable_name, :workflow_state)`, u); err != nil {
			return wrap("seed users", err)
		}
	}
	for _, c := range ds.Courses {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO courses (id, account_id, name, workflow_state, conclude_at) VALUES (:id, :account_id, :name, :workflow_state, :conclude_at)`, c); err != nil {
			return wrap("seed courses", err)
		}
	}
	for _, s := range ds.AllSections() {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO course_sections (id, course_id, name) VALUES (:id, :course_id, :name)`, s); err != nil {
			return wrap("seed sections", err)
		}
	}
	for _, e := range ds.Enrollments {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO enrollments (user_id, course_id, course_section_id, type, workflow_state, associated_user_id, limit_privileges_to_course_section)
			 VALUES (:user_id, :course_id, :course_section_id, :type, :workflow_state, :associated_user_id, :limit_privileges_to_course_section)`, e); err != nil {
			return wrap("seed enrollments", err)
		}
	}
	for _, g := range ds.Groups {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO "groups" (id, name, context_type, context_id, active) VALUES (:id, :name, :context_type, :context_id, :active)`, g); err != nil {
			return wrap("seed groups", err)
		}
	}
	for _, m := range ds.Memberships {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO group_memberships (id, group_id, user_id, workflow_state) VALUES (:id, :group_id, :user_id, :workflow_state)`, m); err != nil {
			return wrap("seed memberships", err)
		}
	}
	for _, a := range ds.Accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO account_users (user_id, account_id, can_read_roster) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, account_id) DO UPDATE SET can_read_roster = excluded.can_read_roster`,
			a.UserID, a.AccountID, a.CanReadRoster); err != nil {
			return wrap("seed accounts", err)
		}
	}
	for _, p := range ds.Participations {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`,
			p.ConversationID, p.UserID); err != nil {
			return wrap("seed participants", err)
		}
	}

	return wrap("seed commit", tx.Commit())
}

const (
	userColumns       = `id, name, sortable_name, workflow_state`
	courseColumns     = `id, account_id, name, workflow_state, conclude_at`
	enrollmentColumns = `user_id, course_id, course_section_id, type, workflow_state, associated_user_id, limit_privileges_to_course_section`
	groupColumns      = `id, name, context_type, context_id, active`
	membershipColumns = `id, group_id, user_id, workflow_state`
)

// UsersByID loads users in the order of ids, skipping unknown ids.
func (d *Directory) UsersByID(ctx context.Context, ids []types.UserID) ([]types.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []types.User
	if err := d.selectIn(ctx, &rows, `SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids); err != nil {
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
	var out []types.Enrollment
	err := d.db.SelectContext(ctx, &out, `SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = ? ORDER BY id`, userID)

	return out, wrap("enrollments of user", err)
}

// GroupMembershipsOf returns every membership of a user.
func (d *Directory) GroupMembershipsOf(ctx context.Context, userID types.UserID) ([]types.GroupMembership, error) {
	var out []types.GroupMembership
	err := d.db.SelectContext(ctx, &out, `SELECT `+membershipColumns+` FROM group_memberships WHERE user_id = ? ORDER BY group_id`, userID)

	return out, wrap("memberships of user", err)
}

// AccountsOf returns the accounts a user is associated with.
func (d *Directory) AccountsOf(ctx context.Context, userID types.UserID) ([]types.AccountAccess, error) {
	var out []types.AccountAccess
	err := d.db.SelectContext(ctx, &out,
		`SELECT account_id, can_read_roster FROM account_users WHERE user_id = ? ORDER BY account_id`, userID)

	return out, wrap("accounts of user", err)
}

// CoursesByID loads courses, skipping unknown ids.
func (d *Directory) CoursesByID(ctx context.Context, ids []types.CourseID) ([]types.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out []types.Course
	err := d.selectIn(ctx, &out, `SELECT `+courseColumns+` FROM courses WHERE id IN (?) ORDER BY id`, ids)

	return out, wrap("courses by id", err)
}

// FindCourse loads one course or returns types.ErrNotFound.
func (d *Directory) FindCourse(ctx context.Context, id types.CourseID) (types.Course, error) {
	var c types.Course
	err := d.db.GetContext(ctx, &c, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id)

	return c, wrapFind("course", int64(id), err)
}

// FindSection loads one section or returns types.ErrNotFound.
func (d *Directory) FindSection(ctx context.Context, id types.SectionID) (types.Section, error) {
	var s types.Section
	err := d.db.GetContext(ctx, &s, `SELECT id, course_id, name FROM course_sections WHERE id = ?`, id)

	return s, wrapFind("section", int64(id), err)
}

// FindGroup loads one group or returns types.ErrNotFound.
func (d *Directory) FindGroup(ctx context.Context, id types.GroupID) (types.Group, error) {
	var g types.Group
	err := d.db.GetContext(ctx, &g, `SELECT `+groupColumns+` FROM "groups" WHERE id = ?`, id)

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
		err = d.selectIn(ctx, &out, `SELECT `+enrollmentColumns+` FROM enrollments WHERE course_id IN (?) ORDER BY id`, courseIDs)
	} else {
		err = d.selectIn(ctx, &out, `SELECT `+enrollmentColumns+` FROM enrollments WHERE course_id IN (?) AND user_id IN (?) ORDER BY id`, courseIDs, userIDs)
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
		err = d.selectIn(ctx, &out, `SELECT `+membershipColumns+` FROM group_memberships WHERE group_id IN (?) ORDER BY group_id, user_id`, groupIDs)
	} else {
		err = d.selectIn(ctx, &out, `SELECT `+membershipColumns+` FROM group_memberships WHERE group_id IN (?) AND user_id IN (?) ORDER BY group_id, user_id`, groupIDs, userIDs)
	}

	return out, wrap("memberships in groups", err)
}

// GroupsInCourses returns the active course groups of courseIDs, ordered by id.
func (d *Directory) GroupsInCourses(ctx context.Context, courseIDs []types.CourseID) ([]types.Group, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}

	var out []types.Group
	err := d.selectIn(ctx, &out,
		`SELECT `+groupColumns+` FROM "groups" WHERE active = 1 AND context_type = 'Course' AND context_id IN (?) ORDER BY id`, courseIDs)

	return out, wrap("groups in courses", err)
}

// LinkedObservers returns the users observing userID through a current
// observer enrollment.
func (d *Directory) LinkedObservers(ctx context.Context, userID types.UserID) ([]types.UserID, error) {
	var out []types.UserID
	err := d.db.SelectContext(ctx, &out,
		`SELECT DISTINCT user_id FROM enrollments
		 WHERE type = 'ObserverEnrollment' AND associated_user_id = ? AND workflow_state NOT IN ('deleted', 'rejected')
		 ORDER BY user_id`, userID)

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
		err = d.selectIn(ctx, &members,
			`SELECT account_id, user_id FROM account_users WHERE account_id IN (?) ORDER BY user_id, account_id`, accountIDs)
	} else {
		err = d.selectIn(ctx, &members,
			`SELECT account_id, user_id FROM account_users WHERE account_id IN (?) AND user_id IN (?) ORDER BY user_id, account_id`, accountIDs, userIDs)
	}
	if err != nil {
		return nil, wrap("account members", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	memberIDs := make([]types.UserID, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, m.UserID)
	}

	var rows []accountEnrollment
	err = d.selectIn(ctx, &rows,
		`SELECT e.user_id, c.account_id, e.type, e.workflow_state, c.workflow_state AS course_state
		 FROM enrollments e INNER JOIN courses c ON c.id = e.course_id
		 WHERE c.account_id IN (?) AND e.user_id IN (?)`, accountIDs, memberIDs)
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

	var out []types.UserID
	err := d.selectIn(ctx, &out,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? AND user_id IN (?) ORDER BY user_id`, id, candidates)

	return out, wrap("conversation participants", err)
}

// AddMember creates an accepted membership inside a transaction.
//
// Returns types.ErrMembershipConflict when the group is unknown or inactive,
// or when the user already has a non-deleted membership in it.
func (d *Directory) AddMember(ctx context.Context, groupID types.GroupID, userID types.UserID) (types.GroupMembership, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return types.GroupMembership{}, wrap("add member", err)
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.GetContext(ctx, &active, `SELECT active FROM "groups" WHERE id = ?`, groupID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return types.GroupMembership{}, fmt.Errorf("group %d does not accept members: %w", groupID, types.ErrMembershipConflict)
	}
	if err != nil {
		return types.GroupMembership{}, wrap("add member", err)
	}

	var existing int
	if err := tx.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM group_memberships WHERE group_id = ? AND user_id = ? AND workflow_state <> 'deleted'`,
		groupID, userID); err != nil {
		return types.GroupMembership{}, wrap("add member", err)
	}
	if existing > 0 {
		return types.GroupMembership{}, fmt.Errorf("user %d already in group %d: %w", userID, groupID, types.ErrMembershipConflict)
	}

	m := types.GroupMembership{ID: uuid.NewString(), GroupID: groupID, UserID: userID, State: types.MembershipAccepted}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO group_memberships (id, group_id, user_id, workflow_state) VALUES (:id, :group_id, :user_id, :workflow_state)`, m); err != nil {
		return types.GroupMembership{}, wrap("add member", err)
	}

	if err := tx.Commit(); err != nil {
		return types.GroupMembership{}, wrap("add member", err)
	}

	return m, nil
}

// TouchGroups sets updated_at of every group in one statement.
func (d *Directory) TouchGroups(ctx context.Context, groupIDs []types.GroupID, at time.Time) error {
	if len(groupIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`UPDATE "groups" SET updated_at = ? WHERE id IN (?)`, at.UTC(), groupIDs)
	if err != nil {
		return wrap("touch groups", err)
	}
	_, err = d.db.ExecContext(ctx, d.db.Rebind(query), args...)

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

	var rows []struct {
		GroupID types.GroupID `db:"group_id"`
		Count   int           `db:"n"`
	}
	if err := d.selectIn(ctx, &rows,
		`SELECT group_id, COUNT(*) AS n FROM group_memberships WHERE group_id IN (?) AND workflow_state <> 'deleted' GROUP BY group_id`,
		groupIDs); err != nil {
		return nil, wrap("member counts", err)
	}
	for _, r := range rows {
		out[r.GroupID] = r.Count
	}

	return out, nil
}

// selectIn expands slice arguments with sqlx.In and runs the query.
func (d *Directory) selectIn(ctx context.Context, dest any, query string, args ...any) error {
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}

	return d.db.SelectContext(ctx, dest, d.db.Rebind(q), expanded...)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if types.IsUnavailable(err) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("sqlite %s: %w: %w", op, types.ErrUnavailable, err)
	}

	return fmt.Errorf("sqlite %s: %w", op, err)
}

func wrapFind(kind string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", kind, id, types.ErrNotFound)
	}

	return wrap("find "+kind, err)
}
