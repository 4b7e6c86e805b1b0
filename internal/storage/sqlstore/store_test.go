package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]events.Event
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, evts []events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, evts)
	return p.err
}

func (p *recordingPublisher) names() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]string, 0, len(p.batches))
	for _, b := range p.batches {
		names := make([]string, 0, len(b))
		for _, e := range b {
			names = append(names, e.Name)
		}
		out = append(out, names)
	}
	return out
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%019d", s.n)
}

func newTestStore(t *testing.T) (*Store, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	db := OpenTestDB(t, WithPublisher(pub), WithIDGenerator(&sequenceIDs{}))
	return NewStore(db), pub
}

func seedRole(t *testing.T, s *Store, name string, perms ...string) models.Role {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	var saved []models.Permission
	for _, p := range perms {
		perm, err := s.Permissions().Save(ctx, *models.NewPermission("", p, now))
		require.NoError(t, err)
		saved = append(saved, perm)
	}
	role := models.NewRole("", name, now)
	role.Permissions = saved
	out, err := s.Roles().Save(ctx, *role)
	require.NoError(t, err)
	return out
}

func seedUser(t *testing.T, s *Store, email string, roles ...models.Role) models.User {
	t.Helper()
	u := models.NewUser("", "user "+email, email, "hash", roles, time.Now())
	out, err := s.Users().Save(context.Background(), *u)
	require.NoError(t, err)
	return out
}

func TestSaveAssignsIDAndFindByIDLoadsRelations(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, models.RoleUser, "user_read", "product_read")

	u := seedUser(t, s, "a@x.com", role)
	require.NotEmpty(t, u.ID)

	got, err := s.Users().FindByID(ctx, u.ID, "roles", "roles.permissions")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
	require.Len(t, got.Roles, 1)
	assert.Equal(t, models.RoleUser, got.Roles[0].Name)
	assert.ElementsMatch(t, []string{"user_read", "product_read"}, got.Roles[0].PermissionNames())
	assert.False(t, got.CreatedAt.IsZero())

	bare, err := s.Users().FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, bare.Roles)
}

func TestFindByIDMissingReturnsNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Users().FindByID(context.Background(), "nope")

	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindByEmailIsExact(t *testing.T) {
	s, _ := newTestStore(t)
	role := seedRole(t, s, models.RoleAdmin, "user_read")
	seedUser(t, s, "admin@example.com", role)

	u, err := s.Users().FindByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.Len(t, u.Roles, 1)
	assert.Equal(t, []string{"user_read"}, u.Roles[0].PermissionNames())

	_, err = s.Users().FindByEmail(context.Background(), "ADMIN@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveDuplicateEmailConflicts(t *testing.T) {
	s, _ := newTestStore(t)
	seedUser(t, s, "a@x.com")

	dup := models.NewUser("", "other", "a@x.com", "hash", nil, time.Now())
	_, err := s.Users().Save(context.Background(), *dup)

	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestSaveExistingIDUpdates(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "a@x.com")
	created := u.CreatedAt

	u.Name = "renamed"
	u.CreatedAt = time.Time{}
	saved, err := s.Users().Save(ctx, u)
	require.NoError(t, err)
	assert.True(t, created.Equal(saved.CreatedAt))

	got, err := s.Users().FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, []string{"user.updated"}, pub.names()[len(pub.names())-1])
}

func TestFindAllOrdersAndPaginates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "c@x.com")
	seedUser(t, s, "a@x.com")
	seedUser(t, s, "b@x.com")

	page, err := s.Users().FindAll(ctx, storage.FindOptions{
		OrderBy: []storage.Order{{Field: "email", Direction: storage.Asc}},
		Skip:    1,
		Take:    1,
	})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b@x.com", page[0].Email)

	rest, err := s.Users().FindAll(ctx, storage.FindOptions{
		OrderBy: []storage.Order{{Field: "email", Direction: storage.Desc}},
		Skip:    1,
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "b@x.com", rest[0].Email)
	assert.Equal(t, "a@x.com", rest[1].Email)
}

func TestFindAllFilters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := seedUser(t, s, "a@x.com")
	seedUser(t, s, "b@y.com")
	c := seedUser(t, s, "c@x.com")

	tests := []struct {
		name   string
		filter storage.Filter
		want   []string
	}{
		{"like", storage.Filter{{Field: "email", Op: storage.OpLike, Value: "%@x.com"}}, []string{"a@x.com", "c@x.com"}},
		{"in", storage.Filter{{Field: "id", Op: storage.OpIn, Value: []string{a.ID, c.ID}}}, []string{"a@x.com", "c@x.com"}},
		{"empty in", storage.Filter{{Field: "id", Op: storage.OpIn, Value: []string{}}}, nil},
		{"ne and", storage.Filter{
			{Field: "email", Op: storage.OpNe, Value: "a@x.com"},
			{Field: "email", Op: storage.OpLike, Value: "%@x.com"},
		}, []string{"c@x.com"}},
		{"not null", storage.Filter{{Field: "name", Op: storage.OpIsNull, Value: false}}, []string{"a@x.com", "b@y.com", "c@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Users().FindAll(ctx, storage.FindOptions{
				Filter:  tt.filter,
				OrderBy: []storage.Order{{Field: "email"}},
			})
			require.NoError(t, err)
			var emails []string
			for _, u := range got {
				emails = append(emails, u.Email)
			}
			assert.Equal(t, tt.want, emails)
		})
	}

	n, err := s.Users().Count(ctx, storage.Filter{{Field: "email", Op: storage.OpLike, Value: "%@x.com"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFindAllRejectsUnknownNames(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []storage.FindOptions{
		{Filter: storage.Filter{storage.Where("password_hash", "x")}},
		{OrderBy: []storage.Order{{Field: "nope"}}},
		{OrderBy: []storage.Order{{Field: "email", Direction: "SIDEWAYS"}}},
		{Relations: []string{"groups"}},
		{Relations: []string{"roles.owners"}},
		{Filter: storage.Filter{{Field: "email", Op: "regex", Value: "x"}}},
		{Filter: storage.Filter{{Field: "email", Op: storage.OpIn, Value: "x"}}},
	}
	for _, opts := range tests {
		_, err := s.Users().FindAll(ctx, opts)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	}
}

func TestEditMissingDoesNotWrite(t *testing.T) {
	s, pub := newTestStore(t)
	before := len(pub.names())
	name := "ghost"

	_, err := s.Users().Edit(context.Background(), "missing", models.UserPatch{Name: &name})

	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Len(t, pub.names(), before)
}

func TestEditChangesOnlySuppliedFields(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	userRole := seedRole(t, s, models.RoleUser)
	adminRole := seedRole(t, s, models.RoleAdmin)
	u := seedUser(t, s, "a@x.com", userRole)
	name := "Ana"

	edited, err := s.Users().Edit(ctx, u.ID, models.UserPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ana", edited.Name)
	assert.Equal(t, "a@x.com", edited.Email)
	assert.Equal(t, "hash", edited.PasswordHash)
	assert.Equal(t, []string{models.RoleUser}, edited.RoleNames())
	assert.False(t, edited.UpdatedAt.Before(u.UpdatedAt))

	roles := []models.Role{adminRole}
	edited, err = s.Users().Edit(ctx, u.ID, models.UserPatch{Roles: &roles})
	require.NoError(t, err)
	assert.Equal(t, "Ana", edited.Name)
	assert.Equal(t, []string{models.RoleAdmin}, edited.RoleNames())

	last := pub.batches[len(pub.batches)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "user.updated", last[0].Name)
	assert.Equal(t, []string{"roles"}, last[0].Payload["relations"])
}

func TestDelete(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, models.RoleUser, "user_read")
	u := seedUser(t, s, "a@x.com", role)

	require.NoError(t, s.Users().Delete(ctx, u.ID))
	_, err := s.Users().FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{"user.removed"}, pub.names()[len(pub.names())-1])

	assert.ErrorIs(t, s.Users().Delete(ctx, u.ID), storage.ErrNotFound)

	require.NoError(t, s.Roles().Delete(ctx, role.ID))
	perm, err := s.Permissions().FindByName(ctx, "user_read")
	require.NoError(t, err)
	require.NoError(t, s.Permissions().Delete(ctx, perm.ID))
}

func TestRolePermissionsReplacedWholesale(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, models.RoleVisitor, "user_read", "product_read")
	productRead, err := s.Permissions().FindByName(ctx, "product_read")
	require.NoError(t, err)

	perms := []models.Permission{productRead, productRead}
	_, err = s.Roles().Edit(ctx, role.ID, models.RolePatch{Permissions: &perms})
	require.NoError(t, err)

	got, err := s.Roles().FindByName(ctx, models.RoleVisitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"product_read"}, got.PermissionNames())

	all, err := s.Roles().FindAllWithPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestUnitOfWorkPublishesOnceInOrderAfterCommit(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	pub.batches = nil

	err := s.WithinUnitOfWork(ctx, func(r storage.Repositories) error {
		now := time.Now()
		perm, err := r.Permissions().Save(ctx, *models.NewPermission("", "user_read", now))
		if err != nil {
			return err
		}
		role := models.NewRole("", models.RoleUser, now)
		role.Permissions = []models.Permission{perm}
		if _, err := r.Roles().Save(ctx, *role); err != nil {
			return err
		}
		assert.Empty(t, pub.names())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"permission.created", "role.created"}}, pub.names())
}

func TestUnitOfWorkRollbackPublishesNothing(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	pub.batches = nil
	boom := errors.New("boom")

	err := s.WithinUnitOfWork(ctx, func(r storage.Repositories) error {
		if _, err := r.Permissions().Save(ctx, *models.NewPermission("", "user_read", time.Now())); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Empty(t, pub.names())
	_, err = s.Permissions().FindByName(ctx, "user_read")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnitOfWorkConflictRollsBackEverything(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "a@x.com")
	pub.batches = nil

	err := s.WithinUnitOfWork(ctx, func(r storage.Repositories) error {
		if _, err := r.Permissions().Save(ctx, *models.NewPermission("", "user_read", time.Now())); err != nil {
			return err
		}
		_, err := r.Users().Save(ctx, *models.NewUser("", "dup", "a@x.com", "hash", nil, time.Now()))
		return err
	})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	assert.Empty(t, pub.names())
	_, err = s.Permissions().FindByName(ctx, "user_read")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPublishFailureKeepsCommittedData(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	pub.err = errors.New("broker down")

	saved, err := s.Permissions().Save(ctx, *models.NewPermission("", "user_read", time.Now()))
	require.ErrorIs(t, err, events.ErrPublish)
	assert.NotEmpty(t, saved.ID)

	_, err = s.Permissions().FindByName(ctx, "user_read")
	assert.NoError(t, err)
}

func TestConcurrentUnitsOfWorkKeepEventsApart(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	pub.batches = nil

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithinUnitOfWork(ctx, func(r storage.Repositories) error {
				_, err := r.Permissions().Save(ctx, *models.NewPermission("", fmt.Sprintf("perm_%d", i), time.Now()))
				return err
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	batches := pub.names()
	require.Len(t, batches, 5)
	for _, b := range batches {
		assert.Equal(t, []string{"permission.created"}, b)
	}
}

func TestDefaultIDsAreSortableSnowflakes(t *testing.T) {
	s := NewStore(OpenTestDB(t))
	ctx := context.Background()

	first, err := s.Permissions().Save(ctx, *models.NewPermission("", "user_read", time.Now()))
	require.NoError(t, err)
	second, err := s.Permissions().Save(ctx, *models.NewPermission("", "user_create", time.Now()))
	require.NoError(t, err)

	assert.Regexp(t, `^\d{19}$`, first.ID)
	assert.Regexp(t, `^\d{19}$`, second.ID)
	assert.Greater(t, second.ID, first.ID)
}
