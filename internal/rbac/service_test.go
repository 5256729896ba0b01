package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	mu     sync.Mutex
	grants map[string][]Grant
	lists  atomic.Int32
	err    error
	// hold runs after the grants were read and before they are returned.
	hold func(ctx context.Context)
}

func newStubRepo() *stubRepo {
	return &stubRepo{grants: make(map[string][]Grant)}
}

func (s *stubRepo) ListGrants(ctx context.Context, consultantID string) ([]Grant, error) {
	s.lists.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	out := make([]Grant, len(s.grants[consultantID]))
	copy(out, s.grants[consultantID])
	s.mu.Unlock()
	if s.hold != nil {
		s.hold(ctx)
	}
	return out, nil
}

// blockFirstLoad parks the first ListGrants call until release is closed.
func blockFirstLoad(repo *stubRepo) (entered <-chan struct{}, release chan struct{}, loadCtxErr <-chan error) {
	in := make(chan struct{})
	out := make(chan error, 1)
	release = make(chan struct{})
	var once sync.Once
	repo.hold = func(ctx context.Context) {
		once.Do(func() {
			close(in)
			<-release
			out <- ctx.Err()
		})
	}
	return in, release, out
}

func (s *stubRepo) UpsertGrant(ctx context.Context, consultantID string, grant Grant) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.grants[consultantID]
	for i, g := range existing {
		if g.Resource == grant.Resource {
			existing[i] = grant
			return grant, nil
		}
	}
	s.grants[consultantID] = append(existing, grant)
	return grant, nil
}

func (s *stubRepo) DeleteGrant(ctx context.Context, consultantID, resource string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.grants[consultantID]
	for i, g := range existing {
		if g.Resource == resource {
			s.grants[consultantID] = append(existing[:i], existing[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *stubRepo) ReplaceGrants(ctx context.Context, consultantID string, grants []Grant) ([]Grant, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[consultantID] = append([]Grant(nil), grants...)
	return grants, nil
}

type recordedDecision struct {
	role, action string
	allowed      bool
}

type stubRecorder struct {
	mu        sync.Mutex
	decisions []recordedDecision
}

func (r *stubRecorder) RecordAuthz(role, action string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, recordedDecision{role, action, allowed})
}

func newCachedService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewGrantCache(client, time.Minute), nil, nil), mr
}

func TestServiceGrantsUsesCache(t *testing.T) {
	repo := newStubRepo()
	repo.grants["c1"] = []Grant{{Resource: "users", CanRead: true}}
	svc, mr := newCachedService(t, repo)
	ctx := context.Background()

	first, err := svc.Grants(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, mr.Exists(grantCachePrefix+"c1"))

	second, err := svc.Grants(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), repo.lists.Load())
}

func TestServiceCachesEmptyGrantList(t *testing.T) {
	repo := newStubRepo()
	svc, _ := newCachedService(t, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		grants, err := svc.Grants(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, grants)
	}
	assert.Equal(t, int32(1), repo.lists.Load())
}

func TestServiceUpsertInvalidatesCache(t *testing.T) {
	repo := newStubRepo()
	svc, mr := newCachedService(t, repo)
	ctx := context.Background()

	_, err := svc.Grants(ctx, "c1")
	require.NoError(t, err)
	require.True(t, mr.Exists(grantCachePrefix+"c1"))

	_, err = svc.UpsertGrant(ctx, "c1", Grant{Resource: " companies ", CanRead: true})
	require.NoError(t, err)
	assert.False(t, mr.Exists(grantCachePrefix+"c1"))

	grants, err := svc.Grants(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "companies", grants[0].Resource)
}

func TestServiceUpsertRejectsBlankResource(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)
	_, err := svc.UpsertGrant(context.Background(), "c1", Grant{Resource: "  "})
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestServiceRevokeGrant(t *testing.T) {
	repo := newStubRepo()
	repo.grants["c1"] = []Grant{{Resource: "users", CanRead: true}}
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.RevokeGrant(ctx, "c1", "users"))
	require.ErrorIs(t, svc.RevokeGrant(ctx, "c1", "users"), ErrNotFound)
}

func TestServiceAuthorize(t *testing.T) {
	repo := newStubRepo()
	repo.grants["c1"] = []Grant{
		{Resource: "dashboard", CanRead: true},
		{Resource: "users", CanRead: true, CanWrite: true},
	}
	recorder := &stubRecorder{}
	svc := NewService(repo, nil, nil, recorder)
	ctx := context.Background()

	allowed, err := svc.Authorize(ctx, &Actor{Role: RoleConsultant, UserID: "c1"}, "users", ActionWrite)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.Authorize(ctx, &Actor{Role: RoleConsultant, UserID: "c1"}, "dashboard", ActionDelete)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = svc.Authorize(ctx, &Actor{Role: RoleAdmin, UserID: "a1"}, "analytics", ActionDelete)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.Authorize(ctx, nil, "dashboard", ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = svc.Authorize(ctx, &Actor{Role: "GHOST"}, "dashboard", ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Only the consultant decisions hit the repository.
	assert.Equal(t, int32(2), repo.lists.Load())
	require.Len(t, recorder.decisions, 5)
	assert.Equal(t, recordedDecision{"CONSULTANT", "write", true}, recorder.decisions[0])
	assert.Equal(t, recordedDecision{"VISITOR", "read", false}, recorder.decisions[3])
	assert.Equal(t, recordedDecision{"UNKNOWN", "read", false}, recorder.decisions[4])
}

func TestServiceAuthorizePropagatesRepositoryError(t *testing.T) {
	repo := newStubRepo()
	repo.err = errors.New("db down")
	svc := NewService(repo, nil, nil, nil)

	allowed, err := svc.Authorize(context.Background(), &Actor{Role: RoleConsultant, UserID: "c1"}, "users", ActionRead)
	require.Error(t, err)
	assert.False(t, allowed)
}

func TestServiceGrantsFallsBackWhenCacheDown(t *testing.T) {
	repo := newStubRepo()
	repo.grants["c1"] = []Grant{{Resource: "users", CanRead: true}}
	svc, mr := newCachedService(t, repo)
	mr.Close()

	grants, err := svc.Grants(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestServiceReplaceGrants(t *testing.T) {
	repo := newStubRepo()
	repo.grants["c1"] = []Grant{{Resource: "users", CanRead: true}}
	svc, mr := newCachedService(t, repo)
	ctx := context.Background()

	_, err := svc.Grants(ctx, "c1")
	require.NoError(t, err)

	stored, err := svc.ReplaceGrants(ctx, "c1", []Grant{
		{Resource: "reports", CanRead: true},
		{Resource: " billing ", CanRead: true},
		{Resource: "reports", CanWrite: true},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, Grant{Resource: "reports", CanWrite: true}, stored[0])
	assert.Equal(t, "billing", stored[1].Resource)
	assert.False(t, mr.Exists(grantCachePrefix+"c1"))

	grants, err := svc.Grants(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}

func TestServiceReplaceGrantsValidates(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)
	_, err := svc.ReplaceGrants(context.Background(), "c1", []Grant{{Resource: ""}})
	require.ErrorIs(t, err, ErrInvalidGrant)
	_, err = svc.ReplaceGrants(context.Background(), " ", nil)
	require.ErrorIs(t, err, ErrInvalidGrant)

	stored, err := svc.ReplaceGrants(context.Background(), "c1", nil)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestServiceRevokeDuringLoadKeepsStaleGrantsOutOfCache(t *testing.T) {
	repo := newStubRepo()
	repo.grants["c1"] = []Grant{{Resource: "users", CanRead: true, CanDelete: true}}
	entered, release, _ := blockFirstLoad(repo)
	svc, mr := newCachedService(t, repo)
	ctx := context.Background()

	loaded := make(chan error, 1)
	go func() {
		_, err := svc.Grants(ctx, "c1")
		loaded <- err
	}()
	<-entered

	require.NoError(t, svc.RevokeGrant(ctx, "c1", "users"))
	close(release)
	require.NoError(t, <-loaded)
	assert.False(t, mr.Exists(grantCachePrefix+"c1"))

	allowed, err := svc.Authorize(ctx, &Actor{Role: RoleConsultant, UserID: "c1"}, "users", ActionDelete)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.True(t, mr.Exists(grantCachePrefix+"c1"))
}

func TestGrantCacheSetRefusedAfterInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewGrantCache(client, time.Minute)
	ctx := context.Background()

	gen, err := cache.Generation(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, cache.Invalidate(ctx, "c1"))
	require.ErrorIs(t, cache.Set(ctx, "c1", gen, []Grant{{Resource: "users", CanRead: true}}), ErrStaleGrants)
	assert.False(t, mr.Exists(grantCachePrefix+"c1"))

	gen, err = cache.Generation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	require.NoError(t, cache.Set(ctx, "c1", gen, nil))
	grants, ok, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, grants)
}

func TestServiceGrantsSurvivesCancelledLeader(t *testing.T) {
	repo := newStubRepo()
	repo.grants["c1"] = []Grant{{Resource: "users", CanRead: true}}
	entered, release, loadCtxErr := blockFirstLoad(repo)
	svc := NewService(repo, nil, nil, nil)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, err := svc.Grants(leaderCtx, "c1")
		leader <- err
	}()
	<-entered

	type result struct {
		grants []Grant
		err    error
	}
	follower := make(chan result, 1)
	go func() {
		grants, err := svc.Grants(context.Background(), "c1")
		follower <- result{grants, err}
	}()

	cancel()
	require.ErrorIs(t, <-leader, context.Canceled)

	close(release)
	require.NoError(t, <-loadCtxErr)
	res := <-follower
	require.NoError(t, res.err)
	assert.Len(t, res.grants, 1)
}
