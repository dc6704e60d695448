package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linkforge/linkforge/internal/cache"
	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/pkg/logger"
)

// mockURLRepository implements repository.URLRepository for tests
type mockURLRepository struct {
	mock.Mock
}

func (m *mockURLRepository) Create(ctx context.Context, u *domain.URLMapping) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockURLRepository) FindByCode(ctx context.Context, shortCode string) (*domain.URLMapping, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLMapping), args.Error(1)
}

func (m *mockURLRepository) FindActiveByHash(ctx context.Context, hash string, owner *string) (*domain.URLMapping, error) {
	args := m.Called(ctx, hash, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLMapping), args.Error(1)
}

func (m *mockURLRepository) UpdateExpiry(ctx context.Context, shortCode string, expiresAt *time.Time) error {
	args := m.Called(ctx, shortCode, expiresAt)
	return args.Error(0)
}

func (m *mockURLRepository) SoftDelete(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *mockURLRepository) BulkSoftDelete(ctx context.Context, shortCodes []string) ([]string, []string, error) {
	args := m.Called(ctx, shortCodes)
	return args.Get(0).([]string), args.Get(1).([]string), args.Error(2)
}

func (m *mockURLRepository) IncrementAccess(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *mockURLRepository) ListByOwner(ctx context.Context, owner *string, req *domain.ListURLsRequest) (*domain.PagedURLs, error) {
	args := m.Called(ctx, owner, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PagedURLs), args.Error(1)
}

func (m *mockURLRepository) ExistsByShortCode(ctx context.Context, shortCode string) (bool, error) {
	args := m.Called(ctx, shortCode)
	return args.Bool(0), args.Error(1)
}

func (m *mockURLRepository) FindExpiring(ctx context.Context, from, to time.Time) ([]domain.URLMapping, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.URLMapping), args.Error(1)
}

func (m *mockURLRepository) FindSoftDeletedOlderThan(ctx context.Context, cutoff time.Time) ([]domain.URLMapping, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.URLMapping), args.Error(1)
}

func (m *mockURLRepository) HardDelete(ctx context.Context, shortCodes []string) (int64, error) {
	args := m.Called(ctx, shortCodes)
	return args.Get(0).(int64), args.Error(1)
}

// recordingPublisher captures click events
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ClickEvent
}

func (p *recordingPublisher) Publish(ev domain.ClickEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) all() []domain.ClickEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ClickEvent(nil), p.events...)
}

// recordingNotifier captures webhook enqueues
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.EventType
}

func (n *recordingNotifier) Enqueue(ownerID *string, event domain.EventType, data map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestCache(t *testing.T) *cache.MemoryCache {
	t.Helper()
	c, err := cache.NewMemoryCache(100, time.Minute, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func activeMapping(code string, owner *string) *domain.URLMapping {
	return &domain.URLMapping{
		ShortCode: code,
		LongURL:   "https://example.com/landing",
		OwnerID:   owner,
		CreatedAt: time.Now().UTC(),
	}
}

// expectIncrement wires the async access-count bump to a channel so
// tests can wait for it deterministically
func expectIncrement(repo *mockURLRepository, code string) chan struct{} {
	done := make(chan struct{})
	repo.On("IncrementAccess", mock.Anything, code).
		Run(func(args mock.Arguments) { close(done) }).
		Return(nil).
		Once()
	return done
}

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestResolveMissLoadsFromRepositoryAndCaches(t *testing.T) {
	repo := new(mockURLRepository)
	c := newTestCache(t)
	clicks := &recordingPublisher{}

	m := activeMapping("abc1234", nil)
	repo.On("FindByCode", mock.Anything, "abc1234").Return(m, nil).Once()
	incremented := expectIncrement(repo, "abc1234")

	r := New(repo, c, clicks, nil, 0, logger.NewLogger())

	got, err := r.Resolve(context.Background(), "abc1234", RequestMeta{SourceIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing", got.LongURL)

	waitFor(t, incremented, "access increment")

	// The snapshot is now in cache; a second resolve must not hit the
	// repository again
	c.Wait()
	incremented2 := expectIncrement(repo, "abc1234")
	_, err = r.Resolve(context.Background(), "abc1234", RequestMeta{})
	require.NoError(t, err)
	waitFor(t, incremented2, "second access increment")

	repo.AssertNumberOfCalls(t, "FindByCode", 1)

	events := clicks.all()
	require.Len(t, events, 2)
	assert.Equal(t, "abc1234", events[0].ShortCode)
	assert.Equal(t, "10.0.0.1", events[0].SourceIP)
	assert.NotEmpty(t, events[0].ID)
}

func TestResolveUnknownCodeIsNegativeCached(t *testing.T) {
	repo := new(mockURLRepository)
	c := newTestCache(t)

	repo.On("FindByCode", mock.Anything, "nothere").
		Return(nil, domain.ErrURLNotFound).Once()

	r := New(repo, c, nil, nil, 0, logger.NewLogger())

	_, err := r.Resolve(context.Background(), "nothere", RequestMeta{})
	assert.ErrorIs(t, err, domain.ErrURLNotFound)

	// Second resolve answers from the negative entry
	c.Wait()
	_, err = r.Resolve(context.Background(), "nothere", RequestMeta{})
	assert.ErrorIs(t, err, domain.ErrURLNotFound)

	repo.AssertNumberOfCalls(t, "FindByCode", 1)
}

func TestResolveExpiredMappingIsNeverNegativeCached(t *testing.T) {
	repo := new(mockURLRepository)
	c := newTestCache(t)

	past := time.Now().Add(-time.Hour)
	m := activeMapping("old1234", nil)
	m.ExpiresAt = &past

	repo.On("FindByCode", mock.Anything, "old1234").Return(m, nil).Twice()

	r := New(repo, c, nil, nil, 0, logger.NewLogger())

	_, err := r.Resolve(context.Background(), "old1234", RequestMeta{})
	assert.ErrorIs(t, err, domain.ErrURLExpired)

	// Expired is not not-found: the second resolve must reach the
	// repository and report expired again
	c.Wait()
	_, err = r.Resolve(context.Background(), "old1234", RequestMeta{})
	assert.ErrorIs(t, err, domain.ErrURLExpired)

	repo.AssertNumberOfCalls(t, "FindByCode", 2)
	repo.AssertNotCalled(t, "IncrementAccess", mock.Anything, mock.Anything)
}

func TestResolveExpiredCacheHitReportsExpired(t *testing.T) {
	repo := new(mockURLRepository)
	c := newTestCache(t)

	past := time.Now().Add(-time.Minute)
	m := activeMapping("stale12", nil)
	m.ExpiresAt = &past
	require.NoError(t, c.Put(context.Background(), m))
	c.Wait()

	r := New(repo, c, nil, nil, 0, logger.NewLogger())

	_, err := r.Resolve(context.Background(), "stale12", RequestMeta{})
	assert.ErrorIs(t, err, domain.ErrURLExpired)
	repo.AssertNotCalled(t, "FindByCode", mock.Anything, mock.Anything)
}

func TestResolveCoalescesConcurrentMisses(t *testing.T) {
	repo := new(mockURLRepository)
	c := newTestCache(t)

	var dbCalls atomic.Int32
	m := activeMapping("hot1234", nil)
	repo.On("FindByCode", mock.Anything, "hot1234").
		Run(func(args mock.Arguments) {
			dbCalls.Add(1)
			time.Sleep(100 * time.Millisecond)
		}).
		Return(m, nil)
	repo.On("IncrementAccess", mock.Anything, "hot1234").Return(nil)

	r := New(repo, c, nil, nil, 0, logger.NewLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "hot1234", RequestMeta{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dbCalls.Load(), "expected concurrent misses to share one query")
}

func TestResolveSamplesClickedWebhooks(t *testing.T) {
	repo := new(mockURLRepository)
	c := newTestCache(t)
	notifier := &recordingNotifier{}

	owner := "user-1"
	m := activeMapping("samp123", &owner)
	require.NoError(t, c.Put(context.Background(), m))
	c.Wait()

	repo.On("IncrementAccess", mock.Anything, "samp123").Return(nil)

	// Sample rate 3: exactly one webhook per three clicks
	r := New(repo, c, nil, notifier, 3, logger.NewLogger())

	for i := 0; i < 9; i++ {
		_, err := r.Resolve(context.Background(), "samp123", RequestMeta{})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, notifier.count())
}

func TestResolveNeverNotifiesForAnonymousMappings(t *testing.T) {
	repo := new(mockURLRepository)
	c := newTestCache(t)
	notifier := &recordingNotifier{}

	m := activeMapping("anon123", nil)
	require.NoError(t, c.Put(context.Background(), m))
	c.Wait()

	repo.On("IncrementAccess", mock.Anything, "anon123").Return(nil)

	r := New(repo, c, nil, notifier, 1, logger.NewLogger())

	_, err := r.Resolve(context.Background(), "anon123", RequestMeta{})
	require.NoError(t, err)

	assert.Zero(t, notifier.count())
}
