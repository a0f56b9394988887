package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snipgo/snip/internal/cache"
	"github.com/snipgo/snip/internal/codec"
	"github.com/snipgo/snip/internal/filter"
	"github.com/snipgo/snip/internal/policy"
	"github.com/snipgo/snip/internal/repository"
)

func newTestService(t *testing.T) *URLService {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo, err := repository.NewURLRepository(db)
	require.NoError(t, err)

	cdc, err := codec.New("test-salt", 6, "")
	require.NoError(t, err)

	return NewURLService(repo, cdc, nil, nil)
}

func newTestServiceWithCache(t *testing.T) *URLService {
	svc := newTestService(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc.cache = cache.NewRedisCacheWithClient(client)
	svc.filter = filter.NewIdentifierFilter(1000, 0.01)
	return svc
}

func strptr(s string) *string        { return &s }
func u64ptr(v uint64) *uint64        { return &v }
func timeptr(v time.Time) *time.Time { return &v }

func TestCreateAssignsDerivedCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com/page"})
	require.NoError(t, err)

	assert.NotZero(t, u.ID)
	assert.True(t, u.IsActive)
	assert.Zero(t, u.ClickCount)

	decoded, ok := svc.codec.Decode(u.ShortCode)
	require.True(t, ok)
	assert.Equal(t, u.ID, decoded)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"empty url", CreateInput{LongURL: ""}, ErrInvalidURL},
		{"no scheme", CreateInput{LongURL: "example.com/page"}, ErrInvalidURL},
		{"ftp scheme", CreateInput{LongURL: "ftp://example.com/file"}, ErrInvalidURL},
		{"no host", CreateInput{LongURL: "https:///path"}, ErrInvalidURL},
		{"alias too short", CreateInput{LongURL: "https://example.com", CustomAlias: strptr("ab")}, ErrInvalidAlias},
		{"alias bad chars", CreateInput{LongURL: "https://example.com", CustomAlias: strptr("bad alias!")}, ErrInvalidAlias},
		{"zero max clicks", CreateInput{LongURL: "https://example.com", MaxClicks: u64ptr(0)}, ErrInvalidMaxClicks},
		{"short password", CreateInput{LongURL: "https://example.com", Password: strptr("abc")}, ErrPasswordTooShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateAliasConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{
		LongURL:     "https://example.com/a",
		CustomAlias: strptr("test123"),
	})
	require.NoError(t, err)

	// Same alias again.
	_, err = svc.Create(ctx, CreateInput{
		LongURL:     "https://example.com/b",
		CustomAlias: strptr("test123"),
	})
	assert.ErrorIs(t, err, ErrAliasConflict)

	// Alias equal to an existing generated short code.
	_, err = svc.Create(ctx, CreateInput{
		LongURL:     "https://example.com/c",
		CustomAlias: &first.ShortCode,
	})
	assert.ErrorIs(t, err, ErrAliasConflict)
}

func TestCreateAliasConflictIncludesSoftDeleted(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{
		LongURL:     "https://example.com",
		CustomAlias: strptr("reserved"),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, u.ID, false))

	// Soft-deleted records keep their identifiers.
	_, err = svc.Create(ctx, CreateInput{
		LongURL:     "https://example.com/other",
		CustomAlias: strptr("reserved"),
	})
	assert.ErrorIs(t, err, ErrAliasConflict)
}

func TestConcurrentSameAliasCreatesOneSuccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, CreateInput{
				LongURL:     "https://example.com/race",
				CustomAlias: strptr("race-alias"),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAliasConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestRedirectUnknownCode(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Redirect(context.Background(), "nope42", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedirectCountsClicks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com/dest"})
	require.NoError(t, err)

	dest, err := svc.Redirect(ctx, u.ShortCode, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/dest", dest)

	stats, err := svc.GetStats(ctx, u.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.ClickCount)
	assert.NotNil(t, stats.LastAccessedAt)
}

func TestRedirectByAlias(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		LongURL:     "https://example.com/aliased",
		CustomAlias: strptr("my-link"),
	})
	require.NoError(t, err)

	dest, err := svc.Redirect(ctx, "my-link", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/aliased", dest)
}

func TestRedirectPasswordProtected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{
		LongURL:  "https://example.com/secret",
		Password: strptr("hunter42"),
	})
	require.NoError(t, err)

	// Missing password.
	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Wrong password, and the failed attempt must not count a click.
	_, err = svc.Redirect(ctx, u.ShortCode, strptr("wrong"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	stats, err := svc.GetStats(ctx, u.ShortCode)
	require.NoError(t, err)
	assert.Zero(t, stats.ClickCount)

	// Correct password counts exactly one click.
	dest, err := svc.Redirect(ctx, u.ShortCode, strptr("hunter42"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/secret", dest)

	stats, err = svc.GetStats(ctx, u.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.ClickCount)
}

func TestRedirectClickCap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{
		LongURL:   "https://example.com/capped",
		MaxClicks: u64ptr(2),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := svc.Redirect(ctx, u.ShortCode, nil)
		require.NoError(t, err, "redirect %d", i+1)
	}

	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
	assert.Equal(t, policy.ReasonClickExhausted, gone.Reason)
}

func TestRedirectExpiry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }

	u, err := svc.Create(ctx, CreateInput{
		LongURL:   "https://example.com/expiring",
		ExpiresAt: timeptr(now.Add(time.Hour)),
	})
	require.NoError(t, err)

	// Inside the window, boundary inclusive.
	svc.nowFunc = func() time.Time { return now.Add(time.Hour) }
	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	require.NoError(t, err)

	// Strictly past the boundary.
	svc.nowFunc = func() time.Time { return now.Add(time.Hour + time.Second) }
	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
	assert.Equal(t, policy.ReasonExpired, gone.Reason)
}

func TestSoftDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, u.ID, false))

	// Still findable, but inactive and blocked.
	stored, err := svc.GetByIdentifier(ctx, u.ShortCode)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
	assert.Equal(t, policy.ReasonDeactivated, gone.Reason)

	// Repeated soft delete reports not-found.
	assert.ErrorIs(t, svc.Delete(ctx, u.ID, false), ErrNotFound)
}

func TestHardDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, u.ID, true))

	_, err = svc.GetByIdentifier(ctx, u.ShortCode)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, u.ID, true), ErrNotFound)
}

func TestDeleteUnknownID(t *testing.T) {
	svc := newTestService(t)

	assert.ErrorIs(t, svc.Delete(context.Background(), 9999, false), ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), 9999, true), ErrNotFound)
}

func TestUpdateSparseFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{
		LongURL:     "https://example.com",
		Title:       strptr("original title"),
		Description: strptr("original description"),
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, u.ID, UpdateInput{Title: Provide("new title")})
	require.NoError(t, err)

	assert.Equal(t, "new title", *updated.Title)
	// Untouched fields keep their values.
	assert.Equal(t, "original description", *updated.Description)
	assert.True(t, updated.IsActive)

	// Deactivation through update gates redirects.
	_, err = svc.Update(ctx, u.ID, UpdateInput{IsActive: Provide(false)})
	require.NoError(t, err)
	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	var gone *GoneError
	assert.ErrorAs(t, err, &gone)
}

func TestUpdateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, u.ID, UpdateInput{MaxClicks: Provide(uint64(0))})
	assert.ErrorIs(t, err, ErrInvalidMaxClicks)

	_, err = svc.Update(ctx, u.ID, UpdateInput{IsActive: Clear[bool]()})
	assert.ErrorIs(t, err, ErrInvalidActive)

	_, err = svc.Update(ctx, 9999, UpdateInput{Title: Provide("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePreservesClickCounter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com"})
	require.NoError(t, err)

	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	require.NoError(t, err)

	// A metadata update must not write back the click columns it read.
	updated, err := svc.Update(ctx, u.ID, UpdateInput{Title: Provide("renamed")})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), updated.ClickCount)
	assert.NotNil(t, updated.LastAccessedAt)

	stats, err := svc.GetStats(ctx, u.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.ClickCount)
}

func TestUpdateClearsExpiryAndClickCap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }

	u, err := svc.Create(ctx, CreateInput{
		LongURL:   "https://example.com",
		ExpiresAt: timeptr(now.Add(-time.Hour)),
		MaxClicks: u64ptr(1),
	})
	require.NoError(t, err)

	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
	assert.Equal(t, policy.ReasonExpired, gone.Reason)

	// Explicit nulls lift both constraints.
	updated, err := svc.Update(ctx, u.ID, UpdateInput{
		ExpiresAt: Clear[time.Time](),
		MaxClicks: Clear[uint64](),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpiresAt)
	assert.Nil(t, updated.MaxClicks)

	for i := 0; i < 2; i++ {
		_, err = svc.Redirect(ctx, u.ShortCode, nil)
		require.NoError(t, err)
	}
}

func TestGetStatsDerivedFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }

	u, err := svc.Create(ctx, CreateInput{
		LongURL:   "https://example.com",
		ExpiresAt: timeptr(now.Add(-time.Hour)),
	})
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx, u.ShortCode)
	require.NoError(t, err)
	assert.True(t, stats.IsExpired)
	assert.False(t, stats.ClickExhausted)
	assert.False(t, stats.IsAccessible)

	_, err = svc.GetStats(ctx, "unknown99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListClampedByCaller(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com/page"})
		require.NoError(t, err)
	}

	urls, err := svc.List(ctx, 0, 2, false)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestRedirectCachedFastPathStillCounts(t *testing.T) {
	svc := newTestServiceWithCache(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com/cached"})
	require.NoError(t, err)

	// First redirect populates the cache, second one is served from it;
	// both must land in the click counter.
	for i := 0; i < 2; i++ {
		dest, err := svc.Redirect(ctx, u.ShortCode, nil)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/cached", dest)
	}

	stats, err := svc.GetStats(ctx, u.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.ClickCount)
}

func TestConstrainedRecordsAreNotCached(t *testing.T) {
	svc := newTestServiceWithCache(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{
		LongURL:   "https://example.com/limited",
		MaxClicks: u64ptr(1),
	})
	require.NoError(t, err)

	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	require.NoError(t, err)

	// A cached entry would bypass the click-cap gate here.
	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
	assert.Equal(t, policy.ReasonClickExhausted, gone.Reason)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	svc := newTestServiceWithCache(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com/v1"})
	require.NoError(t, err)

	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	require.NoError(t, err)

	_, err = svc.Update(ctx, u.ID, UpdateInput{IsActive: Provide(false)})
	require.NoError(t, err)

	// The cached entry must not outlive the deactivation.
	_, err = svc.Redirect(ctx, u.ShortCode, nil)
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
	assert.Equal(t, policy.ReasonDeactivated, gone.Reason)
}

func TestSeedFilterRejectsForeignCodes(t *testing.T) {
	svc := newTestServiceWithCache(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{LongURL: "https://example.com"})
	require.NoError(t, err)

	svc.filter.Clear()
	require.NoError(t, svc.SeedFilter(ctx))

	_, err = svc.GetByIdentifier(ctx, u.ShortCode)
	require.NoError(t, err)
	_, err = svc.GetByIdentifier(ctx, "definitely-not-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}
