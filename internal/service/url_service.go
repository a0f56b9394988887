package service

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/snipgo/snip/internal/cache"
	"github.com/snipgo/snip/internal/codec"
	"github.com/snipgo/snip/internal/filter"
	"github.com/snipgo/snip/internal/model"
	"github.com/snipgo/snip/internal/password"
	"github.com/snipgo/snip/internal/policy"
	"github.com/snipgo/snip/internal/repository"
)

const (
	maxLongURLLength     = 2048
	minAliasLength       = 3
	maxAliasLength       = 50
	minPasswordLength    = 4
	maxTitleLength       = 255
	maxDescriptionLength = 500
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// URLService owns the write paths and their invariants: creation with
// alias uniqueness and ID-derived code assignment, sparse updates,
// soft/hard deletion, click accounting, and the redirect gate chain.
type URLService struct {
	repo    *repository.URLRepository
	codec   *codec.Codec
	cache   *cache.RedisCache
	filter  *filter.IdentifierFilter
	nowFunc func() time.Time
}

// NewURLService creates a new URL service instance. cache and filter may
// be nil, which disables the respective fast paths.
func NewURLService(repo *repository.URLRepository, cdc *codec.Codec, c *cache.RedisCache, f *filter.IdentifierFilter) *URLService {
	return &URLService{
		repo:    repo,
		codec:   cdc,
		cache:   c,
		filter:  f,
		nowFunc: time.Now,
	}
}

// CreateInput carries the creation request. Nil optionals are absent.
type CreateInput struct {
	LongURL     string
	CustomAlias *string
	Title       *string
	Description *string
	ExpiresAt   *time.Time
	MaxClicks   *uint64
	Password    *string
	CreatorIP   *string
}

// UpdateInput carries a sparse update: only fields present in the
// request are applied, and an explicit null clears the nullable ones.
// Title, description, active flag, expiry and max-clicks are the only
// mutable fields.
type UpdateInput struct {
	Title       Field[string]
	Description Field[string]
	IsActive    Field[bool]
	ExpiresAt   Field[time.Time]
	MaxClicks   Field[uint64]
}

// changes validates the provided fields and maps them to columns. Map
// values holding typed nil pointers clear their column.
func (in UpdateInput) changes() (map[string]interface{}, error) {
	changes := make(map[string]interface{})
	if in.Title.Set {
		if in.Title.Value != nil && len(*in.Title.Value) > maxTitleLength {
			return nil, ErrInvalidTitle
		}
		changes["title"] = in.Title.Value
	}
	if in.Description.Set {
		if in.Description.Value != nil && len(*in.Description.Value) > maxDescriptionLength {
			return nil, ErrInvalidDesc
		}
		changes["description"] = in.Description.Value
	}
	if in.IsActive.Set {
		if in.IsActive.Value == nil {
			return nil, ErrInvalidActive
		}
		changes["is_active"] = *in.IsActive.Value
	}
	if in.ExpiresAt.Set {
		changes["expires_at"] = in.ExpiresAt.Value
	}
	if in.MaxClicks.Set {
		if in.MaxClicks.Value != nil && *in.MaxClicks.Value == 0 {
			return nil, ErrInvalidMaxClicks
		}
		changes["max_clicks"] = in.MaxClicks.Value
	}
	return changes, nil
}

// Stats is the derived view served by the stats endpoint.
type Stats struct {
	ID             uint       `json:"id"`
	ShortCode      string     `json:"short_code"`
	LongURL        string     `json:"long_url"`
	ClickCount     uint64     `json:"click_count"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsExpired      bool       `json:"is_expired"`
	ClickExhausted bool       `json:"click_exhausted"`
	IsAccessible   bool       `json:"is_accessible"`
}

// Create validates the request, enforces alias uniqueness across both
// identifier columns, and persists the record with its ID-derived short
// code. A store-level duplicate at commit is reported as the same
// conflict as the pre-check.
func (s *URLService) Create(ctx context.Context, in CreateInput) (*model.URL, error) {
	if err := validateLongURL(in.LongURL); err != nil {
		return nil, err
	}
	if err := validateMetadata(in.Title, in.Description); err != nil {
		return nil, err
	}
	if in.MaxClicks != nil && *in.MaxClicks == 0 {
		return nil, ErrInvalidMaxClicks
	}

	if in.CustomAlias != nil {
		if !validAlias(*in.CustomAlias) {
			return nil, ErrInvalidAlias
		}
		// Soft-deleted records keep their identifiers reserved, so the
		// check spans every non-hard-deleted row.
		taken, err := s.repo.IdentifierExists(ctx, *in.CustomAlias)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrAliasConflict
		}
	}

	var passwordHash *string
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, ErrPasswordTooShort
		}
		digest, err := password.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = &digest
	}

	u := &model.URL{
		LongURL:      in.LongURL,
		CustomAlias:  in.CustomAlias,
		Title:        in.Title,
		Description:  in.Description,
		CreatorIP:    in.CreatorIP,
		IsActive:     true,
		ExpiresAt:    in.ExpiresAt,
		PasswordHash: passwordHash,
		MaxClicks:    in.MaxClicks,
	}

	if err := s.repo.Create(ctx, u, s.codec.Encode); err != nil {
		// The unique constraints are the source of truth under
		// concurrent creation; a duplicate key at commit is the same
		// conflict the pre-check reports.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAliasConflict
		}
		return nil, err
	}

	if s.filter != nil {
		s.filter.AddBatch(u.Identifiers())
	}

	return u, nil
}

// GetByIdentifier resolves a short code or custom alias to its record.
func (s *URLService) GetByIdentifier(ctx context.Context, identifier string) (*model.URL, error) {
	if s.filter != nil && !s.filter.Test(identifier) {
		return nil, ErrNotFound
	}
	u, err := s.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// GetStats returns the derived statistics view for an identifier.
func (s *URLService) GetStats(ctx context.Context, identifier string) (*Stats, error) {
	u, err := s.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc()
	return &Stats{
		ID:             u.ID,
		ShortCode:      u.ShortCode,
		LongURL:        u.LongURL,
		ClickCount:     u.ClickCount,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
		LastAccessedAt: u.LastAccessedAt,
		ExpiresAt:      u.ExpiresAt,
		IsExpired:      policy.Expired(u, now),
		ClickExhausted: policy.ClickExhausted(u),
		IsAccessible:   policy.Accessible(u, now),
	}, nil
}

// List returns records in creation order. Bounding the limit is the
// boundary's responsibility.
func (s *URLService) List(ctx context.Context, skip, limit int, activeOnly bool) ([]model.URL, error) {
	return s.repo.List(ctx, skip, limit, activeOnly)
}

// Update applies the provided fields of in and refreshes updated_at.
// The write is column-scoped so the click counter and access time,
// owned by the redirect path, are never written back from a read
// snapshot. Unknown identities report ErrNotFound.
func (s *URLService) Update(ctx context.Context, id uint, in UpdateInput) (*model.URL, error) {
	changes, err := in.changes()
	if err != nil {
		return nil, err
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}

	if len(changes) > 0 {
		if err := s.repo.UpdateFields(ctx, id, changes); err != nil {
			return nil, err
		}
		u, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrNotFound
		}
	}

	s.invalidate(ctx, u)
	return u, nil
}

// Delete removes a record. Soft mode flips is_active and keeps the
// identifiers reserved; hard mode removes the row and frees them. Both
// report ErrNotFound when the identity does not resolve, including
// repeated deletes of an already-deleted record.
func (s *URLService) Delete(ctx context.Context, id uint, hard bool) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}

	var done bool
	if hard {
		done, err = s.repo.HardDelete(ctx, id)
	} else {
		done, err = s.repo.Deactivate(ctx, id)
	}
	if err != nil {
		return err
	}
	if !done {
		return ErrNotFound
	}

	s.invalidate(ctx, u)
	return nil
}

// Redirect runs the full gate chain for an identifier: resolve, access
// policy, credential check, then the atomic click increment. The
// destination is returned only after the click has been counted.
func (s *URLService) Redirect(ctx context.Context, identifier string, candidate *string) (string, error) {
	now := s.nowFunc()

	if s.filter != nil && !s.filter.Test(identifier) {
		return "", ErrNotFound
	}

	// Fast path: only records with an immutable gate are ever cached, so
	// a hit needs no policy or credential evaluation.
	if s.cache != nil {
		entry, err := s.cache.Get(ctx, identifier)
		if err != nil {
			log.Warn().Err(err).Str("identifier", identifier).Msg("cache lookup failed")
		}
		if entry != nil {
			clicked, err := s.repo.RecordClick(ctx, entry.ID, now)
			if err != nil {
				return "", err
			}
			if clicked {
				return entry.LongURL, nil
			}
			// Record vanished underneath the cache; drop the entry and
			// take the slow path.
			if err := s.cache.Delete(ctx, identifier); err != nil {
				log.Warn().Err(err).Msg("cache invalidation failed")
			}
		}
	}

	u, err := s.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrNotFound
	}

	if reason, denied := policy.Deny(u, now); denied {
		return "", &GoneError{Reason: reason}
	}

	if u.PasswordHash != nil {
		if candidate == nil || !password.Verify(*u.PasswordHash, *candidate) {
			return "", ErrUnauthorized
		}
	}

	if _, err := s.repo.RecordClick(ctx, u.ID, now); err != nil {
		return "", err
	}

	if s.cache != nil && cacheEligible(u) {
		if err := s.cache.Set(ctx, identifier, cache.Entry{ID: u.ID, LongURL: u.LongURL}); err != nil {
			log.Warn().Err(err).Str("identifier", identifier).Msg("cache store failed")
		}
	}

	return u.LongURL, nil
}

// SeedFilter loads every issued identifier into the negative-lookup
// filter.
func (s *URLService) SeedFilter(ctx context.Context) error {
	if s.filter == nil {
		return nil
	}
	identifiers, err := s.repo.AllIdentifiers(ctx)
	if err != nil {
		return err
	}
	s.filter.AddBatch(identifiers)
	log.Info().Int("identifiers", len(identifiers)).Msg("seeded identifier filter")
	return nil
}

// invalidate drops any cached entries for the record's identifiers.
func (s *URLService) invalidate(ctx context.Context, u *model.URL) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, u.Identifiers()...); err != nil {
		log.Warn().Err(err).Uint("id", u.ID).Msg("cache invalidation failed")
	}
}

// cacheEligible reports whether the record's gate outcome can never
// change without a mutation: active, unprotected, no expiry, no click
// cap. Anything else must be re-evaluated on every request.
func cacheEligible(u *model.URL) bool {
	return u.IsActive && u.PasswordHash == nil && u.ExpiresAt == nil && u.MaxClicks == nil
}

// validateLongURL requires a well-formed absolute http(s) URL with a host.
func validateLongURL(raw string) error {
	if raw == "" || len(raw) > maxLongURLLength {
		return ErrInvalidURL
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidURL
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func validateMetadata(title, description *string) error {
	if title != nil && len(*title) > maxTitleLength {
		return ErrInvalidTitle
	}
	if description != nil && len(*description) > maxDescriptionLength {
		return ErrInvalidDesc
	}
	return nil
}

func validAlias(alias string) bool {
	if len(alias) < minAliasLength || len(alias) > maxAliasLength {
		return false
	}
	return aliasPattern.MatchString(alias)
}
