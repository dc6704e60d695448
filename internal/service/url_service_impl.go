package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linkforge/linkforge/internal/cache"
	"github.com/linkforge/linkforge/internal/config"
	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/metrics"
	"github.com/linkforge/linkforge/internal/repository"
	"github.com/linkforge/linkforge/internal/shortener"
	"github.com/linkforge/linkforge/pkg/logger"
	"github.com/linkforge/linkforge/pkg/validator"
)

// maxBulkDeleteCodes bounds a single bulk-delete request
const maxBulkDeleteCodes = 100

// aliasSuggestionCount is how many alternatives CheckAlias returns for
// a taken alias
const aliasSuggestionCount = 3

// urlService implements URLService
type urlService struct {
	repo      repository.URLRepository
	users     repository.UserRepository
	analytics repository.AnalyticsRepository
	cache     cache.URLCache
	notifier  Notifier
	generator *shortener.CodeGenerator
	cfg       *config.Config
	logger    *logger.Logger
}

// NewURLService creates a new URL service instance. cache and notifier
// may be nil; the corresponding side effects are skipped.
func NewURLService(
	repo repository.URLRepository,
	users repository.UserRepository,
	analytics repository.AnalyticsRepository,
	c cache.URLCache,
	notifier Notifier,
	generator *shortener.CodeGenerator,
	cfg *config.Config,
	log *logger.Logger,
) URLService {
	return &urlService{
		repo:      repo,
		users:     users,
		analytics: analytics,
		cache:     c,
		notifier:  notifier,
		generator: generator,
		cfg:       cfg,
		logger:    log,
	}
}

// CreateURL creates a new shortened URL mapping.
// Uniqueness is enforced by the store, not by look-before-insert: both
// the custom alias path and the generated path insert directly and
// treat a unique violation as the signal to fail or redraw.
func (s *urlService) CreateURL(ctx context.Context, p domain.Principal, req *domain.CreateURLRequest) (*domain.CreateURLResponse, error) {
	// 1. Validate the destination URL
	if err := validator.ValidateURL(req.URL); err != nil {
		s.logger.Warnw("Rejected destination URL", "url", req.URL, "error", err)
		return nil, domain.NewValidationError(err.Error())
	}

	// 2. Normalize for storage and derive the dedup fingerprint
	normalized := validator.NormalizeURL(req.URL)
	hash := validator.HashURL(normalized)

	// 3. Load the caller's stored preferences; anonymous callers have none
	owner, err := s.ownerProfile(ctx, p)
	if err != nil {
		return nil, err
	}

	// 4. Resolve the effective expiry from the request, the owner's
	//    default TTL, and the caller-class cap
	expiresAt, err := s.resolveExpiry(p, owner, req.RequestedExpiryDays())
	if err != nil {
		return nil, err
	}

	// 5. Custom alias path: the caller wants that exact name or nothing,
	//    so duplicate-destination handling does not apply
	if raw := req.Alias(); raw != "" {
		aliasCode, err := s.generator.Normalize(raw)
		if err != nil {
			s.logger.Warnw("Rejected custom alias", "alias", raw, "error", err)
			return nil, err
		}

		mapping := &domain.URLMapping{
			ShortCode:     aliasCode,
			LongURL:       normalized,
			LongURLHash:   hash,
			OwnerID:       p.OwnerRef(),
			ExpiresAt:     expiresAt,
			IsCustomAlias: true,
		}
		if err := s.repo.Create(ctx, mapping); err != nil {
			if errors.Is(err, domain.ErrAliasTaken) {
				s.logger.Infow("Custom alias already taken", "alias", aliasCode)
			}
			return nil, err
		}

		s.finishCreate(ctx, mapping, "custom")
		return s.buildResponse(mapping, false), nil
	}

	// 6. Same destination, same owner: honor the reuse preference
	if owner != nil && owner.DuplicateStrategy == domain.DuplicateReuseExisting {
		existing, err := s.repo.FindActiveByHash(ctx, hash, p.OwnerRef())
		if err == nil {
			s.logger.Debugw("Reusing existing mapping for duplicate destination",
				"short_code", existing.ShortCode, "owner", p.UserID)
			metrics.URLsCreatedTotal.WithLabelValues("reused").Inc()
			return s.buildResponse(existing, true), nil
		}
		if !errors.Is(err, domain.ErrURLNotFound) {
			return nil, err
		}
	}

	// 7. Generated path: draw random codes until one inserts cleanly
	mapping := &domain.URLMapping{
		LongURL:     normalized,
		LongURLHash: hash,
		OwnerID:     p.OwnerRef(),
		ExpiresAt:   expiresAt,
	}
	if err := s.allocateGenerated(ctx, mapping); err != nil {
		return nil, err
	}

	s.finishCreate(ctx, mapping, "generated")
	return s.buildResponse(mapping, false), nil
}

// allocateGenerated mints candidate codes until one inserts cleanly.
// Uniqueness is enforced by the partial unique index, so a lost race
// surfaces as ErrAliasTaken and we simply draw again.
func (s *urlService) allocateGenerated(ctx context.Context, m *domain.URLMapping) error {
	for attempt := 1; attempt <= s.cfg.ShortCodeMaxAttempts; attempt++ {
		m.ShortCode = s.generator.Generate()

		err := s.repo.Create(ctx, m)
		if err == nil {
			metrics.CodeGenerationRetries.Observe(float64(attempt))
			return nil
		}
		if !errors.Is(err, domain.ErrAliasTaken) {
			return err
		}

		s.logger.Warnw("Short code collision, drawing again",
			"short_code", m.ShortCode, "attempt", attempt)
	}

	metrics.CodeGenerationRetries.Observe(float64(s.cfg.ShortCodeMaxAttempts))
	s.logger.Errorw("Short code allocation exhausted",
		"attempts", s.cfg.ShortCodeMaxAttempts, "length", s.generator.Length())
	return domain.ErrGenerationExhausted
}

// resolveExpiry picks the effective expiry: an explicit request wins,
// then the owner's default TTL, both capped by the caller class.
// Anonymous mappings always expire; authenticated ones may live forever
// when nothing asks otherwise.
func (s *urlService) resolveExpiry(p domain.Principal, owner *domain.User, requested *int) (*time.Time, error) {
	maxDays := s.cfg.UserMaxTTLDays
	if p.IsAnonymous() {
		maxDays = s.cfg.AnonMaxTTLDays
	}

	var days int
	switch {
	case requested != nil:
		if *requested < 1 {
			return nil, domain.NewValidationError("expiry_days must be at least 1")
		}
		days = *requested
	case owner != nil && owner.DefaultTTLDays != nil && *owner.DefaultTTLDays > 0:
		days = *owner.DefaultTTLDays
	case p.IsAnonymous():
		days = maxDays
	default:
		return nil, nil
	}

	if days > maxDays {
		days = maxDays
	}

	t := time.Now().AddDate(0, 0, days)
	return &t, nil
}

// ownerProfile loads the caller's account record. A missing row for an
// authenticated caller means the account disappeared mid-session; the
// request is treated as unauthenticated rather than anonymous.
func (s *urlService) ownerProfile(ctx context.Context, p domain.Principal) (*domain.User, error) {
	if p.IsAnonymous() {
		return nil, nil
	}

	u, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", domain.ErrUnauthenticated)
		}
		return nil, err
	}
	return u, nil
}

// finishCreate runs the post-commit side effects shared by both create
// paths. The invalidation matters even for brand-new codes: a resolve
// attempt before the create may have left a negative cache entry that
// would otherwise shadow the new row.
func (s *urlService) finishCreate(ctx context.Context, m *domain.URLMapping, kind string) {
	metrics.URLsCreatedTotal.WithLabelValues(kind).Inc()
	s.invalidate(ctx, m.ShortCode)

	if s.notifier != nil {
		data := map[string]interface{}{
			"short_code":      m.ShortCode,
			"long_url":        m.LongURL,
			"is_custom_alias": m.IsCustomAlias,
			"created_at":      m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if m.ExpiresAt != nil {
			data["expires_at"] = m.ExpiresAt.UTC().Format(time.RFC3339)
		}
		s.notifier.Enqueue(m.OwnerID, domain.EventURLCreated, data)
	}

	s.logger.Infow("Created short URL",
		"short_code", m.ShortCode, "kind", kind, "owner", m.OwnerID)
}

// GetURLInfo returns the public metadata for a short code. Expired
// mappings answer with their own error so the API layer can distinguish
// gone from never-existed.
func (s *urlService) GetURLInfo(ctx context.Context, shortCode string) (*domain.URLInfoResponse, error) {
	mapping, err := s.repo.FindByCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if mapping.IsExpired() {
		return nil, domain.ErrURLExpired
	}
	return infoOf(mapping), nil
}

// ListURLs pages through the caller's own mappings
func (s *urlService) ListURLs(ctx context.Context, p domain.Principal, req *domain.ListURLsRequest) (*domain.PagedURLs, error) {
	if p.IsAnonymous() {
		return nil, domain.ErrUnauthenticated
	}
	return s.repo.ListByOwner(ctx, p.OwnerRef(), req)
}

// UpdateExpiry reschedules or removes a mapping's expiry
func (s *urlService) UpdateExpiry(ctx context.Context, p domain.Principal, shortCode string, req *domain.UpdateExpiryRequest) (*domain.URLInfoResponse, error) {
	// 1. Fetch and authorize
	mapping, err := s.loadOwned(ctx, p, shortCode)
	if err != nil {
		return nil, err
	}

	// 2. Validate the new expiry; nil clears it entirely
	if req.ExpiresAt != nil {
		now := time.Now()
		if !req.ExpiresAt.After(now) {
			return nil, domain.NewValidationError("expires_at must be in the future")
		}
		if !p.IsAdmin {
			limit := now.AddDate(0, 0, s.cfg.UserMaxTTLDays)
			if req.ExpiresAt.After(limit) {
				return nil, domain.NewValidationError(
					fmt.Sprintf("expires_at exceeds the %d-day maximum", s.cfg.UserMaxTTLDays))
			}
		}
	}

	// 3. Persist, then drop any cached copy of the old schedule
	if err := s.repo.UpdateExpiry(ctx, shortCode, req.ExpiresAt); err != nil {
		return nil, err
	}
	s.invalidate(ctx, shortCode)

	s.logger.Infow("Updated expiry",
		"short_code", shortCode, "expires_at", req.ExpiresAt, "caller", p.UserID)

	mapping.ExpiresAt = req.ExpiresAt
	return infoOf(mapping), nil
}

// DeleteURL soft-deletes a single mapping
func (s *urlService) DeleteURL(ctx context.Context, p domain.Principal, shortCode string) (*domain.DeleteURLResponse, error) {
	// 1. Fetch and authorize
	mapping, err := s.loadOwned(ctx, p, shortCode)
	if err != nil {
		return nil, err
	}

	// 2. Soft-delete; a concurrent delete surfaces as not found
	if err := s.repo.SoftDelete(ctx, shortCode); err != nil {
		return nil, err
	}

	// 3. Post-commit: drop the cached copy and notify the owner
	s.invalidate(ctx, shortCode)
	deletedAt := time.Now().UTC()
	if s.notifier != nil {
		s.notifier.Enqueue(mapping.OwnerID, domain.EventURLDeleted, map[string]interface{}{
			"short_code": shortCode,
			"long_url":   mapping.LongURL,
			"deleted_at": deletedAt.Format(time.RFC3339),
		})
	}

	s.logger.Infow("Deleted short URL", "short_code", shortCode, "caller", p.UserID)
	return &domain.DeleteURLResponse{ShortCode: shortCode, DeletedAt: deletedAt}, nil
}

// BulkDelete soft-deletes a batch of mappings. Authorization is per
// element: a foreign or unknown code lands in the failed list and the
// caller's own deletions still go through.
func (s *urlService) BulkDelete(ctx context.Context, p domain.Principal, req *domain.BulkDeleteRequest) (*domain.BulkDeleteResponse, error) {
	// 1. Gate and bound the batch
	if p.IsAnonymous() {
		return nil, domain.ErrUnauthenticated
	}
	if len(req.Codes) == 0 {
		return nil, domain.NewValidationError("codes must not be empty")
	}
	if len(req.Codes) > maxBulkDeleteCodes {
		return nil, domain.NewValidationError(
			fmt.Sprintf("at most %d codes per request", maxBulkDeleteCodes))
	}

	resp := &domain.BulkDeleteResponse{
		Deleted: []string{},
		Failed:  []domain.BulkDeleteFailure{},
	}

	// 2. Partition the batch into owned codes and per-element failures
	owned := make(map[string]*domain.URLMapping, len(req.Codes))
	codes := make([]string, 0, len(req.Codes))
	for _, code := range req.Codes {
		if _, dup := owned[code]; dup {
			continue
		}

		mapping, err := s.repo.FindByCode(ctx, code)
		switch {
		case errors.Is(err, domain.ErrURLNotFound):
			resp.Failed = append(resp.Failed, domain.BulkDeleteFailure{ShortCode: code, Reason: "not_found"})
		case err != nil:
			return nil, err
		case !p.IsAdmin && !mapping.OwnedBy(p.UserID):
			resp.Failed = append(resp.Failed, domain.BulkDeleteFailure{ShortCode: code, Reason: "forbidden"})
		default:
			owned[code] = mapping
			codes = append(codes, code)
		}
	}

	if len(codes) == 0 {
		return resp, nil
	}

	// 3. Delete the owned codes; races with concurrent deletes surface
	//    as per-element not_found outcomes
	deleted, failed, err := s.repo.BulkSoftDelete(ctx, codes)
	if err != nil {
		return nil, err
	}
	for _, code := range failed {
		resp.Failed = append(resp.Failed, domain.BulkDeleteFailure{ShortCode: code, Reason: "not_found"})
	}
	resp.Deleted = deleted

	// 4. Post-commit side effects per deleted code
	deletedAt := time.Now().UTC().Format(time.RFC3339)
	for _, code := range deleted {
		s.invalidate(ctx, code)
		mapping := owned[code]
		if s.notifier != nil && mapping != nil {
			s.notifier.Enqueue(mapping.OwnerID, domain.EventURLDeleted, map[string]interface{}{
				"short_code": code,
				"long_url":   mapping.LongURL,
				"deleted_at": deletedAt,
			})
		}
	}

	s.logger.Infow("Bulk delete finished",
		"requested", len(req.Codes), "deleted", len(resp.Deleted), "failed", len(resp.Failed))
	return resp, nil
}

// CheckAlias reports whether a custom alias is free. Suggestions are
// checked against the store so they were at least free at check time;
// the caller still races other creators.
func (s *urlService) CheckAlias(ctx context.Context, alias string) (*domain.CheckAliasResponse, error) {
	normalized, err := s.generator.Normalize(alias)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByShortCode(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &domain.CheckAliasResponse{Available: true, Suggestions: []string{}}, nil
	}

	candidates := s.generator.SuggestAlternatives(normalized, aliasSuggestionCount*2)
	suggestions := make([]string, 0, aliasSuggestionCount)
	for _, candidate := range candidates {
		if len(suggestions) == aliasSuggestionCount {
			break
		}
		taken, err := s.repo.ExistsByShortCode(ctx, candidate)
		if err == nil && !taken {
			suggestions = append(suggestions, candidate)
		}
	}

	return &domain.CheckAliasResponse{Available: false, Suggestions: suggestions}, nil
}

// GetStats merges the mapping's own counters with the analytics
// aggregates. The row counter is best-effort; the aggregate totals are
// the authoritative numbers.
func (s *urlService) GetStats(ctx context.Context, p domain.Principal, shortCode string) (*domain.URLStats, error) {
	mapping, err := s.loadOwned(ctx, p, shortCode)
	if err != nil {
		return nil, err
	}

	agg, err := s.analytics.TotalsFor(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	stats := &domain.URLStats{
		ShortCode:      mapping.ShortCode,
		LongURL:        mapping.LongURL,
		AccessCount:    mapping.AccessCount,
		TotalClicks:    agg.TotalClicks,
		UniqueVisitors: agg.UniqueVisitors,
		LastClickAt:    agg.LastClickAt,
		CreatedAt:      mapping.CreatedAt,
		LastAccessedAt: mapping.LastAccessedAt,
		ExpiresAt:      mapping.ExpiresAt,
	}
	if mapping.ExpiresAt != nil {
		days := int(time.Until(*mapping.ExpiresAt).Hours() / 24)
		if days < 0 {
			days = 0
		}
		stats.DaysRemaining = &days
	}
	return stats, nil
}

// SendTestWebhook enqueues a webhook.test delivery for the caller
func (s *urlService) SendTestWebhook(_ context.Context, p domain.Principal) error {
	if p.IsAnonymous() {
		return domain.ErrUnauthenticated
	}
	if s.notifier == nil {
		return nil
	}

	s.notifier.Enqueue(p.OwnerRef(), domain.EventWebhookTest, map[string]interface{}{
		"message":      "test delivery",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// loadOwned fetches a mapping and checks the caller may manage it.
// Anonymous mappings have no owner who could prove themselves, so only
// admins manage those.
func (s *urlService) loadOwned(ctx context.Context, p domain.Principal, shortCode string) (*domain.URLMapping, error) {
	if p.IsAnonymous() {
		return nil, domain.ErrUnauthenticated
	}

	mapping, err := s.repo.FindByCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin && !mapping.OwnedBy(p.UserID) {
		s.logger.Warnw("Rejected foreign mapping access",
			"short_code", shortCode, "caller", p.UserID)
		return nil, domain.ErrForbidden
	}
	return mapping, nil
}

// invalidate drops a code from the cache, logging instead of failing;
// a stale entry ages out on its own TTL
func (s *urlService) invalidate(ctx context.Context, shortCode string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, shortCode); err != nil {
		s.logger.Warnw("Cache invalidation failed", "short_code", shortCode, "error", err)
	}
}

// buildResponse shapes the create result for the wire
func (s *urlService) buildResponse(m *domain.URLMapping, reused bool) *domain.CreateURLResponse {
	return &domain.CreateURLResponse{
		ShortCode:     m.ShortCode,
		ShortURL:      fmt.Sprintf("%s/%s", s.cfg.ShortLinkBase(), m.ShortCode),
		LongURL:       m.LongURL,
		IsCustomAlias: m.IsCustomAlias,
		ExpiresAt:     m.ExpiresAt,
		WasReused:     reused,
		CreatedAt:     m.CreatedAt,
	}
}

// infoOf shapes a mapping for the info endpoint
func infoOf(m *domain.URLMapping) *domain.URLInfoResponse {
	return &domain.URLInfoResponse{
		LongURL:        m.LongURL,
		CreatedAt:      m.CreatedAt,
		ExpiresAt:      m.ExpiresAt,
		AccessCount:    m.AccessCount,
		LastAccessedAt: m.LastAccessedAt,
	}
}
