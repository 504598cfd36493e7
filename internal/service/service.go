package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasiran/backend/internal/assistant"
	"kasiran/backend/internal/cache"
	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/pricing"
	"kasiran/backend/internal/store"
	"kasiran/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	StoreID         string
	StoreName       string
	DiscountPercent decimal.Decimal
	DashboardTTL    time.Duration
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

type Service struct {
	repo            store.Repository
	dashboardCache  cache.DashboardCache
	assistant       assistant.Assistant
	defaultStoreID  string
	storeName       string
	discountPercent decimal.Decimal
	dashboardTTL    time.Duration
	clock           func() time.Time
}

func New(repo store.Repository, dashboardCache cache.DashboardCache, ai assistant.Assistant, opts Options) *Service {
	if dashboardCache == nil {
		dashboardCache = cache.NoopDashboardCache{}
	}
	if ai == nil {
		ai = assistant.Disabled{}
	}
	if opts.StoreID == "" {
		opts.StoreID = "main-store"
	}
	if opts.StoreName == "" {
		opts.StoreName = "Kasiran App"
	}
	if !pricing.ValidPercent(opts.DiscountPercent) {
		log.Printf("[service] WARN: discount percent %s out of range, using %s", opts.DiscountPercent, pricing.DefaultDiscountPercent)
		opts.DiscountPercent = pricing.DefaultDiscountPercent
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Service{
		repo:            repo,
		dashboardCache:  dashboardCache,
		assistant:       ai,
		defaultStoreID:  opts.StoreID,
		storeName:       opts.StoreName,
		discountPercent: opts.DiscountPercent,
		dashboardTTL:    opts.DashboardTTL,
		clock:           opts.Clock,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) Settings(_ context.Context) domain.Settings {
	return domain.Settings{
		StoreName:       s.storeName,
		DiscountPercent: s.discountPercent,
		AssistantReady:  s.assistant.Ready(),
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	var from, to time.Time
	if strings.TrimSpace(date) != "" {
		day, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		from = day
		to = day.Add(24 * time.Hour)
	}
	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.Username) == "" {
		return domain.Actor{}, fmt.Errorf("%w: authenticated user required", ErrForbidden)
	}
	return actor, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrValidation, fmt.Sprintf(format, args...))
}

func parseDay(value string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, invalid("date %q must use YYYY-MM-DD", value)
	}
	return day.UTC(), nil
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.dashboardCache.Invalidate(ctx, cache.DashboardKey(s.defaultStoreID)); err != nil {
		log.Printf("[service] WARN: failed to invalidate dashboard cache: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.defaultStoreID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
