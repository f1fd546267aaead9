package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"mercadinho/backend/internal/cache"
	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/logger"
	"mercadinho/backend/internal/metrics"
	"mercadinho/backend/internal/store"
)

// ErrAdminRequired is returned when a non-admin caller reaches an admin-only
// operation.
var ErrAdminRequired = errors.New("admin role required")

// systemEditor is recorded as the editor of mutations made without an
// authenticated actor, e.g. from maintenance scripts.
const systemEditor = "system"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// IsCallerAdmin is the binary admin check used by every admin-only operation.
func IsCallerAdmin(ctx context.Context) bool {
	actor, ok := ActorFromContext(ctx)
	return ok && actor.IsAdmin()
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the reference timezone for the same-day edit window.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.POS) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

type Service struct {
	repo     store.Repository
	cache    cache.Cache
	log      *logger.Logger
	metrics  *metrics.POS
	now      func() time.Time
	loc      *time.Location
	validate *validator.Validate
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cache:    cache.Noop{},
		log:      logger.Nop(),
		now:      time.Now,
		loc:      time.UTC,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the reference timezone used for calendar-day checks.
func (s *Service) Location() *time.Location {
	return s.loc
}

// timestamp is the instant persisted on new records. Microsecond precision
// matches what postgres keeps, so both stores return the same values.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) sameDay(a time.Time, b time.Time) bool {
	ay, am, ad := a.In(s.loc).Date()
	by, bm, bd := b.In(s.loc).Date()
	return ay == by && am == bm && ad == bd
}

func editorFrom(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && strings.TrimSpace(actor.Username) != "" {
		return actor.Username
	}
	return systemEditor
}

func (s *Service) requireAdmin(ctx context.Context) error {
	if !IsCallerAdmin(ctx) {
		return ErrAdminRequired
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// check validates req against its struct tags and reports the first failing
// field as a store.ValidationError.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return store.Invalid(fieldPath(fe), validationMessage(fe))
	}
	return store.Invalid("", err.Error())
}

// Validate runs the struct-tag checks used by every operation, for request
// types handled outside the service such as logins and user accounts.
func (s *Service) Validate(req any) error {
	return s.check(req)
}

// fieldPath drops the struct name from the namespace: "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have a length of at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must have a length of at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}

func (s *Service) reportCache(ctx context.Context, entity cache.Entity, outcome cache.Outcome, err error) {
	s.metrics.CacheLookup(string(entity), string(outcome))
	if err != nil {
		s.log.Zerolog(ctx).Warn().Err(err).Str("entity", string(entity)).Msg("cache unavailable, reading from store")
	}
}

// invalidate drops cached reads for entities after a committed mutation. A
// cache failure is logged; the mutation itself already succeeded.
func (s *Service) invalidate(ctx context.Context, entities ...cache.Entity) {
	if err := s.cache.Invalidate(ctx, entities...); err != nil {
		s.log.Zerolog(ctx).Warn().Err(err).Msg("cache invalidation failed")
	}
}

func readThrough[T any](ctx context.Context, s *Service, entity cache.Entity, key string, load func(context.Context) (T, error)) (T, error) {
	return cache.ReadThrough(ctx, s.cache, entity, key, s.reportCache, load)
}
