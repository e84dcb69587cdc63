package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kavrel/tenantreg/internal/domain"
)

const tracerName = "github.com/kavrel/tenantreg/internal/adapter/otel"

// TracingStore wraps a domain.ResourceStore with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingStore struct {
	next   domain.ResourceStore
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.ResourceStore.
var _ domain.ResourceStore = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.ResourceStore) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) record(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (s *TracingStore) Insert(ctx context.Context, tenant domain.TenantRef, res domain.Resource, asPrimary bool) error {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.Insert",
		trace.WithAttributes(
			attribute.String("resource.id", res.ID),
			attribute.String("resource.kind", string(res.Kind)),
			attribute.String("tenant.id", tenant.ID),
			attribute.Bool("resource.primary", asPrimary),
		),
	)
	defer span.End()

	err := s.next.Insert(ctx, tenant, res, asPrimary)
	s.record(span, err)
	return err
}

func (s *TracingStore) GetByID(ctx context.Context, id string) (domain.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.GetByID",
		trace.WithAttributes(attribute.String("resource.id", id)),
	)
	defer span.End()

	res, err := s.next.GetByID(ctx, id)
	s.record(span, err)
	return res, err
}

func (s *TracingStore) GetByDiscriminator(ctx context.Context, kind domain.Kind, discriminator string, tenant *domain.TenantRef) (domain.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.GetByDiscriminator",
		trace.WithAttributes(
			attribute.String("resource.kind", string(kind)),
			attribute.String("resource.discriminator", discriminator),
		),
	)
	defer span.End()

	if tenant != nil {
		span.SetAttributes(attribute.String("tenant.id", tenant.ID))
	}

	res, err := s.next.GetByDiscriminator(ctx, kind, discriminator, tenant)
	s.record(span, err)
	return res, err
}

func (s *TracingStore) ListByTenant(ctx context.Context, tenant domain.TenantRef, filter domain.ListFilter) ([]domain.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.ListByTenant",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.Kind != nil {
		span.SetAttributes(attribute.String("filter.kind", string(*filter.Kind)))
	}
	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	list, err := s.next.ListByTenant(ctx, tenant, filter)
	if err != nil {
		s.record(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(list)))
	}
	return list, err
}

func (s *TracingStore) CountByTenant(ctx context.Context, tenant domain.TenantRef, filter domain.ListFilter) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.CountByTenant",
		trace.WithAttributes(attribute.String("tenant.id", tenant.ID)),
	)
	defer span.End()

	count, err := s.next.CountByTenant(ctx, tenant, filter)
	s.record(span, err)
	return count, err
}

func (s *TracingStore) ListPendingVerification(ctx context.Context, kind *domain.Kind) ([]domain.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.ListPendingVerification")
	defer span.End()

	if kind != nil {
		span.SetAttributes(attribute.String("filter.kind", string(*kind)))
	}

	list, err := s.next.ListPendingVerification(ctx, kind)
	if err != nil {
		s.record(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(list)))
	}
	return list, err
}

func (s *TracingStore) ListExpiringSSL(ctx context.Context, within time.Duration) ([]domain.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.ListExpiringSSL",
		trace.WithAttributes(attribute.String("filter.within", within.String())),
	)
	defer span.End()

	list, err := s.next.ListExpiringSSL(ctx, within)
	if err != nil {
		s.record(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(list)))
	}
	return list, err
}

func (s *TracingStore) Update(ctx context.Context, res domain.Resource) error {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.Update",
		trace.WithAttributes(attribute.String("resource.id", res.ID)),
	)
	defer span.End()

	err := s.next.Update(ctx, res)
	s.record(span, err)
	return err
}

func (s *TracingStore) UpdateStatus(ctx context.Context, id string, upd domain.StatusUpdate) (domain.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.UpdateStatus",
		trace.WithAttributes(
			attribute.String("resource.id", id),
			attribute.String("transition.event", string(upd.Event)),
			attribute.String("transition.from", string(upd.From)),
			attribute.String("transition.to", string(upd.To)),
		),
	)
	defer span.End()

	res, err := s.next.UpdateStatus(ctx, id, upd)
	s.record(span, err)
	return res, err
}

func (s *TracingStore) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.SoftDelete",
		trace.WithAttributes(attribute.String("resource.id", id)),
	)
	defer span.End()

	deleted, err := s.next.SoftDelete(ctx, id, at)
	s.record(span, err)
	span.SetAttributes(attribute.Bool("result.deleted", deleted))
	return deleted, err
}

func (s *TracingStore) SwapPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind, id string) error {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.SwapPrimary",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("resource.kind", string(kind)),
			attribute.String("resource.id", id),
		),
	)
	defer span.End()

	err := s.next.SwapPrimary(ctx, tenant, kind, id)
	s.record(span, err)
	return err
}

func (s *TracingStore) ClearPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind) error {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.ClearPrimary",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("resource.kind", string(kind)),
		),
	)
	defer span.End()

	err := s.next.ClearPrimary(ctx, tenant, kind)
	s.record(span, err)
	return err
}

func (s *TracingStore) HasPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.HasPrimary",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("resource.kind", string(kind)),
		),
	)
	defer span.End()

	has, err := s.next.HasPrimary(ctx, tenant, kind)
	s.record(span, err)
	return has, err
}

func (s *TracingStore) GetPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind) (domain.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "ResourceStore.GetPrimary",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("resource.kind", string(kind)),
		),
	)
	defer span.End()

	res, err := s.next.GetPrimary(ctx, tenant, kind)
	s.record(span, err)
	return res, err
}
