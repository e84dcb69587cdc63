package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/kavrel/tenantreg/internal/app"
	"github.com/kavrel/tenantreg/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID        string `json:"id" doc:"Unique identifier"`
	Name      string `json:"name" doc:"Display name"`
	CreatedAt string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: t.CreatedAt.Format(timeFormat),
	}
}

// SSLResponse is the API representation of a resource's certificate config.
type SSLResponse struct {
	CertificatePath string `json:"certificate_path" doc:"Path to the certificate"`
	IssuedAt        string `json:"issued_at" doc:"Issue timestamp (ISO 8601)"`
	ExpiresAt       string `json:"expires_at" doc:"Expiry timestamp (ISO 8601)"`
}

// ResourceResponse is the API representation of a registered resource.
type ResourceResponse struct {
	ID            string            `json:"id" doc:"Unique identifier"`
	TenantID      string            `json:"tenant_id" doc:"Owning tenant"`
	Kind          string            `json:"kind" doc:"Resource kind"`
	Discriminator string            `json:"discriminator" doc:"Normalized unique value"`
	IsPrimary     bool              `json:"is_primary" doc:"Primary designation for its kind"`
	IsEnabled     bool              `json:"is_enabled" doc:"Serving toggle"`
	Status        string            `json:"status" doc:"Lifecycle state"`
	FailureReason string            `json:"failure_reason,omitempty" doc:"Reason recorded on failure"`
	VerifiedAt    string            `json:"verified_at,omitempty" doc:"Verification timestamp (ISO 8601)"`
	SSL           *SSLResponse      `json:"ssl,omitempty" doc:"Certificate configuration"`
	Metadata      map[string]string `json:"metadata,omitempty" doc:"Free-form metadata"`
	CreatedAt     string            `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt     string            `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
	DeletedAt     string            `json:"deleted_at,omitempty" doc:"Soft-delete timestamp (ISO 8601)"`
}

func toResourceResponse(r domain.Resource) ResourceResponse {
	resp := ResourceResponse{
		ID:            r.ID,
		TenantID:      r.TenantID,
		Kind:          string(r.Kind),
		Discriminator: r.Discriminator,
		IsPrimary:     r.IsPrimary,
		IsEnabled:     r.IsEnabled,
		Status:        string(r.Status),
		FailureReason: r.FailureReason,
		Metadata:      r.Metadata,
		CreatedAt:     r.CreatedAt.Format(timeFormat),
		UpdatedAt:     r.UpdatedAt.Format(timeFormat),
	}
	if r.VerifiedAt != nil {
		resp.VerifiedAt = r.VerifiedAt.Format(timeFormat)
	}
	if r.DeletedAt != nil {
		resp.DeletedAt = r.DeletedAt.Format(timeFormat)
	}
	if r.SSL != nil {
		resp.SSL = &SSLResponse{
			CertificatePath: r.SSL.CertificatePath,
			IssuedAt:        r.SSL.IssuedAt.Format(timeFormat),
			ExpiresAt:       r.SSL.ExpiresAt.Format(timeFormat),
		}
	}
	return resp
}

func toResourceResponses(list []domain.Resource) []ResourceResponse {
	resp := make([]ResourceResponse, len(list))
	for i, r := range list {
		resp[i] = toResourceResponse(r)
	}
	return resp
}

// SSLInput carries certificate configuration on create and update.
type SSLInput struct {
	CertificatePath string    `json:"certificate_path" minLength:"1" doc:"Path to the certificate"`
	IssuedAt        time.Time `json:"issued_at" doc:"Issue timestamp"`
	ExpiresAt       time.Time `json:"expires_at" doc:"Expiry timestamp"`
}

func (s *SSLInput) toDomain() *domain.SSLConfig {
	if s == nil {
		return nil
	}
	return &domain.SSLConfig{
		CertificatePath: s.CertificatePath,
		IssuedAt:        s.IssuedAt,
		ExpiresAt:       s.ExpiresAt,
	}
}

// --- Register Tenant ---

type CreateTenantInput struct {
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
	}
}

type CreateTenantOutput struct {
	Body TenantResponse
}

// --- Create Resource ---

type CreateResourceInput struct {
	TenantID string `path:"tenantID" doc:"Tenant ID"`
	Body     struct {
		Kind          string            `json:"kind" enum:"custom_domain,url_config,domain_mapping" doc:"Resource kind"`
		Discriminator string            `json:"discriminator" minLength:"1" maxLength:"253" doc:"Domain name or URL path"`
		Primary       bool              `json:"primary,omitempty" doc:"Designate as primary on creation"`
		Metadata      map[string]string `json:"metadata,omitempty" doc:"Free-form metadata"`
		SSL           *SSLInput         `json:"ssl,omitempty" doc:"Certificate configuration"`
	}
}

type CreateResourceOutput struct {
	Body ResourceResponse
}

// --- Get / Lookup ---

type GetResourceInput struct {
	ID string `path:"id" doc:"Resource ID"`
}

type GetResourceOutput struct {
	Body ResourceResponse
}

type LookupResourceInput struct {
	Kind          string `query:"kind" enum:"custom_domain,url_config,domain_mapping" doc:"Resource kind"`
	Discriminator string `query:"discriminator" doc:"Domain name or URL path"`
	TenantID      string `query:"tenant_id" required:"false" doc:"Tenant ID, required for tenant-scoped kinds"`
}

// --- List / Count ---

type ListResourcesInput struct {
	TenantID       string `path:"tenantID" doc:"Tenant ID"`
	Kind           string `query:"kind" required:"false" doc:"Filter by kind"`
	Status         string `query:"status" required:"false" doc:"Filter by status"`
	PrimaryOnly    bool   `query:"primary_only" required:"false" doc:"Only primary resources"`
	IncludeDeleted bool   `query:"include_deleted" required:"false" doc:"Include soft-deleted resources"`
	Limit          int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset         int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListResourcesOutput struct {
	Body []ResourceResponse
}

type CountResourcesOutput struct {
	Body struct {
		Count int64 `json:"count" doc:"Number of matching resources"`
	}
}

// --- Update ---

type UpdateResourceInput struct {
	ID   string `path:"id" doc:"Resource ID"`
	Body struct {
		Metadata map[string]string `json:"metadata,omitempty" doc:"Replacement metadata"`
		SSL      *SSLInput         `json:"ssl,omitempty" doc:"Replacement certificate configuration"`
	}
}

type SetEnabledInput struct {
	ID   string `path:"id" doc:"Resource ID"`
	Body struct {
		Enabled bool `json:"enabled" doc:"Whether the resource serves traffic"`
	}
}

// --- Delete ---

type DeleteResourceInput struct {
	ID string `path:"id" doc:"Resource ID"`
}

type DeleteResourceOutput struct {
	Body struct {
		Deleted bool `json:"deleted" doc:"Whether this call removed the resource"`
	}
}

// --- Primary designation ---

type PromoteInput struct {
	TenantID string `path:"tenantID" doc:"Tenant ID"`
	ID       string `path:"id" doc:"Resource ID"`
}

type PrimaryInput struct {
	TenantID string `path:"tenantID" doc:"Tenant ID"`
	Kind     string `path:"kind" enum:"custom_domain,url_config,domain_mapping" doc:"Resource kind"`
}

// --- Lifecycle ---

type TransitionInput struct {
	ID   string `path:"id" doc:"Resource ID"`
	Body struct {
		Event  string `json:"event" enum:"verify,activate,suspend,fail,reset" doc:"Lifecycle event to trigger"`
		Reason string `json:"reason,omitempty" doc:"Failure reason, recorded on fail"`
	}
}

type SetStatusInput struct {
	ID   string `path:"id" doc:"Resource ID"`
	Body struct {
		Status string `json:"status" enum:"pending_verification,verified,active,suspended,failed" doc:"Target lifecycle state"`
	}
}

// --- Maintenance queries ---

type PendingInput struct {
	Kind string `query:"kind" required:"false" doc:"Filter by kind"`
}

type ExpiringInput struct {
	Within string `query:"within" required:"false" default:"720h" doc:"Expiry window as a Go duration"`
}

// Register adds all registry API routes to the Huma API.
func Register(api huma.API, registry *app.Registry) {
	huma.Register(api, huma.Operation{
		OperationID: "create-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants",
		Summary:     "Register a new tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *CreateTenantInput) (*CreateTenantOutput, error) {
		tenant, err := registry.RegisterTenant(ctx, input.Body.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-resource",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantID}/resources",
		Summary:     "Register a resource for a tenant",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *CreateResourceInput) (*CreateResourceOutput, error) {
		res, err := registry.Create(ctx, input.TenantID, app.CreateParams{
			Kind:          domain.Kind(input.Body.Kind),
			Discriminator: input.Body.Discriminator,
			Primary:       input.Body.Primary,
			Metadata:      input.Body.Metadata,
			SSL:           input.Body.SSL.toDomain(),
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-resource",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/{id}",
		Summary:     "Get a resource by ID",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *GetResourceInput) (*GetResourceOutput, error) {
		res, err := registry.GetByID(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lookup-resource",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/lookup",
		Summary:     "Find a resource by kind and discriminator",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *LookupResourceInput) (*GetResourceOutput, error) {
		res, err := registry.FindByDiscriminator(ctx, domain.Kind(input.Kind), input.Discriminator, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-resources",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantID}/resources",
		Summary:     "List a tenant's resources",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *ListResourcesInput) (*ListResourcesOutput, error) {
		list, err := registry.FindByTenant(ctx, input.TenantID, toListFilter(input))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListResourcesOutput{Body: toResourceResponses(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "count-resources",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantID}/resources/count",
		Summary:     "Count a tenant's resources",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *ListResourcesInput) (*CountResourcesOutput, error) {
		count, err := registry.CountByTenant(ctx, input.TenantID, toListFilter(input))
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &CountResourcesOutput{}
		out.Body.Count = count
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-resource",
		Method:      http.MethodPatch,
		Path:        "/api/v1/resources/{id}",
		Summary:     "Update a resource's metadata or certificate config",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *UpdateResourceInput) (*GetResourceOutput, error) {
		res, err := registry.Update(ctx, input.ID, app.UpdateParams{
			Metadata: input.Body.Metadata,
			SSL:      input.Body.SSL.toDomain(),
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-resource-enabled",
		Method:      http.MethodPut,
		Path:        "/api/v1/resources/{id}/enabled",
		Summary:     "Enable or disable a resource",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *SetEnabledInput) (*GetResourceOutput, error) {
		res, err := registry.SetEnabled(ctx, input.ID, input.Body.Enabled)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-resource",
		Method:      http.MethodDelete,
		Path:        "/api/v1/resources/{id}",
		Summary:     "Soft-delete a resource",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *DeleteResourceInput) (*DeleteResourceOutput, error) {
		deleted, err := registry.Delete(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &DeleteResourceOutput{}
		out.Body.Deleted = deleted
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "promote-resource",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantID}/resources/{id}/primary",
		Summary:     "Designate a resource as primary for its kind",
		Tags:        []string{"Primary"},
	}, func(ctx context.Context, input *PromoteInput) (*GetResourceOutput, error) {
		res, err := registry.PromoteToPrimary(ctx, input.ID, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-primary",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantID}/primary/{kind}",
		Summary:     "Get the tenant's primary resource of a kind",
		Tags:        []string{"Primary"},
	}, func(ctx context.Context, input *PrimaryInput) (*GetResourceOutput, error) {
		res, err := registry.GetPrimary(ctx, input.TenantID, domain.Kind(input.Kind))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-primary",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tenants/{tenantID}/primary/{kind}",
		Summary:     "Clear the tenant's primary designation for a kind",
		Tags:        []string{"Primary"},
	}, func(ctx context.Context, input *PrimaryInput) (*struct{}, error) {
		if err := registry.UnsetAllPrimary(ctx, input.TenantID, domain.Kind(input.Kind)); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-resource",
		Method:      http.MethodPost,
		Path:        "/api/v1/resources/{id}/events",
		Summary:     "Trigger a lifecycle event",
		Tags:        []string{"Lifecycle"},
	}, func(ctx context.Context, input *TransitionInput) (*GetResourceOutput, error) {
		res, err := registry.Transition(ctx, input.ID, domain.Event(input.Body.Event), input.Body.Reason)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-resource-status",
		Method:      http.MethodPut,
		Path:        "/api/v1/resources/{id}/status",
		Summary:     "Move a resource to a target lifecycle state",
		Tags:        []string{"Lifecycle"},
	}, func(ctx context.Context, input *SetStatusInput) (*GetResourceOutput, error) {
		res, err := registry.UpdateStatus(ctx, input.ID, domain.Status(input.Body.Status))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-verification",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/pending-verification",
		Summary:     "List resources awaiting verification",
		Tags:        []string{"Maintenance"},
	}, func(ctx context.Context, input *PendingInput) (*ListResourcesOutput, error) {
		var kind *domain.Kind
		if input.Kind != "" {
			k := domain.Kind(input.Kind)
			kind = &k
		}
		list, err := registry.FindPendingVerification(ctx, kind)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListResourcesOutput{Body: toResourceResponses(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-expiring-ssl",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/expiring-ssl",
		Summary:     "List resources whose certificates expire soon",
		Tags:        []string{"Maintenance"},
	}, func(ctx context.Context, input *ExpiringInput) (*ListResourcesOutput, error) {
		within, err := time.ParseDuration(input.Within)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("within must be a valid duration")
		}
		list, err := registry.FindExpiring(ctx, within)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListResourcesOutput{Body: toResourceResponses(list)}, nil
	})
}

func toListFilter(input *ListResourcesInput) domain.ListFilter {
	filter := domain.ListFilter{
		PrimaryOnly:    input.PrimaryOnly,
		IncludeDeleted: input.IncludeDeleted,
		Limit:          input.Limit,
		Offset:         input.Offset,
	}
	if input.Kind != "" {
		k := domain.Kind(input.Kind)
		filter.Kind = &k
	}
	if input.Status != "" {
		s := domain.Status(input.Status)
		filter.Status = &s
	}
	return filter
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrResourceNotFound) {
		return huma.Error404NotFound("resource not found")
	}
	if errors.Is(err, domain.ErrTenantNotFound) {
		return huma.Error404NotFound("tenant not found")
	}

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return huma.Error409Conflict(conflict.Error())
	}

	var ownErr *domain.OwnershipError
	if errors.As(err, &ownErr) {
		return huma.Error403Forbidden(ownErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var discErr *domain.InvalidDiscriminatorError
	if errors.As(err, &discErr) {
		return huma.Error422UnprocessableEntity(discErr.Error())
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return huma.Error422UnprocessableEntity(valErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
