// Package connectrpc exposes the filter over the Connect protocol.
package connectrpc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

const (
	// ServiceName is the fully qualified Connect service name.
	ServiceName = "entityfilter.v1.FilterService"

	ExtractProcedure = "/" + ServiceName + "/Extract"
	FilterProcedure  = "/" + ServiceName + "/Filter"

	// TenantHeader selects the tenant when the message does not.
	TenantHeader = "X-Tenant-ID"
)

// ExtractRequest asks for the entity constraints of a text.
type ExtractRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Text     string `json:"text"`
	// ExtractAll forces comparison extraction. Without it comparison mode is
	// detected from the text.
	ExtractAll bool `json:"extract_all,omitempty"`
}

// ExtractResponse carries the extraction.
type ExtractResponse struct {
	Extraction extraction.EntityExtraction `json:"extraction"`
}

// FilterRequest asks which documents survive a query.
type FilterRequest struct {
	TenantID  string   `json:"tenant_id,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// DocumentResult is the decision for one document.
type DocumentResult struct {
	Index          int    `json:"index"`
	Filter         bool   `json:"filter"`
	Reason         string `json:"reason,omitempty"`
	DocumentEntity string `json:"document_entity,omitempty"`
}

// FilterResponse lists one result per document and the kept indexes.
type FilterResponse struct {
	Query     extraction.EntityExtraction `json:"query"`
	Results   []DocumentResult            `json:"results"`
	Kept      []int                       `json:"kept"`
	LatencyMs int64                       `json:"latency_ms"`
}

// FilterService implements the Connect filter service.
type FilterService struct {
	registry      *filter.Registry
	defaultTenant string
	logger        *observability.Logger
}

// NewFilterService creates the service. Requests that name no tenant use
// defaultTenant.
func NewFilterService(registry *filter.Registry, defaultTenant string, logger *observability.Logger) *FilterService {
	return &FilterService{
		registry:      registry,
		defaultTenant: defaultTenant,
		logger:        observability.OrNop(logger),
	}
}

// NewHandler returns the mount path and handler for the service.
func NewHandler(svc *FilterService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(Codec()),
		connect.WithInterceptors(NewTraceInterceptor()),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ExtractProcedure, connect.NewUnaryHandler(ExtractProcedure, svc.Extract, opts...))
	mux.Handle(FilterProcedure, connect.NewUnaryHandler(FilterProcedure, svc.Filter, opts...))
	return "/" + ServiceName + "/", mux
}

// Extract handles Extract calls.
func (s *FilterService) Extract(ctx context.Context, req *connect.Request[ExtractRequest]) (*connect.Response[ExtractResponse], error) {
	msg := req.Msg
	if msg.Text == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("text is required"))
	}

	engine, err := s.engine(msg.TenantID, req.Header())
	if err != nil {
		return nil, err
	}

	var x extraction.EntityExtraction
	if msg.ExtractAll {
		x = engine.Extract(ctx, msg.Text, true)
	} else {
		x = engine.GetApplicableRules(ctx, msg.Text)
	}
	return connect.NewResponse(&ExtractResponse{Extraction: x}), nil
}

// Filter handles Filter calls.
func (s *FilterService) Filter(ctx context.Context, req *connect.Request[FilterRequest]) (*connect.Response[FilterResponse], error) {
	msg := req.Msg
	if msg.Query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}

	engine, err := s.engine(msg.TenantID, req.Header())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := engine.FilterDocuments(ctx, msg.Query, msg.Documents)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
		}
		return nil, connect.NewError(connect.CodeCanceled, err)
	}

	out := &FilterResponse{
		Query:     res.Query,
		Results:   make([]DocumentResult, len(res.Decisions)),
		Kept:      res.Kept,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if out.Kept == nil {
		out.Kept = []int{}
	}
	for i, d := range res.Decisions {
		out.Results[i] = DocumentResult{
			Index:          i,
			Filter:         d.Filter,
			Reason:         d.Reason,
			DocumentEntity: d.Document.BaseEntity,
		}
	}

	s.logger.WithContext(ctx).WithTenant(engine.Name()).Debug().
		Int("documents", len(msg.Documents)).
		Int("kept", len(out.Kept)).
		Msg("Filter call completed")
	return connect.NewResponse(out), nil
}

func (s *FilterService) engine(tenantID string, header http.Header) (*filter.Engine, error) {
	if tenantID == "" {
		tenantID = header.Get(TenantHeader)
	}
	if tenantID == "" {
		tenantID = s.defaultTenant
	}
	engine, err := s.registry.Engine(tenantID)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to resolve filter engine")
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return engine, nil
}
