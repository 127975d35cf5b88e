package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/entity-filter/cmd/entity-filter-api/handlers"
	"github.com/spherical-ai/spherical/libs/entity-filter/cmd/entity-filter-api/middleware"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/api/connectrpc"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/config"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
	"github.com/spherical-ai/spherical/libs/entity-filter/pkg/engine"
)

func newTestRouter(t *testing.T) (http.Handler, *filter.Registry) {
	t.Helper()
	registry := filter.NewRegistry(func(tenantID string) (rules.Source, error) {
		switch tenantID {
		case "dev":
			return rules.NewStaticSource([]rules.Row{
				{Entity: "E5Q"},
				{Entity: "T80"},
				{Entity: "P20"},
				{Entity: "P20 Plus"},
				{Entity: "P20 Ultra Plus"},
				{Entity: "75寸", AttributeType: "尺寸"},
				{Entity: "65寸", AttributeType: "尺寸"},
				{Entity: "8GB", AttributeType: "内存"},
			}), nil
		case "globex":
			return rules.NewStaticSource([]rules.Row{{Entity: "X1"}}), nil
		default:
			return nil, errors.New("unknown tenant")
		}
	}, nil)
	t.Cleanup(registry.Close)

	return NewRouter(observability.Nop(), registry, config.DefaultConfig()), registry
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthAndReady(t *testing.T) {
	h, registry := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.TraceHeader))

	rec = do(t, h, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	engine, err := registry.Engine("dev")
	require.NoError(t, err)
	engine.EnsureLoaded(context.Background())

	rec = do(t, h, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Extract(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/rules/extract", handlers.ExtractRequestDTO{Text: "P20U+ 8GB"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.ExtractResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dev", resp.TenantID)
	assert.Equal(t, "P20 Ultra Plus", resp.Extraction.BaseEntity)
	assert.Equal(t, []string{"8GB"}, resp.Extraction.Attributes)

	rec = do(t, h, http.MethodPost, "/api/v1/rules/extract?tenant_id=globex", handlers.ExtractRequestDTO{Text: "X1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "globex", resp.TenantID)
	assert.Equal(t, "X1", resp.Extraction.BaseEntity)
}

func TestRouter_ExtractErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name   string
		body   interface{}
		header map[string]string
		status int
		errMsg string
	}{
		{"empty text", handlers.ExtractRequestDTO{}, nil, http.StatusBadRequest, "text is required"},
		{"unknown field", map[string]string{"txt": "E5Q"}, nil, http.StatusBadRequest, "invalid request body"},
		{"unknown tenant", handlers.ExtractRequestDTO{Text: "E5Q"}, map[string]string{middleware.TenantHeader: "initech"}, http.StatusInternalServerError, "tenant dictionary unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/rules/extract", tt.body, tt.header)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.errMsg, body["error"])
			assert.Equal(t, tt.errMsg, body["message"])
		})
	}
}

func TestRouter_Filter(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/filter", handlers.FilterRequestDTO{
		Query:     "E5Q 75寸",
		Documents: []string{"E5Q 75寸 现货", "E5Q 65寸", "T80 75寸"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.FilterResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "E5Q", resp.Query.BaseEntity)
	assert.Equal(t, []int{0}, resp.Kept)
	assert.Equal(t, []string{"E5Q 75寸 现货"}, resp.KeptDocuments)
	require.Len(t, resp.Decisions, 3)
	assert.Equal(t, "missing attributes: 75寸", resp.Decisions[1].Reason)
	assert.True(t, resp.Decisions[2].Filter)

	rec = do(t, h, http.MethodPost, "/api/v1/filter", handlers.FilterRequestDTO{Documents: []string{"E5Q"}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Decision(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name       string
		req        handlers.DecisionRequestDTO
		wantFilter bool
		wantReason string
	}{
		{
			name: "comparison extraction keeps listed entity",
			req: handlers.DecisionRequestDTO{
				Document: "P20 Plus 续航",
				Extraction: &extraction.EntityExtraction{
					BaseEntity: "P20", AllEntities: []string{"P20", "P20 Plus"}, IsComparison: true,
				},
			},
		},
		{
			name:       "query text is extracted",
			req:        handlers.DecisionRequestDTO{Document: "T80 参数", Query: "E5Q 怎么样"},
			wantFilter: true,
			wantReason: `entity mismatch: query "E5Q", document "T80"`,
		},
		{
			name: "empty document passes",
			req:  handlers.DecisionRequestDTO{Document: "", Query: "E5Q"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/filter/decision", tt.req, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp handlers.DecisionResponseDTO
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantFilter, resp.Filter)
			assert.Equal(t, tt.wantReason, resp.Reason)
		})
	}

	rec := do(t, h, http.MethodPost, "/api/v1/filter/decision", handlers.DecisionRequestDTO{Document: "E5Q"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ReloadAndStats(t *testing.T) {
	h, registry := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/rules/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats filter.EngineStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.True(t, stats.Loaded)
	assert.Equal(t, int64(1), stats.Loads)
	require.NotNil(t, stats.Rules)

	rec = do(t, h, http.MethodPost, "/api/v1/rules/reload", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reload handlers.ReloadResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reload))
	require.Len(t, reload.Reloaded, 1)
	assert.Equal(t, int64(2), reload.Reloaded[0].Loads)

	_, err := registry.Engine("globex")
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/api/v1/rules/reload?all=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reload))
	assert.Len(t, reload.Reloaded, 2)
}

func TestRouter_ConnectMounted(t *testing.T) {
	h, _ := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	client := connectrpc.NewClient(srv.Client(), srv.URL)
	res, err := client.Extract(context.Background(), &connectrpc.ExtractRequest{Text: "E5Q 75寸"})
	require.NoError(t, err)
	assert.Equal(t, "E5Q", res.Extraction.BaseEntity)
}

func TestRouter_CORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodOptions, "/api/v1/filter", nil, map[string]string{"Origin": "https://example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_SDKRoundTrip(t *testing.T) {
	h, _ := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	c, err := engine.NewClient(engine.ClientConfig{BaseURL: srv.URL, TenantID: "dev", HTTPClient: srv.Client()})
	require.NoError(t, err)

	q, err := c.Extract(context.Background(), "E5Q 75寸")
	require.NoError(t, err)
	assert.Equal(t, "E5Q", q.BaseEntity)

	filtered, reason, err := c.ShouldFilterOut(context.Background(), "E5Q 65寸", *q)
	require.NoError(t, err)
	assert.True(t, filtered)
	assert.Equal(t, "missing attributes: 75寸", reason)

	res, err := c.Filter(context.Background(), "P20和P20 Plus的区别", []string{"P20 Plus 参数", "T80 参数", "P20 续航"})
	require.NoError(t, err)
	assert.True(t, res.Query.IsComparison)
	assert.Equal(t, []int{0, 2}, res.Kept)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Loaded)
}
