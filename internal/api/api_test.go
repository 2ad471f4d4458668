package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mhodges/bigip-rule-manager/internal/api"
	"github.com/mhodges/bigip-rule-manager/internal/bigip"
	"github.com/mhodges/bigip-rule-manager/internal/domain"
	"github.com/mhodges/bigip-rule-manager/internal/service"
	"github.com/mhodges/bigip-rule-manager/internal/storage/memory"
)

const bootstrapKey = "test-bootstrap-key"

type testServer struct {
	server *httptest.Server
	store  *memory.Store
	shim   *bigip.FileShim
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	shim := bigip.NewFileShim(filepath.Join(t.TempDir(), "device.json"))
	applyService := service.NewApplyService(store, shim, 50*time.Millisecond, false)
	router := api.NewRouter(store, applyService, bootstrapKey)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{server: server, store: store, shim: shim}
}

// request sends an authenticated JSON request and returns the response.
func (ts *testServer) request(t *testing.T, method, path, apiKey string, body any) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.server.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/rules", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", resp.StatusCode)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/rules", "wrong-key", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", resp.StatusCode)
	}
}

func TestBootstrapKeyAndAPIKeyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Bootstrap key works while no real key exists.
	resp := ts.request(t, http.MethodGet, "/api/v1/rules", bootstrapKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 with bootstrap key, got %d", resp.StatusCode)
	}

	// Mint a real key using the bootstrap key.
	resp = ts.request(t, http.MethodPost, "/api/v1/keys", bootstrapKey, domain.CreateAPIKeyRequest{Name: "ci"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var created domain.CreateAPIKeyResponse
	decodeBody(t, resp, &created)
	if created.Key == "" {
		t.Fatal("Expected the key value in the create response")
	}

	// The real key authenticates.
	resp = ts.request(t, http.MethodGet, "/api/v1/rules", created.Key, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with minted key, got %d", resp.StatusCode)
	}

	// Once a real key exists the bootstrap key is retired.
	resp = ts.request(t, http.MethodGet, "/api/v1/rules", bootstrapKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bootstrap key after minting, got %d", resp.StatusCode)
	}

	// Listed keys never carry the key value.
	resp = ts.request(t, http.MethodGet, "/api/v1/keys", created.Key, nil)
	var keys []map[string]any
	decodeBody(t, resp, &keys)
	if len(keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(keys))
	}
	if _, ok := keys[0]["key"]; ok {
		t.Error("List response must not contain key values")
	}
}

func TestRuleCRUD(t *testing.T) {
	ts := newTestServer(t)

	// Create with defaults.
	resp := ts.request(t, http.MethodPost, "/api/v1/rules", bootstrapKey, domain.CreateRuleRequest{
		Name:    "app_redirect",
		Module:  domain.ModuleLTM,
		Content: "when HTTP_REQUEST { pool web }",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var rule domain.Rule
	decodeBody(t, resp, &rule)
	if rule.Partition != "Common" {
		t.Errorf("Expected default partition Common, got %s", rule.Partition)
	}
	if rule.State != domain.StatePresent {
		t.Errorf("Expected default state present, got %s", rule.State)
	}
	if rule.ID == "" {
		t.Error("Expected generated ID")
	}

	// Duplicate (module, partition, name) is rejected.
	resp = ts.request(t, http.MethodPost, "/api/v1/rules", bootstrapKey, domain.CreateRuleRequest{
		Name:    "app_redirect",
		Module:  domain.ModuleLTM,
		Content: "other body",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate, got %d", resp.StatusCode)
	}

	// Same name under GTM is a different rule.
	resp = ts.request(t, http.MethodPost, "/api/v1/rules", bootstrapKey, domain.CreateRuleRequest{
		Name:    "app_redirect",
		Module:  domain.ModuleGTM,
		Content: "when LB_FAILED { }",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected 201 for GTM rule, got %d", resp.StatusCode)
	}

	// Get by ID.
	resp = ts.request(t, http.MethodGet, "/api/v1/rules/"+rule.ID, bootstrapKey, nil)
	var fetched domain.Rule
	decodeBody(t, resp, &fetched)
	if fetched.Name != "app_redirect" || fetched.Module != domain.ModuleLTM {
		t.Errorf("Unexpected rule: %+v", fetched)
	}

	// Unknown ID.
	resp = ts.request(t, http.MethodGet, "/api/v1/rules/no-such-id", bootstrapKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	// Update content.
	newContent := "when HTTP_REQUEST { pool web2 }"
	resp = ts.request(t, http.MethodPut, "/api/v1/rules/"+rule.ID, bootstrapKey, domain.UpdateRuleRequest{Content: &newContent})
	var updated domain.Rule
	decodeBody(t, resp, &updated)
	if updated.Content != newContent {
		t.Errorf("Expected updated content, got %q", updated.Content)
	}

	// Flip to absent.
	absent := domain.StateAbsent
	resp = ts.request(t, http.MethodPut, "/api/v1/rules/"+rule.ID, bootstrapKey, domain.UpdateRuleRequest{State: &absent})
	var flipped domain.Rule
	decodeBody(t, resp, &flipped)
	if flipped.State != domain.StateAbsent {
		t.Errorf("Expected state absent, got %s", flipped.State)
	}

	// Delete.
	resp = ts.request(t, http.MethodDelete, "/api/v1/rules/"+rule.ID, bootstrapKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	resp = ts.request(t, http.MethodGet, "/api/v1/rules/"+rule.ID, bootstrapKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestRuleValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		req  domain.CreateRuleRequest
	}{
		{"bad name", domain.CreateRuleRequest{Name: "1bad", Module: domain.ModuleLTM, Content: "x"}},
		{"bad module", domain.CreateRuleRequest{Name: "r1", Module: "asm", Content: "x"}},
		{"missing content", domain.CreateRuleRequest{Name: "r1", Module: domain.ModuleLTM}},
		{"bad state", domain.CreateRuleRequest{Name: "r1", Module: domain.ModuleLTM, Content: "x", State: "latest"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.request(t, http.MethodPost, "/api/v1/rules", bootstrapKey, tc.req)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
			var body struct {
				Errors []map[string]any `json:"errors"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode error body: %v", err)
			}
			if len(body.Errors) == 0 {
				t.Error("Expected validation errors in response")
			}
		})
	}
}

func TestApplyAllAndHistory(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/rules", bootstrapKey, domain.CreateRuleRequest{
		Name:    "app_redirect",
		Module:  domain.ModuleLTM,
		Content: "when HTTP_REQUEST { pool web }",
	})
	var rule domain.Rule
	decodeBody(t, resp, &rule)

	// First apply creates the rule on the device.
	resp = ts.request(t, http.MethodPost, "/api/v1/apply", bootstrapKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var report domain.ApplyReport
	decodeBody(t, resp, &report)
	if report.Changed != 1 || report.Failed != 0 {
		t.Errorf("Expected changed=1 failed=0, got %+v", report)
	}
	if len(report.Results) != 1 || report.Results[0].Result.Action != domain.ActionCreate {
		t.Errorf("Expected one create result, got %+v", report.Results)
	}

	// Second apply is a no-op.
	resp = ts.request(t, http.MethodPost, "/api/v1/apply", bootstrapKey, nil)
	decodeBody(t, resp, &report)
	if report.Changed != 0 {
		t.Errorf("Expected changed=0 on second apply, got %d", report.Changed)
	}

	// History shows both runs, newest first.
	resp = ts.request(t, http.MethodGet, "/api/v1/runs", bootstrapKey, nil)
	var runs []domain.ApplyRun
	decodeBody(t, resp, &runs)
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].Action != domain.ActionNone || runs[1].Action != domain.ActionCreate {
		t.Errorf("Unexpected run order: %s, %s", runs[0].Action, runs[1].Action)
	}

	// Per-rule history.
	resp = ts.request(t, http.MethodGet, fmt.Sprintf("/api/v1/rules/%s/runs", rule.ID), bootstrapKey, nil)
	decodeBody(t, resp, &runs)
	if len(runs) != 2 {
		t.Errorf("Expected 2 runs for rule, got %d", len(runs))
	}
}

func TestApplySingleRuleDryRun(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/rules", bootstrapKey, domain.CreateRuleRequest{
		Name:    "app_redirect",
		Module:  domain.ModuleLTM,
		Content: "when HTTP_REQUEST { pool web }",
	})
	var rule domain.Rule
	decodeBody(t, resp, &rule)

	resp = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/rules/%s/apply?dry_run=1", rule.ID), bootstrapKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var result domain.ApplyResult
	decodeBody(t, resp, &result)
	if !result.Changed || result.Action != domain.ActionCreate || !result.DryRun {
		t.Errorf("Expected dry-run create, got %+v", result)
	}

	// The dry run must not have touched the device.
	resp = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/rules/%s/apply", rule.ID), bootstrapKey, nil)
	decodeBody(t, resp, &result)
	if !result.Changed || result.Action != domain.ActionCreate {
		t.Errorf("Expected real create after dry run, got %+v", result)
	}
}

func TestApplyRemovesAbsentRule(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/rules", bootstrapKey, domain.CreateRuleRequest{
		Name:    "app_redirect",
		Module:  domain.ModuleLTM,
		Content: "when HTTP_REQUEST { pool web }",
	})
	var rule domain.Rule
	decodeBody(t, resp, &rule)

	resp = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/rules/%s/apply", rule.ID), bootstrapKey, nil)
	resp.Body.Close()

	absent := domain.StateAbsent
	resp = ts.request(t, http.MethodPut, "/api/v1/rules/"+rule.ID, bootstrapKey, domain.UpdateRuleRequest{State: &absent})
	resp.Body.Close()

	resp = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/rules/%s/apply", rule.ID), bootstrapKey, nil)
	var result domain.ApplyResult
	decodeBody(t, resp, &result)
	if !result.Changed || result.Action != domain.ActionDelete {
		t.Errorf("Expected delete, got %+v", result)
	}
}
