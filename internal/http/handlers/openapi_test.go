package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAPIDocumentsPipelineRoutes(t *testing.T) {
	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(openAPISpec, &doc); err != nil {
		t.Fatalf("openapi.json is not valid JSON: %v", err)
	}
	want := map[string]string{
		"/v1/healthz":                       "get",
		"/v1/pipeline/start":                "post",
		"/v1/pipeline/status":               "get",
		"/v1/pipeline/jobs/{jobID}/approve": "post",
		"/v1/pipeline/jobs/{jobID}/deliver": "post",
		"/v1/pipeline/jobs/{jobID}/archive": "get",
	}
	for path, method := range want {
		ops, ok := doc.Paths[path]
		if !ok {
			t.Errorf("path %s not documented", path)
			continue
		}
		if _, ok := ops[method]; !ok {
			t.Errorf("%s %s not documented", strings.ToUpper(method), path)
		}
	}
}

func TestOpenAPIDocsPointAtSpec(t *testing.T) {
	app := &App{}
	rr := httptest.NewRecorder()
	app.OpenAPIDocs(rr, httptest.NewRequest(http.MethodGet, "/v1/docs", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `spec-url="`+OpenAPIPath+`"`) {
		t.Fatalf("docs page does not reference %s", OpenAPIPath)
	}
}
