package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/audience-andy/server/internal/agent/model"
	"github.com/audience-andy/server/internal/agent/tools"
	errx "github.com/audience-andy/server/internal/core/error"
)

type MockWorkflow struct {
	mock.Mock
}

func (m *MockWorkflow) Start(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockWorkflow) ProcessMessage(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *MockWorkflow) Status() model.Status {
	args := m.Called()
	return args.Get(0).(model.Status)
}

func (m *MockWorkflow) Reset() {
	m.Called()
}

func newTestServer(t *testing.T, wf Workflow, inspector ToolInspector) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(wf, inspector).Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &MockWorkflow{}, nil)

	resp := get(t, srv.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestStart(t *testing.T) {
	wf := &MockWorkflow{}
	wf.On("Start", mock.Anything).Return("Hi there! I'm Audience Andy.", nil).Once()
	srv := newTestServer(t, wf, nil)

	resp := post(t, srv.URL+"/api/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Hi there! I'm Audience Andy.", decode[messageResponse](t, resp).Message)
	wf.AssertExpectations(t)
}

func TestMessage(t *testing.T) {
	wf := &MockWorkflow{}
	wf.On("ProcessMessage", mock.Anything, "analyze https://shop.test/lamp").Return("Here is the analysis", nil).Once()
	srv := newTestServer(t, wf, nil)

	resp := post(t, srv.URL+"/api/message", `{"message":"analyze https://shop.test/lamp"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Here is the analysis", decode[messageResponse](t, resp).Message)
	wf.AssertExpectations(t)
}

func TestMessageRejectsEmptyInput(t *testing.T) {
	cases := map[string]string{
		"no body":       "",
		"missing field": `{}`,
		"blank message": `{"message":"   "}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			wf := &MockWorkflow{}
			srv := newTestServer(t, wf, nil)

			resp := post(t, srv.URL+"/api/message", body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "No message provided", decode[errorResponse](t, resp).Detail)
			wf.AssertNotCalled(t, "ProcessMessage", mock.Anything, mock.Anything)
		})
	}
}

func TestMessageRejectsInvalidJSON(t *testing.T) {
	srv := newTestServer(t, &MockWorkflow{}, nil)

	resp := post(t, srv.URL+"/api/message", `{"message":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", decode[errorResponse](t, resp).Detail)
}

func TestMessageMapsWorkflowErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"llm failure", errx.WrapLLM(errors.New("quota")), http.StatusBadGateway, errx.LLMErrorMessage},
		{"unknown failure", errors.New("boom"), http.StatusInternalServerError, errx.SystemErrorMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wf := &MockWorkflow{}
			wf.On("ProcessMessage", mock.Anything, "hello").Return("", tc.err).Once()
			srv := newTestServer(t, wf, nil)

			resp := post(t, srv.URL+"/api/message", `{"message":"hello"}`)
			require.Equal(t, tc.status, resp.StatusCode)
			detail := decode[errorResponse](t, resp).Detail
			assert.Equal(t, tc.detail, detail)
			assert.NotContains(t, detail, "quota")
		})
	}
}

func TestStatus(t *testing.T) {
	wf := &MockWorkflow{}
	wf.On("Status").Return(model.Status{
		Status:      "active",
		HasActivity: true,
		Stage:       model.StageMarketResearch,
		ProductData: &model.ProductData{Title: "Lamp"},
	}).Once()
	srv := newTestServer(t, wf, nil)

	resp := get(t, srv.URL+"/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decode[map[string]any](t, resp)
	assert.Equal(t, "active", payload["status"])
	assert.Equal(t, true, payload["has_activity"])
	assert.Equal(t, "market_research", payload["workflow_stage"])
	assert.Equal(t, "Lamp", payload["product_data"].(map[string]any)["title"])
	assert.NotContains(t, payload, "market_data")
	assert.NotContains(t, payload, "strategies")
}

func TestReset(t *testing.T) {
	wf := &MockWorkflow{}
	wf.On("Reset").Return().Once()
	srv := newTestServer(t, wf, nil)

	resp := post(t, srv.URL+"/api/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, resetResponse{Status: "success", Message: "Workflow reset successfully"}, decode[resetResponse](t, resp))
	wf.AssertExpectations(t)
}

func TestTools(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Add(tools.NewScraper(model.ToolsConfig{}))
	reg.Add(tools.NewCategoryTree(model.ToolsConfig{
		CategoryTreePath: filepath.Join("..", "..", "data", "marketing_categories.json"),
	}))
	srv := newTestServer(t, &MockWorkflow{}, reg)

	resp := get(t, srv.URL+"/api/tools")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decode[toolsResponse](t, resp)
	assert.Equal(t, "initialized", payload.Initialization[tools.CategoryTreeName])
	assert.Contains(t, payload.Initialization[tools.ScraperName], "FIRECRAWL_API_KEY")
	require.Len(t, payload.Tools, 2)
	assert.Equal(t, tools.CategoryTreeName, payload.Tools[0].Name)
	assert.Contains(t, payload.Tools[0].RequiredParameters, "product_description")
}

func TestToolsWithoutRegistry(t *testing.T) {
	srv := newTestServer(t, &MockWorkflow{}, nil)

	resp := get(t, srv.URL+"/api/tools")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, errx.ToolUnavailableMessage, decode[errorResponse](t, resp).Detail)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &MockWorkflow{}, nil)

	resp := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestPanicIsRecovered(t *testing.T) {
	wf := &MockWorkflow{}
	wf.On("Status").Run(func(mock.Arguments) { panic("boom") }).Return(model.Status{}).Once()
	wf.On("Status").Return(model.Status{Status: "idle", Stage: model.StageInitial}).Once()
	srv := newTestServer(t, wf, nil)

	resp := get(t, srv.URL+"/api/status")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = get(t, srv.URL+"/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", decode[map[string]any](t, resp)["status"])
	wf.AssertExpectations(t)
}

// serialWorkflow fails the test if two calls ever overlap.
type serialWorkflow struct {
	mu     sync.Mutex
	active int
	calls  int
	t      *testing.T
}

func (w *serialWorkflow) enter() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active++
	w.calls++
	if w.active > 1 {
		w.t.Errorf("concurrent workflow calls")
	}
}

func (w *serialWorkflow) leave() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active--
}

func (w *serialWorkflow) Start(context.Context) (string, error) {
	w.enter()
	defer w.leave()
	return "hi", nil
}

func (w *serialWorkflow) ProcessMessage(_ context.Context, text string) (string, error) {
	w.enter()
	defer w.leave()
	return text, nil
}

func (w *serialWorkflow) Status() model.Status {
	w.enter()
	defer w.leave()
	return model.Status{Status: "idle", Stage: model.StageInitial}
}

func (w *serialWorkflow) Reset() {
	w.enter()
	defer w.leave()
}

func TestWorkflowCallsAreSerialized(t *testing.T) {
	wf := &serialWorkflow{t: t}
	srv := newTestServer(t, wf, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL+"/api/message", "application/json", strings.NewReader(`{"message":"hi"}`))
			if err == nil {
				resp.Body.Close()
			}
		}()
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.URL + "/api/status")
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 40, wf.calls)
}
