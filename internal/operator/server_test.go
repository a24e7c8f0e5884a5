package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/joelkehle/priorart-assistant/internal/jobs"
	"github.com/joelkehle/priorart-assistant/internal/priorartsearch"
	"github.com/joelkehle/priorart-assistant/internal/specdraft"
	"github.com/joelkehle/priorart-assistant/internal/telemetry"
)

type fakePipeline struct {
	release chan struct{}
	seen    chan priorartsearch.Disclosure
}

func (f *fakePipeline) Run(_ context.Context, d priorartsearch.Disclosure) string {
	f.seen <- d
	if f.release != nil {
		<-f.release
	}
	return "# Prior Art Search Report\n\n**Skipped:** no source document link for US1A.\n"
}

func (f *fakePipeline) Keywords(_ context.Context, d priorartsearch.Disclosure) string {
	f.seen <- d
	return "## Keyword Search Strategy Report"
}

type fakeDrafter struct{}

func (fakeDrafter) Draft(_ context.Context, in specdraft.Input) string {
	return "## TITLE OF THE INVENTION:\n" + in.ProposedTitle
}

type fakePDF struct {
	err error
}

func (f fakePDF) Render(_ context.Context, title, report string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF " + title), nil
}

type testServer struct {
	handler  http.Handler
	runner   *jobs.Runner
	pipeline *fakePipeline
}

func newTestServer(t *testing.T, pdf ReportPDFRenderer) *testServer {
	t.Helper()
	runner := jobs.NewRunner(jobs.NewMemoryStore(), priorartsearch.UnexpectedErrorReport, zaptest.NewLogger(t), nil)
	p := &fakePipeline{seen: make(chan priorartsearch.Disclosure, 4)}
	srv := NewServer(runner, p, fakeDrafter{}, Options{PDFRenderer: pdf, MetricsHandler: telemetry.NewMetrics().Handler()}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		if p.release != nil {
			select {
			case <-p.release:
			default:
				close(p.release)
			}
		}
		_ = runner.Wait(context.Background())
	})
	return &testServer{handler: srv, runner: runner, pipeline: p}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) startJSON(t *testing.T, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := ts.do(t, req)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["job_id"])
	return resp["job_id"]
}

func (ts *testServer) waitDone(t *testing.T, id string) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
		body = map[string]any{}
		_ = json.Unmarshal(rr.Body.Bytes(), &body)
		return body["status"] == "done"
	}, 2*time.Second, 5*time.Millisecond)
	return body
}

func TestStartPriorArtJobAndPoll(t *testing.T) {
	ts := newTestServer(t, fakePDF{})
	ts.pipeline.release = make(chan struct{})

	id := ts.startJSON(t, `{"disclosure":"a heated mug","focus_area":"sensor"}`)
	d := <-ts.pipeline.seen
	assert.Equal(t, priorartsearch.Disclosure{Text: "a heated mug", FocusArea: "sensor"}, d)

	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"processing"}`, rr.Body.String())

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/report/"+id, nil))
	assert.Equal(t, http.StatusConflict, rr.Code)

	close(ts.pipeline.release)
	body := ts.waitDone(t, id)
	assert.Contains(t, body["report"], "# Prior Art Search Report")
	assert.Equal(t, "prior_art", body["kind"])
}

func TestStartJobFromForm(t *testing.T) {
	ts := newTestServer(t, nil)
	form := url.Values{"kind": {"keywords"}, "disclosure": {"a heated mug"}}
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := ts.do(t, req)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	body := ts.waitDone(t, resp["job_id"])
	assert.Equal(t, "## Keyword Search Strategy Report", body["report"])
}

func TestStartDraftJobFromMultipart(t *testing.T) {
	ts := newTestServer(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("kind", "draft"))
	require.NoError(t, mw.WriteField("proposed_title", "Self-Heating Mug"))
	require.NoError(t, mw.WriteField("detailed_description", "The mug body (10)..."))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := ts.do(t, req)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	body := ts.waitDone(t, resp["job_id"])
	assert.Equal(t, "## TITLE OF THE INVENTION:\nSelf-Heating Mug", body["report"])
}

func TestStartJobValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	cases := map[string]string{
		"empty disclosure":     `{"disclosure":"   "}`,
		"unknown kind":         `{"kind":"classify","disclosure":"x"}`,
		"draft without detail": `{"kind":"draft","draft":{"proposed_title":"x"}}`,
		"bad json":             `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rr := ts.do(t, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestUnknownJob(t *testing.T) {
	ts := newTestServer(t, fakePDF{})
	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"status":"not_found"}`, rr.Body.String())

	for _, path := range []string{"/report/nope", "/report/nope/html", "/report-pdf/nope"} {
		rr := ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestReportExports(t *testing.T) {
	ts := newTestServer(t, fakePDF{})
	id := ts.startJSON(t, `{"disclosure":"a heated mug"}`)
	<-ts.pipeline.seen
	ts.waitDone(t, id)

	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/report/"+id, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "# Prior Art Search Report"))

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/report/"+id+"/html", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<h1>Prior Art Search Report</h1>")
	assert.Contains(t, rr.Body.String(), `<p class="report-notice"><strong>Skipped:</strong>`)

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/report-pdf/"+id, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF Prior Art Search Report", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "prior_art-")
}

func TestReportPDFFailures(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/report-pdf/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	ts = newTestServer(t, fakePDF{err: errors.New("no chrome")})
	id := ts.startJSON(t, `{"disclosure":"a heated mug"}`)
	<-ts.pipeline.seen
	ts.waitDone(t, id)
	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/report-pdf/"+id, nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestIndexHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Prior Art Assistant")
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/style.css", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rr.Body.String())

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
