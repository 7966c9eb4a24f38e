package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-voice-clone/internal/vclone"
)

type fakeJobs struct {
	startErr error
	lastReq  vclone.Request
	started  int
	snap     vclone.Snapshot
}

func (f *fakeJobs) Start(_ context.Context, req vclone.Request) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started++
	f.lastReq = req
	return "job-1", nil
}

func (f *fakeJobs) Snapshot() vclone.Snapshot { return f.snap }

func postSynthesize(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/synthesize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	h := NewHandler(&fakeJobs{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health status: %q", body["status"])
	}
}

func TestHandleSynthesizeAccepted(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewHandler(jobs)

	rec := postSynthesize(t, h, `{"text":"hello","ref_audio_path":"/tmp/ref.wav","ref_text":"hi","device":"cpu"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["job_id"] != "job-1" {
		t.Fatalf("unexpected job id: %q", body["job_id"])
	}
	if jobs.started != 1 {
		t.Fatalf("expected one job start, got %d", jobs.started)
	}
	if jobs.lastReq.DeviceToken != "cpu" || jobs.lastReq.Text != "hello" {
		t.Fatalf("request not forwarded: %+v", jobs.lastReq)
	}
}

func TestHandleSynthesizeAppliesDefaults(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewHandler(jobs, WithRequestDefaults(vclone.Request{
		Model:       "speed",
		Language:    "Japanese",
		DeviceToken: "auto",
		OutputDir:   "outputs",
	}))

	rec := postSynthesize(t, h, `{"text":"hello","ref_audio_path":"/tmp/ref.wav","ref_text":"hi"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	got := jobs.lastReq
	if got.Model != "speed" || got.Language != "Japanese" || got.DeviceToken != "auto" || got.OutputDir != "outputs" {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestHandleSynthesizeExplicitValuesWin(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewHandler(jobs, WithRequestDefaults(vclone.Request{Model: "speed", DeviceToken: "auto"}))

	rec := postSynthesize(t, h, `{"text":"hello","model":"quality","device":"mps"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if jobs.lastReq.Model != "quality" || jobs.lastReq.DeviceToken != "mps" {
		t.Fatalf("explicit values overridden: %+v", jobs.lastReq)
	}
}

func TestHandleSynthesizeRejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "invalid JSON", body: "{nope", wantCode: http.StatusBadRequest},
		{name: "missing text", body: `{"ref_audio_path":"/tmp/ref.wav"}`, wantCode: http.StatusBadRequest},
		{name: "blank text", body: `{"text":"   "}`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeJobs{}
			rec := postSynthesize(t, NewHandler(jobs), tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if jobs.started != 0 {
				t.Fatal("job must not start on a rejected request")
			}
		})
	}
}

func TestHandleSynthesizeTextTooLarge(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewHandler(jobs, WithMaxTextBytes(8))

	rec := postSynthesize(t, h, `{"text":"this is longer than eight bytes"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if jobs.started != 0 {
		t.Fatal("job must not start for oversized text")
	}
}

func TestHandleSynthesizeBusy(t *testing.T) {
	jobs := &fakeJobs{startErr: vclone.ErrBusy}
	rec := postSynthesize(t, NewHandler(jobs), `{"text":"hello"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleSynthesizeMethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakeJobs{})
	req := httptest.NewRequest(http.MethodGet, "/synthesize", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	jobs := &fakeJobs{snap: vclone.Snapshot{
		JobID:    "job-9",
		State:    vclone.JobStateRunning,
		Progress: 42,
		Status:   "generating...",
		Logs:     []string{"device token: cpu"},
	}}
	h := NewHandler(jobs)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap vclone.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.JobID != "job-9" || snap.Progress != 42 || snap.State != vclone.JobStateRunning {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestHandleResultNotReady(t *testing.T) {
	tests := []struct {
		name string
		snap vclone.Snapshot
	}{
		{name: "idle", snap: vclone.Snapshot{State: vclone.JobStateIdle}},
		{name: "running", snap: vclone.Snapshot{State: vclone.JobStateRunning}},
		{name: "failed", snap: vclone.Snapshot{State: vclone.JobStateFailed}},
		{name: "done without file", snap: vclone.Snapshot{State: vclone.JobStateDone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeJobs{snap: tt.snap})
			req := httptest.NewRequest(http.MethodGet, "/result", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", rec.Code)
			}
		})
	}
}

func TestHandleResultServesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceclone_20250102_030405.wav")
	payload := []byte("RIFF fake wav payload")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write result file: %v", err)
	}

	h := NewHandler(&fakeJobs{snap: vclone.Snapshot{
		State:      vclone.JobStateDone,
		OutputPath: path,
	}})

	req := httptest.NewRequest(http.MethodGet, "/result", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if rec.Body.String() != string(payload) {
		t.Fatal("result body does not match the output file")
	}
}

func TestHandleResultMissingFile(t *testing.T) {
	h := NewHandler(&fakeJobs{snap: vclone.Snapshot{
		State:      vclone.JobStateDone,
		OutputPath: filepath.Join(t.TempDir(), "gone.wav"),
	}})

	req := httptest.NewRequest(http.MethodGet, "/result", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
