package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/storage/snapshot"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

type fakeEngine struct {
	snap *domain.Snapshot
}

func (f *fakeEngine) Snapshot() (*domain.Snapshot, error) {
	if f.snap == nil {
		return nil, domain.ErrNoSnapshot
	}
	return f.snap, nil
}

type fakeArchive struct {
	infos []*snapshot.Info
	err   error
}

func (f *fakeArchive) List(context.Context) ([]*snapshot.Info, error) {
	return f.infos, f.err
}

func (f *fakeArchive) Export(_ context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "dump")
	return err
}

func testSnapshot() *domain.Snapshot {
	st := domain.NewState()
	st.RAM[1] = &domain.StoredRAMSession{Dataspaces: map[domain.Badge]*domain.StoredDataspace{
		2: {Badge: 2, Orig: 10, Copy: 20, Size: 4096},
	}}
	return &domain.Snapshot{
		ID:      "ckpt-01jabcdefghjkmnpqrstvwxyz0",
		Cycle:   3,
		TakenAt: time.Unix(1700000000, 0).UTC(),
		Mode:    domain.ModeIncremental,
		State:   st,
		CapMap:  []domain.CapEntry{{Badge: 1, Kcap: 1 << 12}},
		Memory:  map[domain.Badge]domain.DataspaceID{2: 20},
	}
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	if rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec, resp
}

func TestHandler_Health(t *testing.T) {
	h := NewHandler(Config{Engine: &fakeEngine{}, Logger: logger.Discard()})

	rec, resp := get(t, h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Code != "OK" {
		t.Errorf("code = %q, want OK", resp.Code)
	}
	if resp.RequestID == "" || rec.Header().Get("X-Request-ID") != resp.RequestID {
		t.Errorf("request id %q not propagated", resp.RequestID)
	}
}

func TestHandler_ReadyAndSnapshot(t *testing.T) {
	eng := &fakeEngine{}
	h := NewHandler(Config{Engine: eng, Logger: logger.Discard()})

	rec, _ := get(t, h, "/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready before commit = %d, want 503", rec.Code)
	}
	rec, resp := get(t, h, "/snapshot")
	if rec.Code != http.StatusNotFound || resp.Code != domain.ErrNoSnapshot.Code {
		t.Errorf("/snapshot before commit = %d %q", rec.Code, resp.Code)
	}

	eng.snap = testSnapshot()
	rec, _ = get(t, h, "/ready")
	if rec.Code != http.StatusOK {
		t.Errorf("/ready after commit = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	var body struct {
		Data SnapshotSummary `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	sum := body.Data
	if sum.ID != eng.snap.ID || sum.Cycle != 3 || sum.Mode != domain.ModeIncremental {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Sessions["ram"] != 1 || sum.CapMapSize != 1 || sum.Copies != 1 {
		t.Errorf("summary counts = %+v", sum)
	}
}

func TestHandler_Archive(t *testing.T) {
	h := NewHandler(Config{Engine: &fakeEngine{}, Logger: logger.Discard()})
	if rec, _ := get(t, h, "/archive"); rec.Code != http.StatusNotFound {
		t.Errorf("/archive without archive = %d, want 404", rec.Code)
	}

	arch := &fakeArchive{infos: []*snapshot.Info{{ID: "ckpt-a", Cycle: 1}, {ID: "ckpt-b", Cycle: 2}}}
	h = NewHandler(Config{Engine: &fakeEngine{}, Archive: arch, Logger: logger.Discard()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archive", nil))
	var body struct {
		Data []snapshot.Info `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 2 || body.Data[1].ID != "ckpt-b" {
		t.Errorf("archive listing = %+v", body.Data)
	}

	arch.err = errors.New("disk on fire")
	if rec, resp := get(t, h, "/archive"); rec.Code != http.StatusInternalServerError || resp.Code != codeInternal {
		t.Errorf("/archive error = %d %q", rec.Code, resp.Code)
	}
	arch.err = snapshot.ErrNoSnapshots
	if rec, _ := get(t, h, "/archive"); rec.Code != http.StatusNotFound {
		t.Errorf("/archive empty = %d, want 404", rec.Code)
	}
}

func TestHandler_ArchiveExport(t *testing.T) {
	h := NewHandler(Config{Engine: &fakeEngine{}, Logger: logger.Discard()})
	if rec, _ := get(t, h, "/archive/export"); rec.Code != http.StatusNotFound {
		t.Errorf("export without archive = %d, want 404", rec.Code)
	}

	h = NewHandler(Config{Engine: &fakeEngine{}, Archive: &fakeArchive{}, Logger: logger.Discard()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archive/export", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "dump" {
		t.Errorf("export = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHandler_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "rtcr_up 1\n")
	})
	h := NewHandler(Config{Engine: &fakeEngine{}, Metrics: metrics, Logger: logger.Discard()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "rtcr_up 1\n" {
		t.Errorf("/metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestID(), Recover(logger.Discard()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get("X-Error-Code") != codeInternal {
		t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
	}
}

func TestRequestID_KeepsCallerID(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestIDFromContext(r.Context())
	}), RequestID())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-from-caller")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req-from-caller" {
		t.Errorf("request id = %q", seen)
	}
}

func TestAccessLog_LevelsAndStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		msg    string
	}{
		{"/health", http.StatusOK, `"msg":"request served"`},
		{"/snapshot", http.StatusNotFound, `"msg":"request rejected"`},
		{"/ready", http.StatusServiceUnavailable, `"msg":"request failed"`},
		{"/metrics", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := logger.New(logger.Config{Level: "info", Output: &buf})
			if err != nil {
				t.Fatal(err)
			}
			h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}), RequestID(), Trace(), AccessLog(l))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}

			out := buf.String()
			if tt.msg == "" {
				if out != "" {
					t.Errorf("scrape logged at info: %s", out)
				}
				return
			}
			if !strings.Contains(out, tt.msg) || !strings.Contains(out, `"bytes":4`) {
				t.Errorf("log = %s", out)
			}
		})
	}
}

func TestHandleError_Classes(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{domain.ErrNoSnapshot, http.StatusNotFound, "RC-CKPT-4040"},
		{domain.ErrCopyTargetMismatch.WithDetails("dest 9"), http.StatusConflict, "RC-MEM-4090"},
		{domain.ErrInvalidLayout, http.StatusBadRequest, "RC-MEM-4001"},
		{domain.ErrStorageError.WithCause(errors.New("io")), http.StatusInternalServerError, "RC-SYS-5001"},
		{snapshot.ErrNotFound, http.StatusNotFound, "RC-CKPT-4040"},
	}
	for _, tt := range tests {
		arch := &fakeArchive{err: tt.err}
		h := NewHandler(Config{Engine: &fakeEngine{}, Archive: arch, Logger: logger.Discard()})
		rec, resp := get(t, h, "/archive")
		if rec.Code != tt.want || resp.Code != tt.code {
			t.Errorf("%v: got %d %q, want %d %q", tt.err, rec.Code, resp.Code, tt.want, tt.code)
		}
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := New("127.0.0.1:0", NewHandler(Config{Engine: &fakeEngine{}, Logger: logger.Discard()}), logger.Discard())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if _, err := http.Get("http://" + s.Addr() + "/health"); err == nil {
		t.Error("server still serving after Shutdown")
	}
}
