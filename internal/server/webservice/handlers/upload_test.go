package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/droidforge/droidforge/internal/server/webservice/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConfigProvider struct {
	allowSet map[string]struct{}
}

func (m *mockConfigProvider) IsAllowed(name string) bool {
	_, ok := m.allowSet[name]
	return ok
}

func newMockConfig(pipelines ...string) *mockConfigProvider {
	set := make(map[string]struct{}, len(pipelines))
	for _, p := range pipelines {
		set[p] = struct{}{}
	}
	return &mockConfigProvider{allowSet: set}
}

func TestUpload(t *testing.T) {
	t.Parallel()
	const defaultPipeline = "buildozer"

	tests := map[string]struct {
		pipeline      string
		emptyPipeline bool
		method        string
		body          []byte
		maxUploadSize int64

		wantStatus int
		wantFile   bool
	}{
		"Valid report accepted": {
			wantFile: true,
		},
		"Report with nested JSON accepted": {
			body:     []byte(`{"runId":"run-1","steps":[{"name":"package","exitCode":0}]}`),
			wantFile: true,
		},

		// Error cases
		"Pipeline not in allow list": {
			pipeline:   "unknown-pipeline",
			wantStatus: http.StatusForbidden,
		},
		"Empty pipeline name": {
			emptyPipeline: true,
			wantStatus:    http.StatusForbidden,
		},
		"Path traversal pipeline name": {
			pipeline:   "..",
			wantStatus: http.StatusForbidden,
		},
		"Nested pipeline name": {
			pipeline:   "nested/pipeline",
			wantStatus: http.StatusForbidden,
		},
		"GET method not allowed": {
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		"PUT method not allowed": {
			method:     http.MethodPut,
			wantStatus: http.StatusMethodNotAllowed,
		},
		"Invalid JSON rejected": {
			body:       []byte(`{"runId": "run-1",}`),
			wantStatus: http.StatusBadRequest,
		},
		"Oversized report rejected": {
			body:          bytes.Repeat([]byte("a"), 1<<12),
			maxUploadSize: 1 << 10,
			wantStatus:    http.StatusBadRequest,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if tc.pipeline == "" && !tc.emptyPipeline {
				tc.pipeline = defaultPipeline
			}
			if tc.method == "" {
				tc.method = http.MethodPost
			}
			if tc.body == nil {
				tc.body = []byte(`{"runId":"run-1","exitCode":0}`)
			}
			if tc.maxUploadSize == 0 {
				tc.maxUploadSize = 1 << 10
			}
			if tc.wantStatus == 0 {
				tc.wantStatus = http.StatusAccepted
			}

			reportsDir := t.TempDir()
			handler := handlers.NewUpload(newMockConfig(defaultPipeline), reportsDir, tc.maxUploadSize)

			req := httptest.NewRequest(tc.method, "/upload/pipeline", bytes.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			req.SetPathValue("pipeline", tc.pipeline)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code, "unexpected status code")

			if !tc.wantFile {
				entries, err := os.ReadDir(reportsDir)
				require.NoError(t, err, "failed to read reports dir")
				assert.Empty(t, entries, "no report should have been saved")
				return
			}

			entries, err := os.ReadDir(filepath.Join(reportsDir, defaultPipeline))
			require.NoError(t, err, "pipeline report directory should exist")
			require.Len(t, entries, 1, "exactly one report should have been saved")
			assert.Equal(t, ".json", filepath.Ext(entries[0].Name()), "report file extension")

			data, err := os.ReadFile(filepath.Join(reportsDir, defaultPipeline, entries[0].Name()))
			require.NoError(t, err, "failed to read stored report")
			assert.Equal(t, tc.body, data, "stored report content")
		})
	}
}
