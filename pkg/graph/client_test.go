package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

func TestIngestText(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/documents/text", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.IngestText(context.Background(), "alice loves Python", "memory_abc"))
	assert.Equal(t, "alice loves Python", got["text"])
	assert.Equal(t, "memory_abc", got["document_id"])
}

func TestIngestTextRejectsEmpty(t *testing.T) {
	client := NewClient("http://localhost:0")
	err := client.IngestText(context.Background(), "  ", "id")
	assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))
}

func TestQueryModes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "global", body["mode"])
		assert.EqualValues(t, 5, body["top_k"])
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "alice knows bob"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	answer, err := client.Query(context.Background(), "who does alice know?", ModeGlobal, QueryOptions{TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, "alice knows bob", answer)
}

func TestQueryContentFallbackAndError(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]string
		want    string
		wantErr bool
	}{
		{"content field", map[string]string{"content": "from content"}, "from content", false},
		{"error field", map[string]string{"error": "model overloaded"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.payload)
			}))
			defer server.Close()

			answer, err := NewClient(server.URL).Query(context.Background(), "q", ModeLocal, QueryOptions{})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, perr.KindExternal, perr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, answer)
		})
	}
}

func TestListDocumentsThreeShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantIDs []string
	}{
		{
			name:    "statuses map",
			payload: `{"statuses":{"processed":[{"id":"a","file_path":"a.txt"}],"pending":[{"id":"b","file_path":"b.txt"}]}}`,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "documents wrapper",
			payload: `{"documents":[{"id":"c","file_path":"c.txt","status":"processed"}]}`,
			wantIDs: []string{"c"},
		},
		{
			name:    "bare array",
			payload: `[{"id":"d","file_path":"d.txt","status":"failed"}]`,
			wantIDs: []string{"d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/documents", r.URL.Path)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			docs, err := NewClient(server.URL).ListDocuments(context.Background())
			require.NoError(t, err)

			ids := make(map[string]bool)
			for _, doc := range docs {
				ids[doc.ID] = true
			}
			for _, want := range tt.wantIDs {
				assert.True(t, ids[want], want)
			}
			assert.Len(t, docs, len(tt.wantIDs))
		})
	}
}

func TestListDocumentsStatusFromGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"statuses":{"processing":[{"id":"x","file_path":"x.txt"}]}}`))
	}))
	defer server.Close()

	docs, err := NewClient(server.URL).ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, StatusProcessing, docs[0].Status)
}

func TestDeleteDocumentsStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		wantKind perr.Kind
	}{
		{"deletion started is success", "deletion_started", ""},
		{"busy is transient", "busy", perr.KindTransient},
		{"not allowed is external", "not_allowed", perr.KindExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodDelete, r.Method)
				var body struct {
					DocIDs     []string `json:"doc_ids"`
					DeleteFile bool     `json:"delete_file"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, []string{"doc1"}, body.DocIDs)
				assert.True(t, body.DeleteFile)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": tt.status, "message": "m"})
			}))
			defer server.Close()

			result, err := NewClient(server.URL).DeleteDocuments(context.Background(), []string{"doc1"}, true)
			require.NotNil(t, result)
			assert.Equal(t, tt.status, result.Status)
			if tt.wantKind == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantKind, perr.KindOf(err))
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	err := NewClient(server.URL).IngestText(context.Background(), "text", "id")
	assert.Equal(t, perr.KindExternal, perr.KindOf(err))
}

func TestHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	assert.True(t, NewClient(healthy.URL).Health(context.Background()))
	assert.False(t, NewClient("http://127.0.0.1:1").Health(context.Background()))
}

func TestClearCacheAndScan(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/documents/clear_cache" {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			modes, present := body["modes"]
			assert.True(t, present)
			assert.Nil(t, modes)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.ClearCache(context.Background()))
	require.NoError(t, client.TriggerScan(context.Background()))
	assert.Equal(t, []string{"/documents/clear_cache", "/documents/scan"}, paths)
}

func TestListLabels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/graph/label/list", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]string{"alice", "Python"})
	}))
	defer server.Close()

	labels, err := NewClient(server.URL).ListLabels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "Python"}, labels)
}
