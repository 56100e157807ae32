package document

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedExtractor struct {
	text string
	err  error
}

func (f *fixedExtractor) ExtractText(data []byte) (string, error) {
	return f.text, f.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc, extractor TextExtractor) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{BaseURL: srv.URL, Token: "secret-token"}, extractor, zerolog.Nop())
	return client, srv
}

func TestFetchVersionTextStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, nil)

			_, err := client.FetchVersionText(context.Background(), "d1", "v1")

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetchVersionTextGenericError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}, nil)

	_, err := client.FetchVersionText(context.Background(), "d1", "v1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetchVersionTextRequestShape(t *testing.T) {
	var gotPath, gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"document": map[string]any{"data": "plain text content"},
		})
	}, nil)

	doc, err := client.FetchVersionText(context.Background(), "6835eb99f6f46cd38ee2c311", "6835eb99f6f46cd38ee2c312")

	require.NoError(t, err)
	assert.Equal(t, "/documents/6835eb99f6f46cd38ee2c311/versions/6835eb99f6f46cd38ee2c312", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "plain text content", doc.Body)
	assert.Equal(t, "6835eb99f6f46cd38ee2c311@6835eb99f6f46cd38ee2c312", doc.Name)
}

func TestFetchVersionTextTopLevelBinary(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("decoded body"))
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"binaries": []string{encoded}})
	}, nil)

	doc, err := client.FetchVersionText(context.Background(), "d1", "v1")

	require.NoError(t, err)
	assert.Equal(t, "decoded body", doc.Body)
}

func TestFetchVersionTextPDFExtraction(t *testing.T) {
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 raw bytes"))

	t.Run("with extractor", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"binaries": []string{pdf}})
		}, &fixedExtractor{text: "extracted pdf text"})

		doc, err := client.FetchVersionText(context.Background(), "d1", "v1")

		require.NoError(t, err)
		assert.Equal(t, "extracted pdf text", doc.Body)
	})

	t.Run("without extractor", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"binaries": []string{pdf}})
		}, nil)

		doc, err := client.FetchVersionText(context.Background(), "d1", "v1")

		require.NoError(t, err)
		assert.Contains(t, doc.Body, "[PDF document:")
	})
}

func TestFetchVersionTextNestedBinariesFallback(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("nested content"))
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"document": map[string]any{"binaries": []string{encoded}},
		})
	}, nil)

	doc, err := client.FetchVersionText(context.Background(), "d1", "v1")

	require.NoError(t, err)
	assert.Equal(t, "nested content", doc.Body)
}

func TestFetchVersionTextNoContent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	}, nil)

	_, err := client.FetchVersionText(context.Background(), "d1", "v1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no readable content")
}
