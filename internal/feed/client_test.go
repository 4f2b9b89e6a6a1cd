package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRoster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/roster/today", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"workers":[{"name":"Dr. Weber (CT2)","entries":[{"task":"CT Früh","start":"07:00","end":"15:30"}],"default_skills":{"Herz":"w"}}]}`))
	}))
	defer srv.Close()

	doc, err := NewHTTPClient(srv.URL, "secret").FetchRoster(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Workers, 1)
	assert.Equal(t, "Dr. Weber (CT2)", doc.Workers[0].Name)
	assert.Equal(t, "07:00", doc.Workers[0].Entries[0].Start.String())
	assert.True(t, doc.Workers[0].DefaultSkills["Herz"].IsActive())
}

func TestFetchRosterErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, "upstream down"},
		{"bad json", http.StatusOK, "{"},
		{"bad skill value", http.StatusOK, `{"workers":[{"name":"A","default_skills":{"Herz":7}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "").FetchRoster(context.Background())
			assert.Error(t, err)
		})
	}
}
