package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
	"github.com/MikeSquared-Agency/Cortex/internal/roster"
	"github.com/MikeSquared-Agency/Cortex/internal/store"
)

// MockFeed implements feed.Client for testing
type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) FetchRoster(ctx context.Context) (roster.Document, error) {
	args := m.Called(ctx)
	return args.Get(0).(roster.Document), args.Error(1)
}

func TestAdminRequiresToken(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("POST", "/api/v1/admin/ledger/reset", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("GET", "/api/v1/admin/stats", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPutRoster(t *testing.T) {
	env := setupTestRouter(t, nil)

	body := `{"workers":[{"name":"Dr. Novak","entries":[{"task":"CT Tag","start":"00:00","end":"24:00"}]}]}`
	w := env.do("PUT", "/api/v1/admin/roster", strings.NewReader(body), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[rosterResponse](t, w)
	assert.Equal(t, 1, resp.Workers)
	assert.True(t, resp.Changed)

	w = env.do("PUT", "/api/v1/admin/roster", strings.NewReader(body), true)
	assert.False(t, decode[rosterResponse](t, w).Changed)

	w = env.do("GET", "/api/v1/admin/roster", nil, true)
	doc := decode[roster.Document](t, w)
	require.Len(t, doc.Workers, 1)
	assert.Equal(t, "Dr. Novak", doc.Workers[0].ID)
}

func TestPutRosterRejectsInvalid(t *testing.T) {
	env := setupTestRouter(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad skill value", `{"workers":[{"name":"A","default_skills":{"Herz":5}}]}`},
		{"shift without kind", `{"workers":[{"name":"A","entries":[{"task":"Unbekannt","start":"08:00","end":"12:00"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("PUT", "/api/v1/admin/roster", strings.NewReader(tt.body), true)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, errInvalidRequest, decode[errorResponse](t, w).Error)
		})
	}
	assert.Equal(t, 3, env.broker.Roster().Len(), "rejected uploads keep the roster")
}

func TestReloadRoster(t *testing.T) {
	f := new(MockFeed)
	f.On("FetchRoster", mock.Anything).Return(roster.Document{Workers: []roster.Worker{{Name: "Dr. Ortiz"}}}, nil).Once()
	f.On("FetchRoster", mock.Anything).Return(roster.Document{}, errors.New("feed down")).Once()
	env := setupTestRouter(t, f)

	w := env.do("POST", "/api/v1/admin/roster/reload", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[rosterResponse](t, w).Workers)

	w = env.do("POST", "/api/v1/admin/roster/reload", nil, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	f.AssertExpectations(t)
}

func TestReloadRosterWithoutFeed(t *testing.T) {
	env := setupTestRouter(t, nil)
	w := env.do("POST", "/api/v1/admin/roster/reload", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSkillCSVRoundTrip(t *testing.T) {
	env := setupTestRouter(t, nil)

	csv := "\ufeffWorker,Herz_ct,Chest_ct\nDr. Berg,1,0\nDr. Dietz,w,-1\n"
	w := env.do("PUT", "/api/v1/admin/roster/skills?mode=merge", strings.NewReader(csv), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[roster.ImportStats](t, w)
	assert.Equal(t, roster.ImportStats{Added: 1, Updated: 1}, stats)

	w = env.do("GET", "/api/v1/admin/roster/skills", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Body.String(), "Dr. Dietz")

	w = env.do("PUT", "/api/v1/admin/roster/skills?mode=upsert", strings.NewReader(csv), true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("PUT", "/api/v1/admin/roster/skills", strings.NewReader("Worker,Herz_ct\nA,yes\n"), true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkerEndpoints(t *testing.T) {
	env := setupTestRouter(t, nil)

	body := `{"entries":[{"task":"CT Tag","start":"00:00","end":"24:00"}],"modifier":0.5}`
	w := env.do("PUT", "/api/v1/admin/workers/Dr.%20Eck", strings.NewReader(body), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	wk := decode[roster.Worker](t, w)
	assert.Equal(t, "Dr. Eck", wk.ID)
	assert.Equal(t, 0.5, wk.ModifierOrDefault())

	w = env.do("POST", "/api/v1/admin/workers/Dr.%20Eck/drain", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.broker.IsDrained("Dr. Eck"))

	w = env.do("POST", "/api/v1/admin/workers/Dr.%20Eck/undrain", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.broker.IsDrained("Dr. Eck"))

	w = env.do("DELETE", "/api/v1/admin/workers/Dr.%20Eck", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do("DELETE", "/api/v1/admin/workers/Dr.%20Eck", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errUnknownWorker, decode[errorResponse](t, w).Error)
}

func TestLedgerResetEndpoint(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.do("GET", "/api/ct/Normal", nil, false)
	require.NotEmpty(t, env.broker.Ledger().Modalities())

	w := env.do("POST", "/api/v1/admin/ledger/reset?modality=pet", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/v1/admin/ledger/reset?modality=ct", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.broker.Ledger().Modalities())

	w = env.do("POST", "/api/v1/admin/ledger/reset", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "all", decode[map[string]string](t, w)["modality"])
}

func TestSnapshotEndpoints(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.do("GET", "/api/ct/Herz", nil, false)

	w := env.do("GET", "/api/v1/admin/ledger/snapshot", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[ledger.State](t, w)
	assert.InDelta(t, 1.2, snap.Modalities["ct"]["Dr. Adler"].WeightedCount, 1e-9)

	snap.Modalities["ct"]["Dr. Adler"] = ledger.Counter{WeightedCount: 9, Assignments: 9}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	w = env.do("PUT", "/api/v1/admin/ledger/snapshot", bytes.NewReader(data), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 9.0, env.broker.Ledger().WeightedCount("ct", "Dr. Adler"))

	w = env.do("PUT", "/api/v1/admin/ledger/snapshot",
		strings.NewReader(`{"modalities":{"ct":{"X":{"weighted_count":-1}}}}`), true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 9.0, env.broker.Ledger().WeightedCount("ct", "Dr. Adler"))
}

func TestAssignmentsEndpoint(t *testing.T) {
	env := setupTestRouter(t, nil)
	for i := 0; i < 3; i++ {
		env.do("GET", "/api/ct/Normal", nil, false)
	}

	w := env.do("GET", "/api/v1/admin/assignments?modality=ct&limit=2", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.Assignment](t, w), 2)

	w = env.do("GET", "/api/v1/admin/assignments?worker=Dr.%20Berg", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.Assignment](t, w), 1)

	w = env.do("GET", "/api/v1/admin/assignments?modality=mr", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	for _, q := range []string{"since=yesterday", "limit=x", "offset=y"} {
		w = env.do("GET", "/api/v1/admin/assignments?"+q, nil, true)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}
