package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *GoogleSheetRepository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	repo, err := newRepository(context.Background(), "sheet-1", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return repo
}

type appendRequest struct {
	path   string
	query  string
	values [][]interface{}
}

func TestAppendRows(t *testing.T) {
	requests := make(chan appendRequest, 1)

	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests <- appendRequest{path: r.URL.Path, query: r.URL.RawQuery, values: body.Values}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	err := repo.AppendRows(context.Background(), "Accounts!A:H", [][]interface{}{
		{"2024-02", "uid-a", 10.5},
		{"2024-02", "uid-b", 3},
	})

	require.NoError(t, err)
	got := <-requests
	assert.True(t, strings.HasPrefix(got.path, "/v4/spreadsheets/sheet-1/values/"))
	assert.True(t, strings.HasSuffix(got.path, ":append"))
	assert.Contains(t, got.query, "valueInputOption=USER_ENTERED")
	require.Len(t, got.values, 2)
	assert.Equal(t, "uid-b", got.values[1][1])
}

func TestAppendRowsSkipsEmpty(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	require.NoError(t, repo.AppendRows(context.Background(), "Accounts!A:H", nil))
	assert.Error(t, repo.AppendRows(context.Background(), "", [][]interface{}{{"x"}}))
}

func TestReadRange(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Accounts!A1:B2","values":[["2024-02","uid-a"]]}`))
	})

	values, err := repo.ReadRange(context.Background(), "Accounts!A:B")

	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "uid-a", values[0][1])
}

func TestReadRangeError(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	})

	_, err := repo.ReadRange(context.Background(), "Accounts!A:B")

	assert.ErrorContains(t, err, "read range Accounts!A:B")
}
