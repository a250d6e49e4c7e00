package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/geocluster/internal/config"
	"github.com/sells-group/geocluster/internal/model"
	"github.com/sells-group/geocluster/internal/store"
)

var cityPoints = [][]float64{
	{-74.0060, 40.7128}, {-73.9855, 40.7580}, {-73.9442, 40.6782}, {-74.0431, 40.7178},
	{2.3522, 48.8566}, {2.2945, 48.8584}, {2.3376, 48.8606}, {2.3499, 48.8530},
}

func testConfig() *config.Config {
	return &config.Config{
		Cluster: config.ClusterConfig{
			NClusters: 2,
			Init:      "k-means++",
			MaxIter:   300,
			Tol:       1e-4,
			Seed:      1,
			Workers:   1,
			Metric:    "haversine",
		},
		Server: config.ServerConfig{
			CORSOrigins: []string{"*"},
			MaxPoints:   100,
		},
	}
}

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	srv := httptest.NewServer(NewServer(st, testConfig(), opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createRun(t *testing.T, base string) model.Run {
	t.Helper()
	resp := doJSON(t, http.MethodPost, base+"/v1/cluster", ClusterRequest{Points: cityPoints})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[model.Run](t, resp)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decodeBody[map[string]string](t, resp))
}

func TestCluster_CreatesCompletedRun(t *testing.T) {
	srv, st := newTestServer(t)

	run := createRun(t, srv.URL)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Len(t, run.Result.Labels, len(cityPoints))
	assert.Len(t, run.Result.Centers, 2)
	assert.Equal(t, "api", run.Params.Source)
	assert.Equal(t, len(cityPoints), run.Params.NPoints)

	labels := run.Result.Labels
	for i := 1; i < 4; i++ {
		assert.Equal(t, labels[0], labels[i])
	}
	assert.NotEqual(t, labels[0], labels[4])

	stored, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, stored.Status)
	assert.Equal(t, run.Result.Labels, stored.Result.Labels)
}

func TestCluster_OptionsOverride(t *testing.T) {
	srv, _ := newTestServer(t)

	k := 3
	seed := uint64(9)
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/cluster", ClusterRequest{
		Points:  cityPoints,
		Options: &ClusterOptions{NClusters: &k, Seed: &seed, Metric: "euclidean", Init: "random"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decodeBody[model.Run](t, resp)
	assert.Equal(t, 3, run.Params.NClusters)
	assert.Equal(t, "euclidean", run.Params.Metric)
	assert.Equal(t, "random", run.Params.Init)
	assert.Len(t, run.Result.Centers, 3)
	assert.Len(t, run.Result.Restarts, 10)
}

func TestCluster_ExplicitCenters(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/cluster", ClusterRequest{
		Points:  cityPoints,
		Options: &ClusterOptions{Centers: [][2]float64{{-74, 40.7}, {2.3, 48.8}}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decodeBody[model.Run](t, resp)
	assert.Equal(t, "explicit", run.Params.Init)
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 1}, run.Result.Labels)
}

func TestCluster_BadRequests(t *testing.T) {
	srv, st := newTestServer(t)
	k := 20

	cases := []struct {
		name string
		body any
		want int
	}{
		{"no points", ClusterRequest{}, http.StatusBadRequest},
		{"latitude out of range", ClusterRequest{Points: [][]float64{{0, 91}, {1, 1}}}, http.StatusBadRequest},
		{"longitude out of range", ClusterRequest{Points: [][]float64{{181, 0}, {1, 1}}}, http.StatusBadRequest},
		{"three columns", ClusterRequest{Points: [][]float64{{0, 0, 0}, {1, 1, 1}}}, http.StatusBadRequest},
		{"fewer samples than clusters", ClusterRequest{Points: cityPoints, Options: &ClusterOptions{NClusters: &k}}, http.StatusBadRequest},
		{"negative weight", ClusterRequest{Points: [][]float64{{0, 0}, {1, 1}}, Weights: []float64{1, -1}}, http.StatusBadRequest},
		{"unknown metric", ClusterRequest{Points: cityPoints, Options: &ClusterOptions{Metric: "manhattan"}}, http.StatusBadRequest},
		{"too many points", ClusterRequest{Points: make([][]float64, 101)}, http.StatusRequestEntityTooLarge},
		{"malformed body", "not json", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/v1/cluster", tc.body)
			assert.Equal(t, tc.want, resp.StatusCode)
			body := decodeBody[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}

	// Rejected requests are never recorded.
	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// cancellingStore cancels the request once the run is marked running, as if
// the client disconnected mid-fit.
type cancellingStore struct {
	store.Store
	cancel context.CancelFunc
}

func (c *cancellingStore) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	err := c.Store.UpdateRunStatus(ctx, id, status)
	c.cancel()
	return err
}

func TestCluster_ClientGoneMarksRunFailed(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewServer(&cancellingStore{Store: st, cancel: cancel}, testConfig(), WithLogger(zap.NewNop())).Handler()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(ClusterRequest{Points: cityPoints}))
	req := httptest.NewRequest(http.MethodPost, "/v1/cluster", &buf).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, StatusClientClosedRequest, rec.Code)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "context canceled")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(fmt.Errorf("fit: %w", context.DeadlineExceeded)))
	assert.Equal(t, StatusClientClosedRequest, statusFor(context.Canceled))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestCluster_RateLimited(t *testing.T) {
	srv, _ := newTestServer(t, WithLimiter(rate.NewLimiter(rate.Every(1e12), 1)))

	createRun(t, srv.URL)
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/cluster", ClusterRequest{Points: cityPoints})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Reads are not limited.
	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/runs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRuns_GetListDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	first := createRun(t, srv.URL)
	createRun(t, srv.URL)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/runs/"+first.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[model.Run](t, resp)
	assert.Equal(t, first.ID, got.ID)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/runs?status=complete&limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]model.Run](t, resp), 1)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/runs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/runs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/runs/"+first.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/runs/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/runs/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuns_ListEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []model.Run{}, decodeBody[[]model.Run](t, resp))
}

func TestPredict(t *testing.T) {
	srv, _ := newTestServer(t)
	run := createRun(t, srv.URL)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+run.ID+"/predict", PointsRequest{Points: cityPoints})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[PredictResponse](t, resp)
	assert.Equal(t, run.ID, got.RunID)
	assert.Equal(t, run.Result.Labels, got.Labels)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+run.ID+"/predict", PointsRequest{Points: [][]float64{{0, -95}}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/runs/missing/predict", PointsRequest{Points: cityPoints})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransform(t *testing.T) {
	srv, _ := newTestServer(t)
	run := createRun(t, srv.URL)
	nyc := [][]float64{{-74.0060, 40.7128}}

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+run.ID+"/transform", PointsRequest{Points: nyc})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rad := decodeBody[TransformResponse](t, resp)
	assert.Equal(t, "radians", rad.Unit)
	require.Len(t, rad.Distances, 1)
	require.Len(t, rad.Distances[0], 2)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+run.ID+"/transform?unit=km", PointsRequest{Points: nyc})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	km := decodeBody[TransformResponse](t, resp)
	assert.Equal(t, "km", km.Unit)

	// New York to the Paris center is roughly 5,800 km.
	far := max(km.Distances[0][0], km.Distances[0][1])
	assert.InDelta(t, 5837, far, 60)
}

func TestPredict_RunNotComplete(t *testing.T) {
	srv, st := newTestServer(t)

	run, err := st.CreateRun(context.Background(), model.RunParams{NClusters: 2, Metric: "haversine"})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+run.ID+"/predict", PointsRequest{Points: cityPoints})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/cluster", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://maps.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
