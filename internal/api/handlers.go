package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/geocluster/internal/model"
	"github.com/sells-group/geocluster/internal/store"
	"github.com/sells-group/geocluster/pkg/geokmeans"
	"github.com/sells-group/geocluster/pkg/haversine"
)

const maxBodyBytes = 64 << 20

// ClusterOptions overrides the configured cluster defaults for one request.
type ClusterOptions struct {
	NClusters *int         `json:"n_clusters,omitempty"`
	Init      string       `json:"init,omitempty"`
	Centers   [][2]float64 `json:"centers,omitempty"` // explicit initial centers
	NInit     *int         `json:"n_init,omitempty"`
	MaxIter   *int         `json:"max_iter,omitempty"`
	Tol       *float64     `json:"tol,omitempty"`
	Seed      *uint64      `json:"seed,omitempty"`
	Metric    string       `json:"metric,omitempty"`
}

// ClusterRequest is the body of POST /v1/cluster.
type ClusterRequest struct {
	Points  [][]float64     `json:"points"`
	Weights []float64       `json:"weights,omitempty"`
	Options *ClusterOptions `json:"options,omitempty"`
}

// PointsRequest is the body of the predict and transform endpoints.
type PointsRequest struct {
	Points [][]float64 `json:"points"`
}

// PredictResponse holds one label per point.
type PredictResponse struct {
	RunID  string `json:"run_id"`
	Labels []int  `json:"labels"`
}

// TransformResponse holds per-point distances to every center.
type TransformResponse struct {
	RunID     string      `json:"run_id"`
	Unit      string      `json:"unit"`
	Distances [][]float64 `json:"distances"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// engineOptions layers request overrides over the configured defaults.
func (s *Server) engineOptions(o *ClusterOptions) ([]geokmeans.Option, error) {
	cc := s.cluster
	if o != nil {
		if o.Init != "" {
			cc.Init = o.Init
		}
		if o.Metric != "" {
			cc.Metric = o.Metric
		}
	}
	opts, err := cc.Options()
	if err != nil {
		return nil, err
	}
	if o == nil {
		return append(opts, geokmeans.WithLogger(s.log)), nil
	}

	if o.NClusters != nil {
		opts = append(opts, geokmeans.WithClusters(*o.NClusters))
	}
	if len(o.Centers) > 0 {
		centers := make([]geokmeans.Point, len(o.Centers))
		for i, c := range o.Centers {
			centers[i] = geokmeans.Point(c)
		}
		opts = append(opts, geokmeans.WithInit(geokmeans.InitCenters(centers)))
		if o.NClusters == nil {
			opts = append(opts, geokmeans.WithClusters(len(centers)))
		}
	}
	if o.NInit != nil {
		opts = append(opts, geokmeans.WithNInit(*o.NInit))
	}
	if o.MaxIter != nil {
		opts = append(opts, geokmeans.WithMaxIter(*o.MaxIter))
	}
	if o.Tol != nil {
		opts = append(opts, geokmeans.WithTol(*o.Tol))
	}
	if o.Seed != nil {
		opts = append(opts, geokmeans.WithSeed(*o.Seed))
	}
	return append(opts, geokmeans.WithLogger(s.log)), nil
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	var req ClusterRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Points) == 0 {
		writeError(w, http.StatusBadRequest, "points are required")
		return
	}
	if s.server.MaxPoints > 0 && len(req.Points) > s.server.MaxPoints {
		writeError(w, http.StatusRequestEntityTooLarge, "too many points: limit is "+strconv.Itoa(s.server.MaxPoints))
		return
	}

	opts, err := s.engineOptions(req.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	km, err := geokmeans.New(opts...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err := geokmeans.Validate(req.Points, req.Weights, km.Options().NClusters); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	ctx := r.Context()
	run, err := s.store.CreateRun(ctx, model.ParamsFromOptions(km.Options(), "api", len(req.Points)))
	if err != nil {
		s.log.Error("api: create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create run")
		return
	}
	if err := s.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		s.log.Error("api: update run status", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not update run")
		return
	}

	res, err := km.Fit(ctx, req.Points, req.Weights)
	if err != nil {
		// The request context may already be cancelled; the run must still
		// leave the running state.
		if ferr := s.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
			s.log.Error("api: fail run", zap.String("run_id", run.ID), zap.Error(ferr))
		}
		writeError(w, statusFor(err), err.Error())
		return
	}

	result := model.NewRunResult(res)
	if err := s.store.UpdateRunResult(ctx, run.ID, result); err != nil {
		s.log.Error("api: store run result", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store result")
		return
	}

	s.log.Info("api: run complete",
		zap.String("run_id", run.ID),
		zap.Int("n_points", len(req.Points)),
		zap.Int("n_clusters", res.NClusters()),
		zap.Float64("inertia", res.Inertia),
	)

	run.Status = model.RunStatusComplete
	run.Result = result
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+key)
			return
		}
		*dst = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.log.Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.log.Error("api: store", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "store error")
}

// restoredModel loads a completed run and rebuilds its engine.
func (s *Server) restoredModel(w http.ResponseWriter, r *http.Request) (*model.Run, *geokmeans.KMeans, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return nil, nil, false
	}
	if run.Status != model.RunStatusComplete || run.Result == nil {
		writeError(w, http.StatusConflict, "run is not complete")
		return nil, nil, false
	}
	metric, err := geokmeans.ParseMetric(run.Params.Metric)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	km, err := geokmeans.Restore(run.Result.CenterPoints(),
		geokmeans.WithMetric(metric),
		geokmeans.WithLogger(s.log),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return run, km, true
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	run, km, ok := s.restoredModel(w, r)
	if !ok {
		return
	}
	var req PointsRequest
	if !decode(w, r, &req) {
		return
	}
	labels, err := km.Predict(req.Points)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PredictResponse{RunID: run.ID, Labels: labels})
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	run, km, ok := s.restoredModel(w, r)
	if !ok {
		return
	}
	var req PointsRequest
	if !decode(w, r, &req) {
		return
	}
	dist, err := km.Transform(req.Points)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	unit := "degrees"
	if km.Options().Metric.Name() == "haversine" {
		unit = "radians"
		if r.URL.Query().Get("unit") == "km" {
			unit = "km"
			for _, row := range dist {
				for j := range row {
					row[j] = haversine.Kilometers(row[j])
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, TransformResponse{RunID: run.ID, Unit: unit, Distances: dist})
}
