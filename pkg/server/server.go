// Package server exposes the aggregation operations over HTTP.
package server

import (
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/eastonLua/teable/pkg/actor"
	"github.com/eastonLua/teable/pkg/aggregation"
	"github.com/eastonLua/teable/pkg/link"
	"github.com/eastonLua/teable/pkg/queryfilter"
	"github.com/eastonLua/teable/pkg/querysort"
	"github.com/eastonLua/teable/pkg/tablemeta"
	"github.com/eastonLua/teable/pkg/view"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ActorHeader carries the acting user id of a request.
const ActorHeader = "X-Teable-User"

// API wires the aggregation service into HTTP routes.
type API struct {
	svc    *aggregation.Service
	logger log.Logger
}

// NewAPI creates the HTTP API.
func NewAPI(svc *aggregation.Service, logger log.Logger) *API {
	return &API{svc: svc, logger: logger}
}

// RegisterRoutes registers the aggregation routes on the router.
func (a *API) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/table/{tableId}/aggregation", a.wrap(a.aggregation)).Methods(http.MethodGet)
	r.HandleFunc("/api/table/{tableId}/aggregation/row-count", a.wrap(a.rowCount)).Methods(http.MethodGet)
	r.HandleFunc("/api/table/{tableId}/aggregation/group-points", a.wrap(a.groupPoints)).Methods(http.MethodGet)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, logger log.Logger)

func (a *API) wrap(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(a.logger, "request_id", uuid.NewString())
		if userID := r.Header.Get(ActorHeader); userID != "" {
			r = r.WithContext(actor.Inject(r.Context(), userID))
		}
		next(w, r, logger)
	}
}

func (a *API) aggregation(w http.ResponseWriter, r *http.Request, logger log.Logger) {
	tableID := mux.Vars(r)["tableId"]
	q := r.URL.Query()

	req := aggregation.AggregationRequest{
		ViewID:   q.Get("viewId"),
		FieldIDs: q["fieldId"],
	}
	var err error
	if req.Filter, err = queryfilter.Parse(q.Get("filter")); err != nil {
		writeError(w, logger, badRequest(err, "filter"))
		return
	}
	if raw := q.Get("statisticFields"); raw != "" {
		if err := json.UnmarshalFromString(raw, &req.FieldStats); err != nil {
			writeError(w, logger, badRequest(err, "statisticFields"))
			return
		}
	}

	result, err := a.svc.ComputeAggregations(r.Context(), tableID, req)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	writeJSON(w, logger, result)
}

func (a *API) rowCount(w http.ResponseWriter, r *http.Request, logger log.Logger) {
	tableID := mux.Vars(r)["tableId"]
	q := r.URL.Query()

	req := aggregation.RowCountRequest{ViewID: q.Get("viewId")}
	var err error
	if req.Filter, err = queryfilter.Parse(q.Get("filter")); err != nil {
		writeError(w, logger, badRequest(err, "filter"))
		return
	}
	if raw := q.Get("filterLinkCellCandidate"); raw != "" {
		var spec link.CandidateSpec
		if err := json.UnmarshalFromString(raw, &spec); err != nil {
			writeError(w, logger, badRequest(err, "filterLinkCellCandidate"))
			return
		}
		req.FilterLinkCellCandidate = &spec
	}
	if raw := q.Get("filterLinkCellSelected"); raw != "" {
		var sel link.Selection
		if err := json.UnmarshalFromString(raw, &sel); err != nil {
			writeError(w, logger, badRequest(err, "filterLinkCellSelected"))
			return
		}
		req.FilterLinkCellSelected = &sel
	}

	result, err := a.svc.CountRows(r.Context(), tableID, req)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	writeJSON(w, logger, result)
}

func (a *API) groupPoints(w http.ResponseWriter, r *http.Request, logger log.Logger) {
	tableID := mux.Vars(r)["tableId"]
	q := r.URL.Query()

	req := aggregation.GroupPointsRequest{ViewID: q.Get("viewId")}
	var err error
	if req.Filter, err = queryfilter.Parse(q.Get("filter")); err != nil {
		writeError(w, logger, badRequest(err, "filter"))
		return
	}
	if raw := q.Get("groupBy"); raw != "" {
		var keys []querysort.SortKey
		if err := json.UnmarshalFromString(raw, &keys); err != nil {
			writeError(w, logger, badRequest(err, "groupBy"))
			return
		}
		req.GroupBy = keys
	}

	points, err := a.svc.ComputeGroupPoints(r.Context(), tableID, req)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	writeJSON(w, logger, points)
}

type badRequestError struct {
	err   error
	param string
}

func (e *badRequestError) Error() string {
	return "invalid " + e.param + ": " + e.err.Error()
}

func badRequest(err error, param string) error {
	return &badRequestError{err: err, param: param}
}

func writeJSON(w http.ResponseWriter, logger log.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		level.Error(logger).Log("msg", "write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, logger log.Logger, err error) {
	status := http.StatusInternalServerError

	var limitErr *aggregation.GroupLimitError
	var badReq *badRequestError
	switch {
	case errors.Is(err, tablemeta.ErrTableNotFound):
		status = http.StatusNotFound
	case errors.As(err, &limitErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, view.ErrMalformedFilter), errors.As(err, &badReq):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		level.Error(logger).Log("msg", "request failed", "err", err)
	} else {
		level.Debug(logger).Log("msg", "request rejected", "status", status, "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
