package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/storage"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, riderID string, origin, destination models.Coord) (models.DispatchResult, error)
}

type Lifecycle interface {
	UpdateStatus(ctx context.Context, rideID string, to models.RideStatus, actingDriverID string) (*models.Ride, error)
	UpdateDriverLocation(ctx context.Context, driverID string, c models.Coord) error
}

type CandidateFinder interface {
	FindCandidates(ctx context.Context, pickup models.Coord, radiusKm float64) ([]matcher.Candidate, error)
}

// LocationPublisher forwards location reports to the ingest topic.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, driverID string, c models.Coord) error
}

// Deps are the collaborators a Server routes to. Locations and WSReg are optional.
type Deps struct {
	Dispatcher Dispatcher
	Lifecycle  Lifecycle
	Finder     CandidateFinder
	Rides      storage.RideStore
	Locations  LocationPublisher
	WSReg      *notify.WSRegistry
	Logger     *slog.Logger
}

type Server struct {
	dispatcher Dispatcher
	lifecycle  Lifecycle
	finder     CandidateFinder
	rides      storage.RideStore
	locations  LocationPublisher
	wsreg      *notify.WSRegistry
	logger     *slog.Logger
	mux        *mux.Router
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dispatcher: d.Dispatcher,
		lifecycle:  d.Lifecycle,
		finder:     d.Finder,
		rides:      d.Rides,
		locations:  d.Locations,
		wsreg:      d.WSReg,
		logger:     logger,
		mux:        mux.NewRouter(),
	}
	s.useDispatchMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rides", s.handleDispatch).Methods(http.MethodPost)
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}/status", s.handleUpdateStatus).Methods(http.MethodPatch)
	api.HandleFunc("/drivers/nearby", s.handleNearby).Methods(http.MethodGet)
	api.HandleFunc("/drivers/{id}/location", s.handleDriverLocation).Methods(http.MethodPut)

	s.mux.HandleFunc("/internal/driver/locations", s.handleIngestLocation).Methods(http.MethodPost)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.wsreg != nil {
		s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid json body"))
		return
	}
	if req.RiderID == "" {
		s.writeError(w, r, badRequest("rider_id is required"))
		return
	}
	if err := validateCoords(req.Origin, req.Destination); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.dispatcher.Dispatch(r.Context(), req.RiderID, req.Origin, req.Destination)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.rides.GetRide(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, r, models.ErrRideNotFound)
		return
	}
	if err != nil {
		s.writeError(w, r, models.Collaborator("get ride", err))
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

type statusRequest struct {
	Status   models.RideStatus `json:"status"`
	DriverID string            `json:"driver_id,omitempty"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid json body"))
		return
	}
	if !req.Status.Valid() {
		s.writeError(w, r, badRequest("unknown status "+strconv.Quote(string(req.Status))))
		return
	}
	ride, err := s.lifecycle.UpdateStatus(r.Context(), mux.Vars(r)["id"], req.Status, req.DriverID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var c models.Coord
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.writeError(w, r, badRequest("invalid json body"))
		return
	}
	if err := s.lifecycle.UpdateDriverLocation(r.Context(), mux.Vars(r)["id"], c); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ingestRequest struct {
	DriverID string       `json:"driver_id"`
	Location models.Coord `json:"location"`
}

// handleIngestLocation queues the report on Kafka when configured and
// applies it inline otherwise.
func (s *Server) handleIngestLocation(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid json body"))
		return
	}
	if req.DriverID == "" {
		s.writeError(w, r, badRequest("driver_id is required"))
		return
	}
	if err := models.ValidateCoord(req.Location); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.locations != nil {
		if err := s.locations.PublishLocation(r.Context(), req.DriverID, req.Location); err != nil {
			s.writeError(w, r, models.Collaborator("publish location", err))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.lifecycle.UpdateDriverLocation(r.Context(), req.DriverID, req.Location); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nearbyDriver struct {
	ID         string         `json:"id"`
	FirstName  string         `json:"first_name"`
	Vehicle    models.Vehicle `json:"vehicle"`
	Location   models.Coord   `json:"location"`
	DistanceKm float64        `json:"distance_km"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, r, badRequest("lat and lon are required numbers"))
		return
	}
	pickup := models.Coord{Lat: lat, Lon: lon}
	if err := models.ValidateCoord(pickup); err != nil {
		s.writeError(w, r, err)
		return
	}
	var radius float64
	if v := q.Get("radius_km"); v != "" {
		radius, err1 = strconv.ParseFloat(v, 64)
		if err1 != nil || !(radius > 0) {
			s.writeError(w, r, badRequest("radius_km must be a positive number"))
			return
		}
	}
	cands, err := s.finder.FindCandidates(r.Context(), pickup, radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]nearbyDriver, 0, len(cands))
	for _, c := range cands {
		out = append(out, nearbyDriver{
			ID:         c.Driver.ID,
			FirstName:  c.Driver.FirstName,
			Vehicle:    c.Driver.Vehicle,
			Location:   *c.Driver.Location,
			DistanceKm: c.DistanceKm,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": out})
}

var upgrader = websocket.Upgrader{}

// handleWS holds the connection open until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		s.logger.Warn("ws upgrade failed", "user_id", id, "error", err)
		return
	}
	s.wsreg.Add(id, conn)
	defer func() {
		s.wsreg.Remove(id, conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func validateCoords(cs ...models.Coord) error {
	for _, c := range cs {
		if err := models.ValidateCoord(c); err != nil {
			return err
		}
	}
	return nil
}
