package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/example/transport-marketplace/internal/dispatch"
	"github.com/example/transport-marketplace/internal/marketplace"
	"github.com/example/transport-marketplace/internal/models"
	"github.com/example/transport-marketplace/internal/places"
	"github.com/example/transport-marketplace/internal/reservation"
	"github.com/example/transport-marketplace/internal/routing"
	"github.com/example/transport-marketplace/internal/search"
	"github.com/example/transport-marketplace/internal/storage"
)

// ClientIDHeader identifies the browser session that owns per-client state.
const ClientIDHeader = "X-Client-ID"

type Options struct {
	Market      *marketplace.Service
	Places      *places.Service
	Routing     *routing.Service
	WSReg       *dispatch.WSRegistry
	Logger      *slog.Logger
	CORSOrigins []string
}

type Server struct {
	market  *marketplace.Service
	places  *places.Service
	routing *routing.Service
	wsreg   *dispatch.WSRegistry
	logger  *slog.Logger
	mux     *mux.Router
	handler http.Handler
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		market:  opts.Market,
		places:  opts.Places,
		routing: opts.Routing,
		wsreg:   opts.WSReg,
		logger:  logger,
		mux:     mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", ClientIDHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	s.handler = c.Handler(s.mux)
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/requests/{id}", s.handleWS)

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/requests", s.handleBrowse).Methods("GET")
	api.HandleFunc("/requests", s.handleCreateRequest).Methods("POST")
	api.HandleFunc("/requests/nearby", s.handleNearby).Methods("GET")
	api.HandleFunc("/requests/{id}", s.handleGetRequest).Methods("GET")
	api.HandleFunc("/requests/{id}/offers", s.handleRequestOffers).Methods("GET")
	api.HandleFunc("/requests/{id}/offers", s.handleSubmitOffer).Methods("POST")
	api.HandleFunc("/requests/{id}/reservations", s.handleStartReservation).Methods("POST")
	api.HandleFunc("/reservations/{id}", s.handleGetReservation).Methods("GET")
	api.HandleFunc("/reservations/{id}/actions", s.handleReservationAction).Methods("POST")

	api.HandleFunc("/users", s.handleUsers).Methods("GET")
	api.HandleFunc("/users/{id}", s.handleUser).Methods("GET")
	api.HandleFunc("/users/{id}/carrier", s.handleUserCarrier).Methods("GET")
	api.HandleFunc("/carriers", s.handleCarriers).Methods("GET")
	api.HandleFunc("/carriers/{id}", s.handleCarrier).Methods("GET")
	api.HandleFunc("/carriers/{id}/vehicles", s.handleCarrierVehicles).Methods("GET")
	api.HandleFunc("/carriers/{id}/vehicles", s.handleAddVehicle).Methods("POST")
	api.HandleFunc("/carriers/{id}/offers", s.handleCarrierOffers).Methods("GET")
	api.HandleFunc("/vehicles/{id}", s.handleVehicle).Methods("GET")
	api.HandleFunc("/offers/{id}", s.handleOffer).Methods("GET")

	api.HandleFunc("/gate", s.handleGateStatus).Methods("GET")
	api.HandleFunc("/gate", s.handleGateUnlock).Methods("POST")
	api.HandleFunc("/preferences/geo-filter", s.handleGetGeoFilter).Methods("GET")
	api.HandleFunc("/preferences/geo-filter", s.handleSetGeoFilter).Methods("PUT")
	api.HandleFunc("/preferences/geo-filter", s.handleClearGeoFilter).Methods("DELETE")

	api.HandleFunc("/places", s.handlePlaces).Methods("GET")
	api.HandleFunc("/route", s.handleRoute).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q, err := parseBrowseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", storage.ErrInvalid, err))
		return
	}
	out, err := s.market.Browse(r.Context(), clientID(r), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req models.TransportRequest
	if !s.decode(w, r, &req) {
		return
	}
	created, err := s.market.CreateRequest(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	rad, err := parseRadius(v)
	if err == nil && rad == nil {
		err = errors.New("lat, lng and radius_km are required")
	}
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", storage.ErrInvalid, err))
		return
	}
	limit := 0
	if l := v.Get("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid limit", storage.ErrInvalid))
			return
		}
	}
	out, err := s.market.Nearby(r.Context(), rad.Center, rad.RadiusKm, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.market.GetRequest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleRequestOffers(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.OffersForRequest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	var o models.Offer
	if !s.decode(w, r, &o) {
		return
	}
	o.RequestID = mux.Vars(r)["id"]
	created, err := s.market.SubmitOffer(r.Context(), o)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleStartReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.market.StartReservation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.market.Reservation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReservationAction(w http.ResponseWriter, r *http.Request) {
	var a reservation.Action
	if !s.decode(w, r, &a) {
		return
	}
	res, err := s.market.Act(r.Context(), mux.Vars(r)["id"], a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Catalog.Users())
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.market.Catalog.User(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleUserCarrier resolves the carrier profile a carrier-role user acts as.
func (s *Server) handleUserCarrier(w http.ResponseWriter, r *http.Request) {
	c, err := s.market.Catalog.CarrierByUser(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCarriers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Catalog.TopCarriers())
}

func (s *Server) handleCarrier(w http.ResponseWriter, r *http.Request) {
	c, err := s.market.Catalog.Carrier(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCarrierVehicles(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.market.Catalog.Carrier(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.market.Catalog.VehiclesByCarrier(id))
}

func (s *Server) handleAddVehicle(w http.ResponseWriter, r *http.Request) {
	var v models.Vehicle
	if !s.decode(w, r, &v) {
		return
	}
	v.CarrierID = mux.Vars(r)["id"]
	created, err := s.market.Catalog.AddVehicle(v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleCarrierOffers(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.OffersByCarrier(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := s.market.Catalog.Vehicle(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	o, err := s.market.Offer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type gateStatus struct {
	Authorized bool `json:"authorized"`
}

func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	cid, ok := s.requireClient(w, r)
	if !ok {
		return
	}
	authorized, err := s.market.Unlocked(r.Context(), cid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateStatus{Authorized: authorized})
}

func (s *Server) handleGateUnlock(w http.ResponseWriter, r *http.Request) {
	cid, ok := s.requireClient(w, r)
	if !ok {
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.market.Unlock(r.Context(), cid, body.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateStatus{Authorized: true})
}

func (s *Server) handleGetGeoFilter(w http.ResponseWriter, r *http.Request) {
	cid, ok := s.requireClient(w, r)
	if !ok {
		return
	}
	gf, err := s.market.Prefs.GeoFilter(r.Context(), cid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if gf == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, gf)
}

func (s *Server) handleSetGeoFilter(w http.ResponseWriter, r *http.Request) {
	cid, ok := s.requireClient(w, r)
	if !ok {
		return
	}
	var gf storage.GeoFilter
	if !s.decode(w, r, &gf) {
		return
	}
	if err := s.market.Prefs.SetGeoFilter(r.Context(), cid, gf); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gf)
}

func (s *Server) handleClearGeoFilter(w http.ResponseWriter, r *http.Request) {
	cid, ok := s.requireClient(w, r)
	if !ok {
		return
	}
	if err := s.market.Prefs.ClearGeoFilter(r.Context(), cid); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaces(w http.ResponseWriter, r *http.Request) {
	res, err := s.places.Lookup(r.Context(), clientID(r), r.URL.Query().Get("q"))
	if errors.Is(err, places.ErrSuperseded) {
		res = []places.Suggestion{}
	} else if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	pts, err := parsePoints(rawQueryParam(r.URL.RawQuery, "points"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", storage.ErrInvalid, err))
		return
	}
	route, err := s.routing.Route(r.Context(), pts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams new offers for a request until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.market.Requests.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "request_id", id, "error", err)
		return
	}
	sess := s.wsreg.Add(id, conn)
	defer func() {
		s.wsreg.Remove(id, sess)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func clientID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ClientIDHeader))
}

func (s *Server) requireClient(w http.ResponseWriter, r *http.Request) (string, bool) {
	cid := clientID(r)
	if cid == "" {
		s.writeError(w, r, fmt.Errorf("%w: %s header is required", storage.ErrInvalid, ClientIDHeader))
		return "", false
	}
	return cid, true
}

func parseBrowseQuery(v url.Values) (search.Query, error) {
	var q search.Query
	var errs []error
	q.Text = strings.TrimSpace(v.Get("q"))

	var err error
	if q.Distance.Min, err = optFloat(v, "min_distance"); err != nil {
		errs = append(errs, err)
	}
	if q.Distance.Max, err = optFloat(v, "max_distance"); err != nil {
		errs = append(errs, err)
	}
	if q.Budget.Min, err = optFloat(v, "min_budget"); err != nil {
		errs = append(errs, err)
	}
	if q.Budget.Max, err = optFloat(v, "max_budget"); err != nil {
		errs = append(errs, err)
	}
	if q.Radius, err = parseRadius(v); err != nil {
		errs = append(errs, err)
	}
	if q.Sort, err = search.ParseSortKey(v.Get("sort")); err != nil {
		errs = append(errs, err)
	}
	return q, errors.Join(errs...)
}

// parseRadius returns nil when none of lat, lng and radius_km is given.
func parseRadius(v url.Values) (*search.Radius, error) {
	lat, err1 := optFloat(v, "lat")
	lng, err2 := optFloat(v, "lng")
	km, err3 := optFloat(v, "radius_km")
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}
	if lat == nil && lng == nil && km == nil {
		return nil, nil
	}
	if lat == nil || lng == nil || km == nil {
		return nil, errors.New("lat, lng and radius_km must be given together")
	}
	area := storage.GeoFilter{Center: models.Coord{Lat: *lat, Lng: *lng}, RadiusKm: *km}
	if err := area.Validate(); err != nil {
		return nil, err
	}
	return &search.Radius{Center: area.Center, RadiusKm: area.RadiusKm}, nil
}

func optFloat(v url.Values, key string) (*float64, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return &f, nil
}

// rawQueryParam reads a parameter whose value may hold ';', which url.ParseQuery
// rejects.
func rawQueryParam(raw, key string) string {
	for _, kv := range strings.Split(raw, "&") {
		k, v, _ := strings.Cut(kv, "=")
		if k != key {
			continue
		}
		if unescaped, err := url.QueryUnescape(v); err == nil {
			return unescaped
		}
		return v
	}
	return ""
}

// parsePoints reads "lat,lng;lat,lng;...".
func parsePoints(raw string) ([]models.Coord, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("points is required")
	}
	var out []models.Coord
	for _, pair := range strings.Split(raw, ";") {
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid point %q", pair)
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("invalid point %q", pair)
		}
		out = append(out, models.Coord{Lat: lat, Lng: lng})
	}
	return out, nil
}
