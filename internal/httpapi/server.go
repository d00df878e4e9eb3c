package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

type Dependencies struct {
	Logger  logrus.FieldLogger
	Addr    string
	// Queries must be built with gate.Nop.
	Queries *service.QueryService
	Store   store.Pinger
}

// Server is the operator HTTP API: manual queries and a health probe.
type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
	queries    *service.QueryService
	store      store.Pinger
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:  d.Logger,
		queries: d.Queries,
		store:   d.Store,
	}

	mux.HandleFunc("POST /v1/biometric_query", s.handleQuery)
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleQuery runs one decision cycle. Every decision, ERROR included,
// is a 200; only an unreadable body is a 400.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeQuery(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	res := s.queries.Process(r.Context(), req)

	if !wantsProtobuf(r) {
		writeJSON(w, http.StatusOK, res)
		return
	}
	out, err := queryResultToProto(res)
	if err != nil {
		s.logger.WithError(err).WithField("query_id", res.QueryID).Error("encode query result")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeProto(w, http.StatusOK, out)
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (types.QueryRequest, error) {
	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(w, r, &msg); err != nil {
			return types.QueryRequest{}, errors.New("invalid protobuf body")
		}
		return queryRequestFromProto(&msg)
	}

	var req types.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return types.QueryRequest{}, errors.New("invalid JSON body")
	}
	return req, nil
}

type healthResponse struct {
	OK            bool           `json:"ok"`
	UnitCode      string         `json:"unit_code"`
	Device        string         `json:"device"`
	Strategy      types.Strategy `json:"strategy"`
	AuditFailures int64          `json:"audit_failures"`
	ServerTime    string         `json:"server_time"`
	Error         string         `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sess := s.queries.Session()
	resp := healthResponse{
		OK:            true,
		UnitCode:      sess.Unit.UnitCode,
		Device:        sess.Device,
		Strategy:      s.queries.Strategy(),
		AuditFailures: s.queries.AuditFailures(),
		ServerTime:    time.Now().UTC().Format(time.RFC3339Nano),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("health check: store unreachable")
		resp.OK = false
		resp.Error = "storage unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
