package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/auth"
	"github.com/ryadrakem/mms-V2/internal/config"
	"github.com/ryadrakem/mms-V2/internal/invitation"
	"github.com/ryadrakem/mms-V2/internal/jaas"
	"github.com/ryadrakem/mms-V2/internal/metrics"
	"github.com/ryadrakem/mms-V2/internal/session"
)

type TokenExchanger interface {
	Exchange(ctx context.Context, req jaas.Request) (jaas.Grant, error)
}

// SocketServer attaches a session page over a websocket. The context
// bounds the connection, not the upgrade request.
type SocketServer interface {
	Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID int64) error
}

// InvitationResponder records answers from emailed invitation links.
type InvitationResponder interface {
	Respond(ctx context.Context, meetingID, participantID int64, token, response string) (invitation.Result, error)
}

type Deps struct {
	Sessions    *session.Manager
	Invitations InvitationResponder
	Tokens      TokenExchanger
	Sockets     SocketServer
	Gatherer    prometheus.Gatherer
	Logger      zerolog.Logger
	// BaseContext outlives requests and ends on shutdown.
	BaseContext context.Context
}

type Server struct {
	cfg  config.Config
	deps Deps
	log  zerolog.Logger
}

func NewRouter(cfg config.Config, deps Deps) http.Handler {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{cfg: cfg, deps: deps, log: deps.Logger.With().Str("module", "api").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	// End meeting walks three record writes plus the kick round trip.
	r.Use(middleware.Timeout(time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)

	r.With(auth.Middleware(cfg.JWTSecret)).Post("/meeting/jitsi/token", s.handleJitsiToken)
	// The link token authenticates the participant.
	r.Get("/meeting/respond/{meetingID}/{participantID}/{token}/{response}", s.handleInvitationResponse)

	r.Route("/api/v1/sessions/{sessionID}", func(sr chi.Router) {
		sr.Use(auth.Middleware(cfg.JWTSecret))
		sr.Post("/open", s.handleOpen)
		sr.Get("/ws", s.handleSocket)

		sr.Group(func(open chi.Router) {
			open.Use(s.openSession)
			open.Get("/", s.handleSnapshot)
			open.Post("/tab", s.handleTab)
			open.Post("/pip", s.handlePip)
			open.Post("/camera", s.handleCamera)
			open.Post("/notes", s.handleNotes)
			open.Post("/minutes", s.handleMinutes)
			open.Get("/minutes/draft", s.handleMinutesDraft)
			open.Post("/end", s.handleEnd)
			open.Post("/leave", s.handleLeave)
			open.Post("/retry", s.handleRetry)
			open.Post("/admit", s.handleAdmit)
			open.Post("/reject", s.handleReject)
			open.Post("/mute", s.handleMute)
			open.Get("/actions", s.handleListActions)
			open.Post("/actions", s.handleAddAction)
			open.Put("/actions/{actionID}", s.handleUpdateAction)
			open.Delete("/actions/{actionID}", s.handleDeleteAction)
		})
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type apiError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	var payload apiError
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
