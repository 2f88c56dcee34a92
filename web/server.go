package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"weight-monitor/logging"
	"weight-monitor/types"
)

// ScaleController is the part of the connection manager the web layer drives.
type ScaleController interface {
	ListPorts() ([]string, error)
	Status() types.ConnectionStatus
	Connect(cfg types.ConnectionConfig) error
	Disconnect() error
	Toggle(cfg types.ConnectionConfig) error
	AddListener(ch chan types.Event)
	RemoveListener(ch chan types.Event)
}

type DisplayReader interface {
	Current() types.DisplaySnapshot
}

type Server struct {
	addr    string
	logDir  string
	scale   ScaleController
	display DisplayReader
	hub     *WSHub
	log     zerolog.Logger
	router  *mux.Router
}

func NewServer(addr, logDir string, scale ScaleController, display DisplayReader) *Server {
	s := &Server{
		addr:    addr,
		logDir:  logDir,
		scale:   scale,
		display: display,
		hub:     NewWSHub(),
		log:     logging.For(logging.TypeWeb),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.indexHandler).Methods(http.MethodGet)
	r.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/ports", s.portsHandler).Methods(http.MethodGet)
	r.HandleFunc("/connect", s.connectHandler).Methods(http.MethodPost)
	r.HandleFunc("/disconnect", s.disconnectHandler).Methods(http.MethodPost)
	r.HandleFunc("/toggle", s.toggleHandler).Methods(http.MethodPost)
	r.HandleFunc("/weight", s.weightHandler).Methods(http.MethodGet)
	r.HandleFunc("/weight/copy", s.copyWeightHandler).Methods(http.MethodPost)
	r.HandleFunc("/logs", s.logsHandler).Methods(http.MethodGet)
	r.HandleFunc("/logs/stream", s.logsStreamHandler).Methods(http.MethodGet)
	r.HandleFunc("/logs/save", s.saveLogsHandler).Methods(http.MethodPost)
	r.HandleFunc("/logs/clear", s.clearLogsHandler).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.wsHandler).Methods(http.MethodGet)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.pumpEvents(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msgf("🌐 web server listening on http://localhost%s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("🌐 web server stopped")
	return nil
}

// pumpEvents forwards manager events to websocket clients with the display
// snapshot attached.
func (s *Server) pumpEvents(ctx context.Context) {
	events := make(chan types.Event, 64)
	s.scale.AddListener(events)
	defer s.scale.RemoveListener(events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(WSMessage{Type: string(ev.Kind), Data: eventPayload{
				Event:   ev,
				Status:  s.scale.Status(),
				Display: s.display.Current(),
			}})
		}
	}
}

type eventPayload struct {
	Event   types.Event            `json:"event"`
	Status  types.ConnectionStatus `json:"status"`
	Display types.DisplaySnapshot  `json:"display"`
}
