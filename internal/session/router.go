package session

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Router builds the gorilla/mux router exposing the WebSocket upgrade
// endpoint and a liveness probe.
type Router struct {
	hub    *Hub
	logger *zap.Logger
}

// NewRouter creates a Router wired to hub.
func NewRouter(hub *Hub, logger *zap.Logger) *Router {
	return &Router{hub: hub, logger: logger}
}

// Mux returns the registered *mux.Router.
func (rt *Router) Mux(path string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(path, rt.handleUpgrade)
	r.HandleFunc("/healthz", rt.handleHealthz).Methods(http.MethodGet)
	return r
}

func (rt *Router) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter required", http.StatusBadRequest)
		return
	}
	isAdmin := r.URL.Query().Get("admin") == "true"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), owner, isAdmin, conn, rt.hub, rt.logger)
	client.Serve(r.Context())
}

func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
