package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
)

const (
	// PeerHeader carries the host's peer id in the handshake response
	PeerHeader = "X-Tabletop-Peer"
	// PeerQueryParam carries the connecting player's peer id
	PeerQueryParam = "peer"
	// WSPath is where the host accepts player connections
	WSPath = "/ws"
)

// WSServer accepts websocket connections from players.
type WSServer struct {
	addr         string
	localID      string
	connections  *ConnectionManager
	messageQueue queue.Queue
}

type NewWSServerOptions struct {
	Addr              string
	LocalID           string
	ConnectionManager *ConnectionManager
	MessageQueue      queue.Queue
}

// NewWSServer creates a new WebSocket server.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	return &WSServer{
		addr:         opts.Addr,
		localID:      opts.LocalID,
		connections:  opts.ConnectionManager,
		messageQueue: opts.MessageQueue,
	}
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *WSServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(WSPath, s.handleWS).Methods(http.MethodGet)
	return r
}

// Start starts the WebSocket server and blocks until ctx is done.
func (s *WSServer) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		s.connections.CloseAll()
		server.Shutdown(context.Background())
	}()

	log.Info("WebSocket server listening on %s", s.addr)
	if err := server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("WebSocket server closed")
			return nil
		}
		return fmt.Errorf("websocket server error: %v", err)
	}
	return nil
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get(PeerQueryParam)
	if peerID == "" {
		http.Error(w, "missing peer id", http.StatusBadRequest)
		return
	}
	if peerID == s.localID {
		http.Error(w, "peer id is taken by the host", http.StatusConflict)
		return
	}
	if s.connections.Exists(peerID) {
		http.Error(w, "peer is already connected", http.StatusConflict)
		return
	}

	w.Header().Set(PeerHeader, s.localID)
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Error("Failed to accept WebSocket from %s: %v", r.RemoteAddr, err)
		return
	}
	log.Debug("New WebSocket connection from %s (%s)", peerID, r.RemoteAddr)

	if err := Serve(r.Context(), newConnection(peerID, conn), s.connections, s.messageQueue); err != nil {
		log.Error("Error reading WebSocket message from %s: %v", peerID, err)
	}
	log.Info("Peer %s disconnected", peerID)
}

// Dial connects to a host as localID. The returned connection is keyed by the
// host's peer id and must be run with Serve.
func Dial(ctx context.Context, rawURL string, localID string) (*Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host url: %v", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = WSPath
	}
	q := u.Query()
	q.Set(PeerQueryParam, localID)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial host: %v", err)
	}
	hostID := resp.Header.Get(PeerHeader)
	if hostID == "" {
		conn.Close(websocket.StatusProtocolError, "missing host peer id")
		return nil, fmt.Errorf("host did not send %s", PeerHeader)
	}

	return newConnection(hostID, conn), nil
}
