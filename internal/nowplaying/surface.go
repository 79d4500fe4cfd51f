package nowplaying

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/platform"
	"github.com/desertthunder/pulse/internal/shared"
)

const writeTimeout = 5 * time.Second

// Frame is the websocket message exchanged with now-playing clients.
//
// The server sends "metadata" and "state" frames; clients send "action" frames.
type Frame struct {
	Type     string             `json:"type"`
	Metadata *platform.Metadata `json:"metadata,omitempty"`
	Playing  *bool              `json:"playing,omitempty"`
	Action   platform.Action    `json:"action,omitempty"`
}

// WSSurface is a [platform.NowPlayingSurface] served to websocket clients such as a remote
// control page or a desktop widget.
type WSSurface struct {
	logger *log.Logger

	mu       sync.Mutex
	metadata *platform.Metadata
	playing  bool
	handlers map[platform.Action]func()
	clients  map[*websocket.Conn]struct{}
}

// NewWSSurface creates a surface with no clients.
func NewWSSurface(logger *log.Logger) *WSSurface {
	return &WSSurface{
		logger:   shared.WithLogger(logger, "component", "surface"),
		handlers: make(map[platform.Action]func()),
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

func (s *WSSurface) SetMetadata(m platform.Metadata) error {
	s.mu.Lock()
	s.metadata = &m
	s.mu.Unlock()

	s.broadcast(Frame{Type: "metadata", Metadata: &m})
	return nil
}

func (s *WSSurface) SetPlaybackState(playing bool) error {
	s.mu.Lock()
	s.playing = playing
	s.mu.Unlock()

	s.broadcast(Frame{Type: "state", Playing: &playing})
	return nil
}

func (s *WSSurface) SetActionHandler(action platform.Action, handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handler == nil {
		delete(s.handlers, action)
		return
	}
	s.handlers[action] = handler
}

// Clients returns the number of connected clients.
func (s *WSSurface) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP upgrades the request, sends the current metadata and state, then runs client actions
// until the connection closes.
func (s *WSSurface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	metadata, playing := s.metadata, s.playing
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	if metadata != nil {
		if err := s.send(ctx, conn, Frame{Type: "metadata", Metadata: metadata}); err != nil {
			return
		}
		if err := s.send(ctx, conn, Frame{Type: "state", Playing: &playing}); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.logger.Debug("surface client gone", "error", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type != "action" {
			s.logger.Debug("ignoring surface frame", "data", string(data))
			continue
		}

		s.mu.Lock()
		handler := s.handlers[f.Action]
		s.mu.Unlock()

		if handler == nil {
			s.logger.Debug("no handler for action", "action", f.Action)
			continue
		}
		handler()
	}
}

func (s *WSSurface) send(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *WSSurface) broadcast(f Frame) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := s.send(context.Background(), conn, f); err != nil {
			s.logger.Debug("failed to reach surface client", "error", err)
		}
	}
}
