package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

const syncReadLimit = 8 << 20

// SyncHandler upgrades /sync requests and serves the store protocol on them.
//
// Each connection runs with the identity resolved by [Identity], so the store's access rules apply
// to remote callers exactly as they do locally.
type SyncHandler struct {
	local  *store.Local
	logger *log.Logger
}

// NewSyncHandler creates a handler serving local.
func NewSyncHandler(local *store.Local, logger *log.Logger) *SyncHandler {
	return &SyncHandler{local: local, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *SyncHandler) Routes() []string {
	return []string{"/sync"}
}

// ServeHTTP upgrades the request and blocks until the client disconnects.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("sync upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(syncReadLimit)

	admin := shared.IdentityFrom(r.Context()) != ""
	h.logger.Info("sync client connected", "remote", r.RemoteAddr, "admin", admin)

	if err := h.local.ServeConn(r.Context(), conn); err != nil {
		h.logger.Warn("sync connection ended", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("sync client disconnected", "remote", r.RemoteAddr)
}
