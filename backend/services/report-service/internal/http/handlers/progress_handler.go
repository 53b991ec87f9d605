package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/progress"
)

const (
	progressWriteTimeout = 10 * time.Second
	progressPongWait     = 60 * time.Second
	progressPingPeriod   = 30 * time.Second
)

// Subscriber hands out progress streams per export id.
type Subscriber interface {
	Subscribe(exportID string) (<-chan progress.Event, func())
}

// ProgressHandler streams export progress over a websocket.
type ProgressHandler struct {
	hub      Subscriber
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewProgressHandler builds handler. checkOrigin may be nil to accept any origin.
func NewProgressHandler(hub Subscriber, checkOrigin func(r *http.Request) bool, logger *zap.Logger) *ProgressHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &ProgressHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Stream handles GET /api/exports/progress.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	exportID := r.URL.Query().Get("export_id")
	if exportID == "" {
		writeAppError(w, apperr.InvalidRequest("export_id is required"))
		return
	}

	// Subscribe before upgrading so no event published after the handshake is missed.
	events, cancel := h.hub.Subscribe(exportID)
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("export_id", exportID))
	logger.Debug("progress subscriber connected")

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ticker := time.NewTicker(progressPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("progress subscriber left")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("progress write failed", zap.Error(err))
				return
			}
			if ev.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ev.Stage),
					time.Now().Add(progressWriteTimeout))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(progressWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so pongs and close frames are processed.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(progressPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(progressPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
