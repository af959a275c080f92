package interpreter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/conversation"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	maxFrameSize = 64 << 10

	// RootBanner 是根路径的存活文本。
	RootBanner = "Language Interpreter Backend is running"
)

// Handler WebSocket 会话处理器：一个连接对应一个会话。
type Handler struct {
	registry   *conversation.Registry
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
}

// New 创建 WebSocket 处理器
func New(registry *conversation.Registry, dispatcher *Dispatcher) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册路由。根路径既提供存活文本，也接受 WebSocket 升级。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.handleWebSocket(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RootBanner))
}

// handleWebSocket 处理 WebSocket 连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := h.registry.Open(ctx)
	defer h.registry.Close(context.WithoutCancel(ctx), session.ID())

	slog.Info("Client connected", "session", session.ID(), "remote", r.RemoteAddr)

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, conn)

	frames := h.readLoop(ctx, cancel, conn, session.ID())
	for payload := range frames {
		if ctx.Err() != nil {
			break
		}

		frame := h.dispatcher.Dispatch(ctx, session, payload)
		if frame == nil {
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			slog.Warn("Write frame failed", "session", session.ID(), "error", err)
			return
		}
	}

	slog.Info("Client disconnected", "session", session.ID())
}

// readLoop reads frames on its own goroutine so a disconnect cancels ctx
// while a gateway call is still outstanding. Frames are handed to the caller
// in arrival order; the channel closes once the connection is gone.
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID string) <-chan []byte {
	frames := make(chan []byte, 16)

	go func() {
		defer close(frames)
		defer cancel()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					slog.Info("WebSocket read error", "session", sessionID, "error", err)
				}
				return
			}

			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

			select {
			case frames <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames
}

// pingLoop 定期发送 ping 消息。ctx 结束时关闭连接，使阻塞中的读取返回。
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
