package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"booking-assistant-backend/internal/dispatch"
)

const writeTimeout = 10 * time.Second

// WSConfig controls the WebSocket endpoint.
type WSConfig struct {
	// OriginPatterns are the hosts allowed to open a connection besides the
	// server's own. Empty allows same-origin only.
	OriginPatterns  []string
	MaxMessageBytes int64
}

// wsTransport writes outbound messages as JSON text frames.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(ctx context.Context, msg dispatch.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// ServeWS handles GET /ws. Each frame the client sends is one inbound
// message; the connection lives until either side closes it.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.ws.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	if h.ws.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.ws.MaxMessageBytes)
	}

	ctx := c.Request.Context()
	client := h.registry.Connect(ctx, &wsTransport{conn: conn})
	defer client.Disconnect()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket closed", zap.String("conn", client.ID()))
			} else {
				h.logger.Info("websocket read failed", zap.String("conn", client.ID()), zap.Error(err))
			}
			return
		}
		client.Receive(data)
	}
}
