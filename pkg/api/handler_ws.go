package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/taskweave/taskweave/pkg/events"
)

// wsHandler handles GET /ws/:client_id.
// Upgrades the connection, registers it with the ConnectionManager and
// runs the read loop until the client disconnects. A second connection
// with the same client_id replaces the first.
func (s *Server) wsHandler(c *echo.Context) error {
	clientID := c.Param("client_id")
	if clientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}
	if s.connManager == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "push channel not available")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// TODO: replace with an origin allowlist from server config.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	subn := s.connManager.Accept(ctx, clientID, &wsSink{conn: conn})
	s.logger.Info("WebSocket client connected", "client_id", clientID)

	s.readLoop(ctx, conn, subn)
	return nil
}

// readLoop consumes client messages until the connection closes. Only
// ping and subscribe are recognized; anything else is ignored. Disconnecting
// through the subscription handle keeps a replaced connection's read loop
// from tearing down its replacement.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, subn *events.Subscription) {
	clientID := subn.ClientID()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.connManager.DisconnectSubscription(subn, events.ReasonClient)
			return
		}
		s.connManager.MarkSeen(clientID)

		var msg events.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case events.ClientMessageTypePing:
			pong := events.NewFrame(events.FrameTypePong, "", nil)
			s.connManager.Send(clientID, pong)
		case events.ClientMessageTypeSubscribe:
			s.connManager.SetTaskFilter(clientID, msg.TaskID)
		}
	}
}
