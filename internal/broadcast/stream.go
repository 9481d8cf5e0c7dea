package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Stream forwards the events of one competition topic to a websocket client.
type Stream struct {
	subscriber message.Subscriber
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewStream(subscriber message.Subscriber, checkOrigin func(r *http.Request) bool, logger *slog.Logger) *Stream {
	return &Stream{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Serve upgrades the request and blocks until the client goes away.
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request, competitionID uuid.UUID) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Warn("Failed to upgrade connection", "competition_id", competitionID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := s.subscriber.Subscribe(ctx, Topic(competitionID))
	if err != nil {
		s.logger.Error("Failed to subscribe to competition topic", "competition_id", competitionID, "error", err)
		return
	}

	go s.readPump(conn, cancel)
	s.writePump(ctx, conn, messages)
}

// readPump only keeps the connection alive; client messages are ignored.
func (s *Stream) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("Websocket closed unexpectedly", "error", err)
			}
			return
		}
	}
}

func (s *Stream) writePump(ctx context.Context, conn *websocket.Conn, messages <-chan *message.Message) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.TextMessage, msg.Payload)
			msg.Ack()
			if err != nil {
				s.logger.Warn("Failed to write event to websocket", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
