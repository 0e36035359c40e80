package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/park285/anonchat-go/internal/anonchat/config"
	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client 는 연결된 웹소켓 하나를 감싼다. 쓰기는 전부 send 채널을 거친다.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	logger *slog.Logger

	send     chan []byte
	stop     chan struct{}
	stopOnce sync.Once

	maxRetry   int
	retryDelay time.Duration
	ackTimeout time.Duration

	ackMu sync.Mutex
	acks  map[string]chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, logger *slog.Logger) *Client {
	c := &Client{
		hub:        hub,
		conn:       conn,
		userID:     userID,
		logger:     logger.With("user_id", userID),
		send:       make(chan []byte, sendBuffer),
		stop:       make(chan struct{}),
		maxRetry:   config.SignalMaxRetry,
		retryDelay: config.SignalRetryDelayMS * time.Millisecond,
		ackTimeout: config.SignalAckTimeoutMS * time.Millisecond,
		acks:       make(map[string]chan struct{}),
	}
	if hub != nil {
		if hub.sig.MaxRetry > 0 {
			c.maxRetry = hub.sig.MaxRetry
		}
		if hub.sig.RetryDelay > 0 {
			c.retryDelay = hub.sig.RetryDelay
		}
		if hub.sig.AckTimeout > 0 {
			c.ackTimeout = hub.sig.AckTimeout
		}
	}
	return c
}

// UserID 는 이 소켓의 사용자 ID다.
func (c *Client) UserID() string { return c.userID }

// enqueue 는 프레임을 쓰기 큐에 넣는다. 큐가 가득 차면 버린다.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.stop:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn("send_queue_full", "dropped_bytes", len(payload))
		return false
	}
}

// Send 는 서버 프레임을 직렬화해 쓰기 큐에 넣는다.
func (c *Client) Send(msg protocol.ServerMessage) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error("frame_encode_failed", "type", msg.Type, "error", err)
		return
	}
	c.enqueue(payload)
}

// errDeliveryAbandoned 는 재전송 도중 프레임이 더 이상 필요 없어졌음을 알린다.
// 전달 실패가 아니므로 방 해체로 이어지면 안 된다.
var errDeliveryAbandoned = errors.New("reliable delivery abandoned")

// SendReliable 은 ACK가 올 때까지 프레임을 재전송한다.
// 오퍼/앤서처럼 유실되면 통화가 성립하지 않는 프레임에만 쓴다.
// alive가 주어지면 매 타임아웃마다 호출해 false가 되는 순간 재전송을 포기한다.
func (c *Client) SendReliable(ctx context.Context, msg protocol.ServerMessage, alive func(context.Context) bool) error {
	for attempt := 1; attempt <= c.maxRetry; attempt++ {
		ackID := uuid.NewString()
		msg.AckID = ackID
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		ackCh := c.registerAck(ackID)
		c.enqueue(payload)

		timer := time.NewTimer(c.ackTimeout)
		select {
		case <-ackCh:
			timer.Stop()
			return nil
		case <-timer.C:
			c.dropAck(ackID)
			if alive != nil && !alive(ctx) {
				c.logger.Debug("reliable_send_abandoned",
					"type", msg.Type, "room_id", msg.RoomID, "attempt", attempt)
				return errDeliveryAbandoned
			}
		case <-c.stop:
			timer.Stop()
			c.dropAck(ackID)
			return acerrors.DeliveryFailedError{RoomID: msg.RoomID, Event: msg.Type}
		case <-ctx.Done():
			timer.Stop()
			c.dropAck(ackID)
			return ctx.Err()
		}

		if attempt < c.maxRetry {
			c.logger.Debug("reliable_send_retry",
				"type", msg.Type, "room_id", msg.RoomID, "attempt", attempt)
			select {
			case <-time.After(c.retryDelay):
			case <-c.stop:
				return acerrors.DeliveryFailedError{RoomID: msg.RoomID, Event: msg.Type}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return acerrors.DeliveryFailedError{RoomID: msg.RoomID, Event: msg.Type}
}

func (c *Client) registerAck(ackID string) chan struct{} {
	ch := make(chan struct{})
	c.ackMu.Lock()
	c.acks[ackID] = ch
	c.ackMu.Unlock()
	return ch
}

func (c *Client) dropAck(ackID string) {
	c.ackMu.Lock()
	delete(c.acks, ackID)
	c.ackMu.Unlock()
}

// resolveAck 는 클라이언트가 보낸 ACK를 대기 중인 전송에 연결한다.
func (c *Client) resolveAck(ackID string) {
	c.ackMu.Lock()
	ch, ok := c.acks[ackID]
	if ok {
		delete(c.acks, ackID)
	}
	c.ackMu.Unlock()
	if ok {
		close(ch)
	}
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// writePump 는 쓰기 큐를 소켓으로 내보내고 주기적으로 핑을 보낸다.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write_failed", "error", err)
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 는 프레임을 읽어 핸들러로 넘긴다. 읽기 오류가 나면 연결을 정리한다.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.stopClient()
		c.conn.Close()
		c.hub.disconnect(ctx, c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("read_failed", "error", err)
			}
			return
		}
		c.hub.handler.Handle(ctx, c, raw)
	}
}
