package bot

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/park285/anonchat-go/internal/anonchat/config"
	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

// 봇 방이 닫히는 사유.
const (
	ReasonLifetimeExpired = "bot_lifetime_expired"
	ReasonSwitchToHuman   = "switch_to_human"
	ReasonDisconnected    = "disconnected"
	ReasonTimeExpired     = "Time Expired"
)

// Sender 는 프레임을 사용자에게 전달한다.
type Sender interface {
	SendToUser(ctx context.Context, userID string, msg protocol.ServerMessage) error
}

// Bridge 는 봇 방의 수명과 메시지 왕복을 관리한다.
// 수명 타이머는 방을 만든 인스턴스의 메모리에만 존재한다.
type Bridge struct {
	rooms     *acredis.RoomStore
	responder Responder
	sender    Sender
	logger    *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewBridge 는 Bridge를 생성한다.
func NewBridge(rooms *acredis.RoomStore, responder Responder, sender Sender, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		rooms:     rooms,
		responder: responder,
		sender:    sender,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
	}
}

// CreateRoom 은 사용자와 봇의 1:1 방을 만들고 수명 타이머를 건다.
func (b *Bridge) CreateRoom(ctx context.Context, userID string, want model.MatchMode, preference model.Gender) (model.Room, error) {
	room := model.Room{
		ID:        uuid.NewString(),
		A:         userID,
		B:         IDForPreference(preference),
		Mode:      model.RoomModeBot,
		Want:      want,
		BotGender: preference,
	}
	ttl := time.Duration(config.BotRoomTTLSeconds) * time.Second
	if err := b.rooms.CreateBotRoom(ctx, room, ttl); err != nil {
		return model.Room{}, err
	}

	// 통화방은 클라이언트 타이머가 종료를 보내므로 수명 타이머는 채팅방에만 건다
	if want == model.ModeChat {
		b.startLifetime(room.ID, userID)
	}
	b.logger.Info("bot_room_created", "room_id", room.ID, "user_id", userID, "bot_id", room.B)
	return room, nil
}

// startLifetime 은 60~65초 랜덤 수명 타이머를 건다. 기존 타이머는 교체한다.
func (b *Bridge) startLifetime(roomID, userID string) {
	minMS := config.BotLifetimeMinSeconds * 1000
	maxMS := config.BotLifetimeMaxSeconds * 1000
	delay := time.Duration(minMS+rand.Intn(maxMS-minMS)) * time.Millisecond

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.timers[roomID]; ok {
		existing.Stop()
	}
	b.timers[roomID] = time.AfterFunc(delay, func() {
		if err := b.EndChat(context.Background(), roomID, userID, ReasonLifetimeExpired); err != nil {
			b.logger.Warn("bot_lifetime_end_failed", "room_id", roomID, "error", err)
		}
	})
}

// CancelLifetime 은 수명 타이머를 제거한다.
func (b *Bridge) CancelLifetime(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.timers[roomID]; ok {
		t.Stop()
		delete(b.timers, roomID)
	}
}

// TypingDelay 는 응답 길이에 비례한 타이핑 지연을 계산한다.
func TypingDelay(replyLen int) time.Duration {
	delay := config.BotTypingBaseMS + replyLen*config.BotTypingPerCharMS
	if delay < config.BotTypingMinMS {
		delay = config.BotTypingMinMS
	}
	if delay > config.BotTypingMaxMS {
		delay = config.BotTypingMaxMS
	}
	return time.Duration(delay) * time.Millisecond
}

// alive 는 방과 사용자 매핑이 아직 존재하는지 확인한다.
// 지연 구간마다 다시 확인하여 닫힌 방으로 응답이 새지 않게 한다.
func (b *Bridge) alive(ctx context.Context, roomID, userID string) bool {
	room, err := b.rooms.Get(ctx, roomID)
	if err != nil || room == nil {
		return false
	}
	_, ok, err := b.rooms.UserRoom(ctx, userID)
	return err == nil && ok
}

// HandleUserMessage 는 사용자 메시지를 히스토리에 기록하고 봇 응답을 비동기로 보낸다.
func (b *Bridge) HandleUserMessage(ctx context.Context, room model.Room, body string) error {
	userID := room.A
	botID := room.B

	userMsg := model.RoomMessage{From: userID, Body: body, Ts: time.Now().UnixMilli()}
	if err := b.rooms.AppendMessage(ctx, room.ID, userMsg); err != nil {
		return err
	}
	history, err := b.rooms.History(ctx, room.ID, config.BotHistoryWindow)
	if err != nil {
		return err
	}

	reply, err := b.responder.Reply(ctx, history, room.BotGender)
	if err != nil {
		var llmErr acerrors.LLMFailureError
		if !errors.As(err, &llmErr) {
			return err
		}
		b.logger.Warn("bot_reply_failed", "room_id", room.ID, "error", err)
		reply = FallbackReply
	}

	if !b.alive(ctx, room.ID, userID) {
		return nil
	}
	if err := b.sender.SendToUser(ctx, userID, protocol.ServerMessage{
		Type: protocol.TypeTyping, From: botID, State: true,
	}); err != nil {
		return err
	}

	delay := TypingDelay(len(reply))
	go b.deliverAfter(context.WithoutCancel(ctx), room.ID, userID, botID, reply, delay)
	return nil
}

// deliverAfter 는 타이핑 지연 후 응답을 전달하고 히스토리에 기록한다.
func (b *Bridge) deliverAfter(ctx context.Context, roomID, userID, botID, reply string, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if !b.alive(ctx, roomID, userID) {
		return
	}
	botMsg := model.RoomMessage{From: botID, Body: reply, Ts: time.Now().UnixMilli()}
	payload := protocol.ServerMessage{
		Type: protocol.TypeText, RoomID: roomID, From: botID, Body: reply, Ts: botMsg.Ts,
	}
	if err := b.sender.SendToUser(ctx, userID, payload); err != nil {
		b.logger.Warn("bot_reply_send_failed", "room_id", roomID, "error", err)
		return
	}
	if err := b.sender.SendToUser(ctx, userID, protocol.ServerMessage{
		Type: protocol.TypeTyping, From: botID, State: false,
	}); err != nil {
		b.logger.Warn("bot_typing_off_failed", "room_id", roomID, "error", err)
	}

	if !b.alive(ctx, roomID, userID) {
		return
	}
	if err := b.rooms.AppendMessage(ctx, roomID, botMsg); err != nil {
		b.logger.Warn("bot_reply_persist_failed", "room_id", roomID, "error", err)
	}
}

// EndChat 은 봇 채팅방을 정리한다.
// 연결 끊김으로 인한 종료는 이미 떠난 사용자에게 알리지 않는다.
func (b *Bridge) EndChat(ctx context.Context, roomID, userID, reason string) error {
	b.CancelLifetime(roomID)

	if err := b.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	if err := b.rooms.DeleteUserRoom(ctx, userID, roomID); err != nil {
		return err
	}

	if reason != ReasonDisconnected {
		return b.sender.SendToUser(ctx, userID, protocol.ServerMessage{
			Type: protocol.TypeBotChatEnd, RoomID: roomID, Reason: reason,
		})
	}
	return nil
}

// EndCall 은 봇 통화방을 정리한다.
func (b *Bridge) EndCall(ctx context.Context, roomID, userID, reason string) error {
	b.CancelLifetime(roomID)

	if err := b.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	if err := b.rooms.DeleteUserRoom(ctx, userID, roomID); err != nil {
		return err
	}

	if reason != ReasonDisconnected {
		return b.sender.SendToUser(ctx, userID, protocol.ServerMessage{
			Type: protocol.TypeBotCallEnded, RoomID: roomID, Reason: reason,
		})
	}
	return nil
}
