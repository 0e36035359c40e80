package bot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"

	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

type fakeResponder struct {
	reply string
	err   error
}

func (f *fakeResponder) Reply(context.Context, []model.RoomMessage, model.Gender) (string, error) {
	return f.reply, f.err
}

type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.ServerMessage
}

func (r *recordingSender) SendToUser(_ context.Context, _ string, msg protocol.ServerMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) messages() []protocol.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.ServerMessage, len(r.sent))
	copy(out, r.sent)
	return out
}

func newTestBridge(t *testing.T, responder Responder) (*Bridge, *recordingSender, *acredis.RoomStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{mr.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	if err != nil {
		t.Fatalf("failed to create valkey client: %v", err)
	}
	t.Cleanup(client.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rooms := acredis.NewRoomStore(client, logger)
	sender := &recordingSender{}
	return NewBridge(rooms, responder, sender, logger), sender, rooms, mr
}

func TestTypingDelay_Clamped(t *testing.T) {
	cases := []struct {
		chars int
		want  time.Duration
	}{
		{0, 1000 * time.Millisecond},    // 300ms 계산값은 하한으로 올림
		{10, 1000 * time.Millisecond},   // 700ms 계산값도 하한 적용
		{50, 2300 * time.Millisecond},   // 300 + 50*40
		{1000, 6000 * time.Millisecond}, // 상한으로 자름
	}
	for _, tc := range cases {
		if got := TypingDelay(tc.chars); got != tc.want {
			t.Errorf("TypingDelay(%d) = %v, want %v", tc.chars, got, tc.want)
		}
	}
}

func TestIDForPreference(t *testing.T) {
	if got := IDForPreference(model.GenderMale); got != "bot:male_1" {
		t.Fatalf("male preference: got %s", got)
	}
	if got := IDForPreference(model.GenderFemale); got != "bot:female_1" {
		t.Fatalf("female preference: got %s", got)
	}
	if got := IDForPreference(model.GenderAny); got != "bot:neutral_1" {
		t.Fatalf("any preference: got %s", got)
	}
	if !IsBotID("bot:neutral_1") || IsBotID("alice") {
		t.Fatal("IsBotID mismatch")
	}
}

func TestBridge_CreateRoom(t *testing.T) {
	bridge, _, rooms, _ := newTestBridge(t, &fakeResponder{reply: "haan yaar"})
	ctx := context.Background()

	room, err := bridge.CreateRoom(ctx, "alice", model.ModeChat, model.GenderFemale)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	defer bridge.CancelLifetime(room.ID)

	if room.B != "bot:female_1" || room.Mode != model.RoomModeBot {
		t.Fatalf("unexpected room: %+v", room)
	}
	stored, err := rooms.Get(ctx, room.ID)
	if err != nil || stored == nil {
		t.Fatalf("room not persisted: %v err=%v", stored, err)
	}
	roomID, ok, err := rooms.UserRoom(ctx, "alice")
	if err != nil || !ok || roomID != room.ID {
		t.Fatalf("user_room mapping wrong: %s ok=%v err=%v", roomID, ok, err)
	}
}

func TestBridge_HandleUserMessage_RepliesAfterTyping(t *testing.T) {
	bridge, sender, rooms, _ := newTestBridge(t, &fakeResponder{reply: "ok"})
	ctx := context.Background()

	room, err := bridge.CreateRoom(ctx, "alice", model.ModeChat, model.GenderAny)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	defer bridge.CancelLifetime(room.ID)

	if err := bridge.HandleUserMessage(ctx, room, "hi"); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	// 타이핑 표시는 즉시, 본문은 지연 후 도착한다
	msgs := sender.messages()
	if len(msgs) != 1 || msgs[0].Type != protocol.TypeTyping || !msgs[0].State {
		t.Fatalf("expected immediate typing-on frame, got %+v", msgs)
	}

	deadline := time.After(3 * time.Second)
	for {
		msgs = sender.messages()
		if len(msgs) >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("bot reply not delivered, frames: %+v", msgs)
		case <-time.After(50 * time.Millisecond):
		}
	}
	if msgs[1].Type != protocol.TypeText || msgs[1].Body != "ok" {
		t.Fatalf("expected bot text frame, got %+v", msgs[1])
	}
	if msgs[2].Type != protocol.TypeTyping || msgs[2].State {
		t.Fatalf("expected typing-off frame, got %+v", msgs[2])
	}

	history, err := rooms.History(ctx, room.ID, 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 || history[0].From != "alice" || history[1].From != room.B {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestBridge_HandleUserMessage_FallbackOnLLMFailure(t *testing.T) {
	responder := &fakeResponder{err: acerrors.LLMFailureError{Err: context.DeadlineExceeded}}
	bridge, sender, _, _ := newTestBridge(t, responder)
	ctx := context.Background()

	room, err := bridge.CreateRoom(ctx, "alice", model.ModeChat, model.GenderAny)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	defer bridge.CancelLifetime(room.ID)

	if err := bridge.HandleUserMessage(ctx, room, "hi"); err != nil {
		t.Fatalf("handle message should fall back, got %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		msgs := sender.messages()
		if len(msgs) >= 2 && msgs[1].Type == protocol.TypeText {
			if msgs[1].Body != FallbackReply {
				t.Fatalf("expected fallback reply, got %q", msgs[1].Body)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("fallback reply not delivered")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestBridge_DeliverAborted_WhenRoomClosed(t *testing.T) {
	bridge, sender, _, _ := newTestBridge(t, &fakeResponder{reply: "ok"})
	ctx := context.Background()

	room, err := bridge.CreateRoom(ctx, "alice", model.ModeChat, model.GenderAny)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}

	if err := bridge.HandleUserMessage(ctx, room, "hi"); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}
	// 지연 구간 동안 방을 닫으면 응답이 전달되지 않아야 한다
	if err := bridge.EndChat(ctx, room.ID, "alice", ReasonSwitchToHuman); err != nil {
		t.Fatalf("end chat failed: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)
	for _, msg := range sender.messages() {
		if msg.Type == protocol.TypeText {
			t.Fatalf("reply must not be sent to a closed room: %+v", msg)
		}
	}
}

func TestBridge_EndChat_NotifiesUnlessDisconnected(t *testing.T) {
	bridge, sender, rooms, _ := newTestBridge(t, &fakeResponder{reply: "ok"})
	ctx := context.Background()

	room, err := bridge.CreateRoom(ctx, "alice", model.ModeChat, model.GenderAny)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	if err := bridge.EndChat(ctx, room.ID, "alice", ReasonLifetimeExpired); err != nil {
		t.Fatalf("end chat failed: %v", err)
	}

	msgs := sender.messages()
	last := msgs[len(msgs)-1]
	if last.Type != protocol.TypeBotChatEnd || last.Reason != ReasonLifetimeExpired {
		t.Fatalf("expected end notification, got %+v", last)
	}
	if stored, _ := rooms.Get(ctx, room.ID); stored != nil {
		t.Fatal("room should be deleted")
	}

	// 연결 끊김 종료는 알림이 없다
	room2, err := bridge.CreateRoom(ctx, "bob", model.ModeChat, model.GenderAny)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	before := len(sender.messages())
	if err := bridge.EndChat(ctx, room2.ID, "bob", ReasonDisconnected); err != nil {
		t.Fatalf("end chat failed: %v", err)
	}
	if len(sender.messages()) != before {
		t.Fatal("disconnected teardown must not notify the user")
	}
}
