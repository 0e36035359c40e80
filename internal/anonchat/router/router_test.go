package router

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

type fakeLocal struct {
	sockets  map[string]bool
	payloads map[string][][]byte
}

func newFakeLocal(users ...string) *fakeLocal {
	f := &fakeLocal{sockets: make(map[string]bool), payloads: make(map[string][][]byte)}
	for _, u := range users {
		f.sockets[u] = true
	}
	return f
}

func (f *fakeLocal) DeliverLocal(userID string, payload []byte) bool {
	if !f.sockets[userID] {
		return false
	}
	f.payloads[userID] = append(f.payloads[userID], payload)
	return true
}

type fakePublisher struct {
	channels []string
	frames   [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	f.channels = append(f.channels, channel)
	f.frames = append(f.frames, payload)
	return nil
}

func newTestRouter(t *testing.T, instanceID string, local LocalDeliverer, pub Publisher) (*Router, *acredis.PresenceStore, *miniredis.Miniredis) {
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
	presence := acredis.NewPresenceStore(client, logger)
	return New(instanceID, presence, pub, local, logger), presence, mr
}

func TestRouter_SendToUser_LocalDelivery(t *testing.T) {
	local := newFakeLocal("alice")
	pub := &fakePublisher{}
	router, presence, _ := newTestRouter(t, "inst-1", local, pub)
	ctx := context.Background()

	if err := presence.Register(ctx, "alice", "inst-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := router.SendToUser(ctx, "alice", protocol.ServerMessage{Type: protocol.TypeWaiting}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if len(local.payloads["alice"]) != 1 {
		t.Fatalf("expected 1 local delivery, got %d", len(local.payloads["alice"]))
	}
	if len(pub.frames) != 0 {
		t.Fatal("local delivery must not publish")
	}
}

func TestRouter_SendToUser_RemoteInstancePublishes(t *testing.T) {
	local := newFakeLocal()
	pub := &fakePublisher{}
	router, presence, _ := newTestRouter(t, "inst-1", local, pub)
	ctx := context.Background()

	if err := presence.Register(ctx, "alice", "inst-2"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := router.SendToUser(ctx, "alice", protocol.ServerMessage{Type: protocol.TypeText, Body: "hi"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if len(pub.channels) != 1 || pub.channels[0] != "instance:inst-2" {
		t.Fatalf("expected publish to instance:inst-2, got %v", pub.channels)
	}
	var frame protocol.RelayFrame
	if err := json.Unmarshal(pub.frames[0], &frame); err != nil {
		t.Fatalf("decode relay frame failed: %v", err)
	}
	if frame.UserID != "alice" {
		t.Fatalf("expected relay target alice, got %q", frame.UserID)
	}
}

func TestRouter_SendToUser_StaleMappingRemoved(t *testing.T) {
	local := newFakeLocal() // 로컬 소켓 없음
	pub := &fakePublisher{}
	router, presence, mr := newTestRouter(t, "inst-1", local, pub)
	ctx := context.Background()

	if err := presence.Register(ctx, "alice", "inst-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := router.SendToUser(ctx, "alice", protocol.ServerMessage{Type: protocol.TypeWaiting}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if mr.HGet("connections", "alice") != "" {
		t.Fatal("stale mapping should be removed")
	}
}

func TestRouter_SendToUser_NoMappingFallsBackToLocal(t *testing.T) {
	local := newFakeLocal("alice")
	pub := &fakePublisher{}
	router, _, _ := newTestRouter(t, "inst-1", local, pub)

	if err := router.SendToUser(context.Background(), "alice", protocol.ServerMessage{Type: protocol.TypeWaiting}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(local.payloads["alice"]) != 1 {
		t.Fatal("expected local fallback delivery for unmapped user")
	}
}

func TestRouter_HandleRelayFrame_DeliversAndCleansStale(t *testing.T) {
	local := newFakeLocal("alice")
	pub := &fakePublisher{}
	router, presence, mr := newTestRouter(t, "inst-1", local, pub)
	ctx := context.Background()

	payload, _ := protocol.Encode(protocol.ServerMessage{Type: protocol.TypeText, Body: "hello"})
	frame, _ := json.Marshal(protocol.RelayFrame{UserID: "alice", Payload: payload})
	router.HandleRelayFrame(ctx, frame)
	if len(local.payloads["alice"]) != 1 {
		t.Fatal("expected relayed frame delivered locally")
	}

	// 소켓이 없는 사용자의 프레임은 매핑 정리로 이어진다
	if err := presence.Register(ctx, "bob", "inst-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	frame, _ = json.Marshal(protocol.RelayFrame{UserID: "bob", Payload: payload})
	router.HandleRelayFrame(ctx, frame)
	if mr.HGet("connections", "bob") != "" {
		t.Fatal("expected stale mapping removed after failed relay delivery")
	}
}
