package redis

import (
	"context"
	"testing"
	"time"

	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/common/ptr"
	"github.com/park285/anonchat-go/internal/common/testhelper"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	_, client := testhelper.NewMiniredisClient(t)
	return NewSessionStore(client, testhelper.DiscardLogger(), 3*time.Minute)
}

func TestSessionStore_Touch_CreatesWithDefaults(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	sess, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{})
	if err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if sess.State != model.StateIdle {
		t.Errorf("state = %q, want %q", sess.State, model.StateIdle)
	}
	if sess.Want != model.ModeChat {
		t.Errorf("want = %q, want %q", sess.Want, model.ModeChat)
	}
	if sess.Instance != "inst-1" {
		t.Errorf("instance = %q, want inst-1", sess.Instance)
	}
	if sess.Ts == 0 {
		t.Error("ts not stamped")
	}
}

func TestSessionStore_Touch_MergesPatchOverExisting(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	_, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{
		Want:     ptr.Of(model.ModeCall),
		Username: ptr.String("앨리스"),
		State:    ptr.Of(model.StateWaiting),
	})
	if err != nil {
		t.Fatalf("initial touch failed: %v", err)
	}

	// 부분 패치는 다른 필드를 건드리지 않는다
	sess, err := store.Touch(ctx, "alice", "inst-2", model.SessionPatch{
		State: ptr.Of(model.StateInRoom),
	})
	if err != nil {
		t.Fatalf("second touch failed: %v", err)
	}
	if sess.Want != model.ModeCall {
		t.Errorf("want = %q, lost on merge", sess.Want)
	}
	if sess.Username != "앨리스" {
		t.Errorf("username = %q, lost on merge", sess.Username)
	}
	if sess.State != model.StateInRoom {
		t.Errorf("state = %q, want %q", sess.State, model.StateInRoom)
	}
	if sess.Instance != "inst-2" {
		t.Errorf("instance = %q, not restamped", sess.Instance)
	}
}

func TestSessionStore_Touch_RejectsInvalidTransition(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	if _, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{}); err != nil {
		t.Fatalf("initial touch failed: %v", err)
	}

	// IDLE에서 IN_ROOM으로 건너뛰는 패치는 상태만 거부되고 나머지는 반영된다
	sess, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{
		State:    ptr.Of(model.StateInRoom),
		Username: ptr.String("앨리스"),
	})
	if err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if sess.State != model.StateIdle {
		t.Errorf("state = %q, invalid transition was accepted", sess.State)
	}
	if sess.Username != "앨리스" {
		t.Errorf("username = %q, rest of patch should still apply", sess.Username)
	}

	// 허용된 경로를 거치면 같은 목적지에 도달한다
	if _, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{State: ptr.Of(model.StateWaiting)}); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	sess, err = store.Touch(ctx, "alice", "inst-1", model.SessionPatch{State: ptr.Of(model.StateInRoom)})
	if err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if sess.State != model.StateInRoom {
		t.Errorf("state = %q, want %q", sess.State, model.StateInRoom)
	}
}

func TestSessionStore_Touch_EmptyRoomIDClearsMapping(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	_, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{RoomID: ptr.String("room-1")})
	if err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	sess, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{RoomID: ptr.String("")})
	if err != nil {
		t.Fatalf("clearing touch failed: %v", err)
	}
	if sess.RoomID != "" {
		t.Errorf("roomId = %q, want cleared", sess.RoomID)
	}
}

func TestSessionStore_Touch_NormalizesInterests(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	sess, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{
		Interests: []string{" Music ", "GAMES", ""},
	})
	if err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if len(sess.Interests) != 3 {
		t.Fatalf("interests on session = %v", sess.Interests)
	}
}

func TestSessionStore_Get_MissingReturnsNil(t *testing.T) {
	store := newTestSessionStore(t)

	sess, err := store.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if sess != nil {
		t.Errorf("sess = %+v, want nil", sess)
	}
}

func TestSessionStore_Delete_RemovesSessionAndInterests(t *testing.T) {
	_, client := testhelper.NewMiniredisClient(t)
	store := NewSessionStore(client, testhelper.DiscardLogger(), 3*time.Minute)
	ctx := context.Background()

	if _, err := store.Touch(ctx, "alice", "inst-1", model.SessionPatch{Interests: []string{"music"}}); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	sess, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if sess != nil {
		t.Error("session survived delete")
	}
}

func TestSessionStore_CountOnline_SkipsInterestKeys(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob", "carol"} {
		if _, err := store.Touch(ctx, id, "inst-1", model.SessionPatch{Interests: []string{"music"}}); err != nil {
			t.Fatalf("touch %s failed: %v", id, err)
		}
	}

	count, err := store.CountOnline(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
