package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"

	"github.com/park285/anonchat-go/internal/anonchat/bot"
	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/match"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

type fakeResponder struct {
	reply string
}

func (f *fakeResponder) Reply(context.Context, []model.RoomMessage, model.Gender) (string, error) {
	return f.reply, nil
}

// recordingSender 는 사용자별로 전송된 프레임을 기록한다.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][]protocol.ServerMessage
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: make(map[string][]protocol.ServerMessage)}
}

func (r *recordingSender) SendToUser(_ context.Context, userID string, msg protocol.ServerMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[userID] = append(r.frames[userID], msg)
	return nil
}

func (r *recordingSender) framesFor(userID string) []protocol.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.ServerMessage, len(r.frames[userID]))
	copy(out, r.frames[userID])
	return out
}

func (r *recordingSender) lastOfType(userID, msgType string) (protocol.ServerMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames[userID]) - 1; i >= 0; i-- {
		if r.frames[userID][i].Type == msgType {
			return r.frames[userID][i], true
		}
	}
	return protocol.ServerMessage{}, false
}

type fixture struct {
	mr       *miniredis.Miniredis
	sessions *acredis.SessionStore
	rooms    *acredis.RoomStore
	presence *acredis.PresenceStore
	reports  *acredis.ReportStore
	sender   *recordingSender
	roomSvc  *RoomService
	matchSvc *MatchService
	report   *ReportService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureCooldown(t, 10*time.Millisecond)
}

func newFixtureCooldown(t *testing.T, cooldownDelay time.Duration) *fixture {
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
	sessions := acredis.NewSessionStore(client, logger, 3*time.Minute)
	rooms := acredis.NewRoomStore(client, logger)
	queues := acredis.NewQueueStore(client, logger, 3*time.Minute)
	matches := acredis.NewMatchStore(client, logger)
	presence := acredis.NewPresenceStore(client, logger)
	reports := acredis.NewReportStore(client, logger, 3, 1)
	lock := acredis.NewActionLock(client, logger, 5*time.Second)
	engine := match.NewEngine(matches, queues, logger, 50)

	sender := newRecordingSender()
	bridge := bot.NewBridge(rooms, &fakeResponder{reply: "haan"}, sender, logger)

	roomSvc := NewRoomService("inst-test", sessions, rooms, engine, presence, bridge, sender, logger)
	matchSvc := NewMatchService("inst-test", sessions, rooms, engine, reports, lock, presence, bridge, sender, logger, cooldownDelay)
	reportSvc := NewReportService(rooms, reports, sender, logger)

	return &fixture{
		mr:       mr,
		sessions: sessions,
		rooms:    rooms,
		presence: presence,
		reports:  reports,
		sender:   sender,
		roomSvc:  roomSvc,
		matchSvc: matchSvc,
		report:   reportSvc,
	}
}

func (f *fixture) seedHumanRoom(t *testing.T, ctx context.Context, roomID, a, b string, want model.MatchMode) {
	t.Helper()
	f.mr.HSet("room:"+roomID, "a", a, "b", b, "mode", "human", "want", string(want))
	if err := f.rooms.SetUserRoom(ctx, a, roomID); err != nil {
		t.Fatalf("failed to map user %s: %v", a, err)
	}
	if err := f.rooms.SetUserRoom(ctx, b, roomID); err != nil {
		t.Fatalf("failed to map user %s: %v", b, err)
	}
}

func (f *fixture) seedSession(t *testing.T, ctx context.Context, userID string, sess model.Session) {
	t.Helper()
	// 전이 테이블 때문에 IN_ROOM은 쿨다운을 거쳐 기록한다
	if sess.State == model.StateInRoom {
		cool := model.StateCooldown
		if _, err := f.sessions.Touch(ctx, userID, "inst-test", model.SessionPatch{State: &cool}); err != nil {
			t.Fatalf("failed to seed session %s: %v", userID, err)
		}
	}
	_, err := f.sessions.Touch(ctx, userID, "inst-test", model.SessionPatch{
		Want:       &sess.Want,
		Gender:     &sess.Gender,
		Preference: &sess.Preference,
		Username:   &sess.Username,
		State:      &sess.State,
	})
	if err != nil {
		t.Fatalf("failed to seed session %s: %v", userID, err)
	}
}

func joinReq(userID string) JoinRequest {
	return JoinRequest{
		UserID:     userID,
		Want:       model.ModeChat,
		Gender:     model.GenderAny,
		Preference: model.GenderAny,
		Username:   userID + "-name",
	}
}

func TestMatchService_JoinPairsTwoUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.matchSvc.Join(ctx, joinReq("alice")); err != nil {
		t.Fatalf("alice join failed: %v", err)
	}
	if _, ok := f.sender.lastOfType("alice", protocol.TypeWaiting); !ok {
		t.Fatalf("alice did not receive waiting frame: %v", f.sender.framesFor("alice"))
	}

	if err := f.matchSvc.Join(ctx, joinReq("bob")); err != nil {
		t.Fatalf("bob join failed: %v", err)
	}

	bobFrame, ok := f.sender.lastOfType("bob", protocol.TypeMatched)
	if !ok {
		t.Fatalf("bob did not receive matched frame: %v", f.sender.framesFor("bob"))
	}
	if bobFrame.PartnerID != "alice" || bobFrame.PartnerUserName != "alice-name" {
		t.Fatalf("unexpected matched frame for bob: %+v", bobFrame)
	}
	aliceFrame, ok := f.sender.lastOfType("alice", protocol.TypeMatched)
	if !ok {
		t.Fatalf("alice did not receive matched frame")
	}
	if aliceFrame.PartnerID != "bob" || aliceFrame.RoomID != bobFrame.RoomID {
		t.Fatalf("unexpected matched frame for alice: %+v", aliceFrame)
	}

	for _, userID := range []string{"alice", "bob"} {
		sess, err := f.sessions.Get(ctx, userID)
		if err != nil || sess == nil {
			t.Fatalf("missing session for %s: %v", userID, err)
		}
		if sess.State != model.StateInRoom || sess.RoomID != bobFrame.RoomID {
			t.Fatalf("unexpected session for %s: %+v", userID, sess)
		}
		roomID, ok, err := f.rooms.UserRoom(ctx, userID)
		if err != nil || !ok || roomID != bobFrame.RoomID {
			t.Fatalf("unexpected user_room for %s: %s %v %v", userID, roomID, ok, err)
		}
	}
}

func TestMatchService_Join_AssignsCallRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reqA := joinReq("alice")
	reqA.Want = model.ModeCall
	reqB := joinReq("bob")
	reqB.Want = model.ModeCall

	if err := f.matchSvc.Join(ctx, reqA); err != nil {
		t.Fatalf("alice join failed: %v", err)
	}
	if err := f.matchSvc.Join(ctx, reqB); err != nil {
		t.Fatalf("bob join failed: %v", err)
	}

	aliceFrame, _ := f.sender.lastOfType("alice", protocol.TypeMatched)
	bobFrame, _ := f.sender.lastOfType("bob", protocol.TypeMatched)
	roles := map[string]bool{aliceFrame.Role: true, bobFrame.Role: true}
	if !roles["caller"] || !roles["callee"] {
		t.Fatalf("expected one caller and one callee, got %q and %q", aliceFrame.Role, bobFrame.Role)
	}

	room, err := f.rooms.Get(ctx, aliceFrame.RoomID)
	if err != nil || room == nil {
		t.Fatalf("room missing: %v", err)
	}
	if room.Caller == "" || room.Callee == "" || room.Caller == room.Callee {
		t.Fatalf("call roles not persisted: %+v", room)
	}
}

func TestMatchService_Join_RejectedWhileWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.matchSvc.Join(ctx, joinReq("alice")); err != nil {
		t.Fatalf("first join failed: %v", err)
	}

	err := f.matchSvc.Join(ctx, joinReq("alice"))
	if !errors.As(err, new(acerrors.AlreadyWaitingError)) {
		t.Fatalf("expected AlreadyWaitingError, got %v", err)
	}
}

func TestMatchService_Join_StaleCooldownCancels(t *testing.T) {
	f := newFixtureCooldown(t, 200*time.Millisecond)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- f.matchSvc.Join(ctx, joinReq("alice"))
	}()

	// 쿨다운 상태가 기록될 때까지 기다린 뒤 다른 경로가 세션을 가로챈 상황을 재현한다
	deadline := time.Now().Add(time.Second)
	for {
		sess, err := f.sessions.Get(ctx, "alice")
		if err != nil {
			t.Fatalf("get session failed: %v", err)
		}
		if sess != nil && sess.State == model.StateCooldown {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never entered cooldown")
		}
		time.Sleep(5 * time.Millisecond)
	}

	idle := model.StateIdle
	if _, err := f.sessions.Touch(ctx, "alice", "inst-other", model.SessionPatch{State: &idle}); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("join returned error: %v", err)
	}

	if f.mr.Exists("wait_key:alice") {
		t.Fatal("stale cooldown should not enqueue")
	}
	sess, err := f.sessions.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if sess == nil || sess.State != model.StateIdle {
		t.Fatalf("expected session to stay idle, got %+v", sess)
	}
}

func TestMatchService_Join_BannedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mr.Set("ban:alice", "1")
	f.mr.SetTTL("ban:alice", time.Hour)

	err := f.matchSvc.Join(ctx, joinReq("alice"))
	var banned acerrors.BannedError
	if !errors.As(err, &banned) {
		t.Fatalf("expected BannedError, got %v", err)
	}
	if banned.RetryAfter <= 0 {
		t.Fatalf("expected positive retry after, got %v", banned.RetryAfter)
	}
}

func TestMatchService_Retry_FallsBackToBot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.matchSvc.Retry(ctx, joinReq("alice")); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	frame, ok := f.sender.lastOfType("alice", protocol.TypeMatchedBot)
	if !ok {
		t.Fatalf("expected matched_bot frame, got %v", f.sender.framesFor("alice"))
	}
	if !bot.IsBotID(frame.PartnerID) {
		t.Fatalf("expected bot partner, got %q", frame.PartnerID)
	}

	room, err := f.rooms.Get(ctx, frame.RoomID)
	if err != nil || room == nil {
		t.Fatalf("bot room missing: %v", err)
	}
	if !room.IsBot() {
		t.Fatalf("expected bot room, got %+v", room)
	}
}

func TestMatchService_Retry_KeepsExistingBotRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.matchSvc.Retry(ctx, joinReq("alice")); err != nil {
		t.Fatalf("first retry failed: %v", err)
	}
	first, _ := f.sender.lastOfType("alice", protocol.TypeMatchedBot)

	if err := f.matchSvc.Retry(ctx, joinReq("alice")); err != nil {
		t.Fatalf("second retry failed: %v", err)
	}

	frames := 0
	for _, msg := range f.sender.framesFor("alice") {
		if msg.Type == protocol.TypeMatchedBot {
			frames++
		}
	}
	if frames != 1 {
		t.Fatalf("expected a single matched_bot frame, got %d", frames)
	}
	roomID, ok, err := f.rooms.UserRoom(ctx, "alice")
	if err != nil || !ok || roomID != first.RoomID {
		t.Fatalf("bot room mapping changed: %s %v %v", roomID, ok, err)
	}
}

func TestMatchService_StartBotChat_ReturnsExistingRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.matchSvc.StartBotChat(ctx, "alice", model.GenderAny); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	created, _ := f.sender.lastOfType("alice", protocol.TypeMatchedBot)

	if err := f.matchSvc.StartBotChat(ctx, "alice", model.GenderAny); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	exist, ok := f.sender.lastOfType("alice", protocol.TypeRoomExist)
	if !ok {
		t.Fatalf("expected room_exist frame, got %v", f.sender.framesFor("alice"))
	}
	if exist.RoomID != created.RoomID || exist.PartnerID != created.PartnerID {
		t.Fatalf("room_exist does not match created room: %+v vs %+v", exist, created)
	}
}

func TestMatchService_StartBotCall_TearsDownHumanRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeCall)

	if err := f.matchSvc.StartBotCall(ctx, "alice", model.GenderFemale); err != nil {
		t.Fatalf("start bot call failed: %v", err)
	}

	aliceFrame, ok := f.sender.lastOfType("alice", protocol.TypePartnerLeft)
	if !ok || aliceFrame.Reason != "switch_to_non_human" {
		t.Fatalf("unexpected frame for alice: %+v %v", aliceFrame, ok)
	}
	bobFrame, ok := f.sender.lastOfType("bob", protocol.TypePartnerLeft)
	if !ok || bobFrame.Reason != "partner_switched_to_non_human" {
		t.Fatalf("unexpected frame for bob: %+v %v", bobFrame, ok)
	}

	if room, err := f.rooms.Get(ctx, "room-1"); err != nil || room != nil {
		t.Fatalf("human room should be gone: %+v %v", room, err)
	}
	if _, ok, _ := f.rooms.UserRoom(ctx, "alice"); ok {
		t.Fatalf("alice mapping should be cleared before bot call is retried")
	}
}

func TestRoomService_Leave_NotifiesPartner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeChat)

	if err := f.roomSvc.Leave(ctx, "alice", "room-1", false); err != nil {
		t.Fatalf("leave failed: %v", err)
	}

	frame, ok := f.sender.lastOfType("bob", protocol.TypePartnerLeft)
	if !ok || frame.RoomID != "room-1" || frame.UserID != "alice" {
		t.Fatalf("unexpected partner_left: %+v %v", frame, ok)
	}
	if room, _ := f.rooms.Get(ctx, "room-1"); room != nil {
		t.Fatalf("room should be deleted")
	}
	for _, userID := range []string{"alice", "bob"} {
		if _, ok, _ := f.rooms.UserRoom(ctx, userID); ok {
			t.Fatalf("mapping for %s should be cleared", userID)
		}
	}
}

func TestRoomService_Leave_UnknownRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.roomSvc.Leave(ctx, "alice", "nope", false)
	if !errors.As(err, new(acerrors.RoomNotFoundError)) {
		t.Fatalf("expected RoomNotFoundError, got %v", err)
	}
}

func TestRoomService_HandleText_ForwardsAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeChat)

	msg := protocol.ClientMessage{Type: protocol.TypeText, RoomID: "room-1", From: "alice", Body: "hi", Seq: 7}
	if err := f.roomSvc.HandleText(ctx, "alice", msg); err != nil {
		t.Fatalf("handle text failed: %v", err)
	}

	text, ok := f.sender.lastOfType("bob", protocol.TypeText)
	if !ok || text.Body != "hi" || text.From != "alice" || text.Seq != 7 {
		t.Fatalf("unexpected text for bob: %+v %v", text, ok)
	}
	ack, ok := f.sender.lastOfType("alice", protocol.TypeTextAck)
	if !ok || ack.Seq != 7 {
		t.Fatalf("unexpected text_ack: %+v %v", ack, ok)
	}

	history, err := f.rooms.History(ctx, "room-1", 50)
	if err != nil || len(history) != 1 || history[0].Body != "hi" {
		t.Fatalf("unexpected history: %+v %v", history, err)
	}
}

func TestRoomService_CleanupRoom_NotifiesPartnerAndResetsSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeChat)
	f.seedSession(t, ctx, "alice", model.Session{Want: model.ModeChat, State: model.StateInRoom})
	f.seedSession(t, ctx, "bob", model.Session{Want: model.ModeChat, State: model.StateInRoom})

	if err := f.roomSvc.CleanupRoom(ctx, "alice"); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	frame, ok := f.sender.lastOfType("bob", protocol.TypePartnerLeft)
	if !ok || frame.UserID != "alice" {
		t.Fatalf("bob should be notified: %+v %v", frame, ok)
	}
	if room, _ := f.rooms.Get(ctx, "room-1"); room != nil {
		t.Fatalf("room should be deleted")
	}
	for _, userID := range []string{"alice", "bob"} {
		sess, err := f.sessions.Get(ctx, userID)
		if err != nil || sess == nil {
			t.Fatalf("session missing for %s: %v", userID, err)
		}
		if sess.State != model.StateIdle || sess.RoomID != "" {
			t.Fatalf("session for %s not reset: %+v", userID, sess)
		}
	}
}

func TestRoomService_Heartbeat_CleansDeadPartner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeChat)
	f.seedSession(t, ctx, "alice", model.Session{Want: model.ModeChat, State: model.StateInRoom})
	// bob에게는 세션도 grace 마커도 없다

	if err := f.roomSvc.Heartbeat(ctx, "alice"); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	if room, _ := f.rooms.Get(ctx, "room-1"); room != nil {
		t.Fatalf("room should be cleaned when partner is dead")
	}
}

func TestRoomService_Heartbeat_RespectsGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeChat)
	f.seedSession(t, ctx, "alice", model.Session{Want: model.ModeChat, State: model.StateInRoom})
	if err := f.presence.StartGrace(ctx, "bob"); err != nil {
		t.Fatalf("failed to start grace: %v", err)
	}

	if err := f.roomSvc.Heartbeat(ctx, "alice"); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	if room, _ := f.rooms.Get(ctx, "room-1"); room == nil {
		t.Fatalf("room should survive while partner is in grace")
	}
}

func TestRoomService_Heartbeat_ExtendsSessionTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedSession(t, ctx, "alice", model.Session{Want: model.ModeChat, State: model.StateIdle})
	f.mr.FastForward(2 * time.Minute)

	if err := f.roomSvc.Heartbeat(ctx, "alice"); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	if ttl := f.mr.TTL("sess:alice"); ttl < 2*time.Minute {
		t.Fatalf("session TTL should be refreshed, got %v", ttl)
	}
}

func TestRoomService_Heartbeat_RecreatesExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 세션이 이미 만료된 뒤의 하트비트는 IDLE 세션을 새로 만든다
	if err := f.roomSvc.Heartbeat(ctx, "ghost"); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	sess, err := f.sessions.Get(ctx, "ghost")
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if sess == nil || sess.State != model.StateIdle {
		t.Fatalf("expected a fresh IDLE session, got %+v", sess)
	}
}

func TestRoomService_Disconnected_UnregistersOwnedMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.presence.Register(ctx, "alice", "inst-test"); err != nil {
		t.Fatalf("failed to register presence: %v", err)
	}

	if err := f.roomSvc.Disconnected(ctx, "alice"); err != nil {
		t.Fatalf("disconnected failed: %v", err)
	}

	if _, ok, _ := f.presence.Owner(ctx, "alice"); ok {
		t.Fatal("connection mapping should be removed on disconnect")
	}
	inGrace, err := f.presence.InGrace(ctx, "alice")
	if err != nil {
		t.Fatalf("failed to check grace: %v", err)
	}
	if !inGrace {
		t.Fatal("grace marker should be set on disconnect")
	}
}

func TestRoomService_Disconnected_KeepsForeignMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 이미 다른 인스턴스로 재접속한 사용자의 매핑은 지우지 않는다
	if err := f.presence.Register(ctx, "alice", "inst-other"); err != nil {
		t.Fatalf("failed to register presence: %v", err)
	}

	if err := f.roomSvc.Disconnected(ctx, "alice"); err != nil {
		t.Fatalf("disconnected failed: %v", err)
	}

	owner, ok, err := f.presence.Owner(ctx, "alice")
	if err != nil {
		t.Fatalf("failed to read owner: %v", err)
	}
	if !ok || owner != "inst-other" {
		t.Fatalf("foreign mapping should survive, got %q (ok=%v)", owner, ok)
	}
}

func TestRoomService_Resume_RestoresRoomState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeCall)
	f.mr.HSet("room:room-1", "caller", "bob", "callee", "alice")
	f.seedSession(t, ctx, "alice", model.Session{Want: model.ModeCall, State: model.StateInRoom})
	f.seedSession(t, ctx, "bob", model.Session{Want: model.ModeCall, State: model.StateInRoom, Username: "bobby"})
	if err := f.rooms.AppendMessage(ctx, "room-1", model.RoomMessage{From: "bob", Body: "hello", Ts: 1}); err != nil {
		t.Fatalf("failed to append message: %v", err)
	}

	snap, err := f.roomSvc.Resume(ctx, "alice", model.ModeCall)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if snap == nil {
		t.Fatalf("expected snapshot")
	}
	if snap.RoomID != "room-1" || snap.PartnerID != "bob" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.CallRole != "callee" {
		t.Fatalf("expected callee role, got %q", snap.CallRole)
	}
	if snap.PartnerUserName != "bobby" {
		t.Fatalf("expected partner name, got %q", snap.PartnerUserName)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Body != "hello" {
		t.Fatalf("unexpected history: %+v", snap.Messages)
	}
}

func TestRoomService_Resume_NothingToRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.roomSvc.Resume(ctx, "ghost", model.ModeChat)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot, got %+v", snap)
	}
}

func TestReportService_Report_DissolvesRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeChat)

	if err := f.report.Report(ctx, "alice", "bob", "room-1"); err != nil {
		t.Fatalf("report failed: %v", err)
	}

	frame, ok := f.sender.lastOfType("bob", protocol.TypeRoomClosed)
	if !ok || frame.Reason != ReasonBeingReported {
		t.Fatalf("unexpected room_closed: %+v %v", frame, ok)
	}
	ack, ok := f.sender.lastOfType("alice", protocol.TypeReportOK)
	if !ok || ack.TargetID != "bob" || ack.Dedup {
		t.Fatalf("unexpected report_ok: %+v %v", ack, ok)
	}
	if room, _ := f.rooms.Get(ctx, "room-1"); room != nil {
		t.Fatalf("room should be dissolved")
	}
	if blocked, _ := f.reports.IsBlocked(ctx, "alice", "bob"); !blocked {
		t.Fatalf("pair should be blocked after report")
	}
}

func TestReportService_Report_SelfRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.report.Report(ctx, "alice", "alice", "room-1")
	if !errors.As(err, new(acerrors.SelfReportError)) {
		t.Fatalf("expected SelfReportError, got %v", err)
	}
}

func TestReportService_Report_RequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedHumanRoom(t, ctx, "room-1", "alice", "bob", model.ModeChat)

	err := f.report.Report(ctx, "mallory", "bob", "room-1")
	if !errors.As(err, new(acerrors.NotInRoomError)) {
		t.Fatalf("expected NotInRoomError, got %v", err)
	}
}

func TestReportService_ThresholdBansTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, reporter := range []string{"u1", "u2", "u3"} {
		roomID := "room-" + reporter
		f.seedHumanRoom(t, ctx, roomID, reporter, "bob", model.ModeChat)
		if err := f.report.Report(ctx, reporter, "bob", roomID); err != nil {
			t.Fatalf("report from %s failed: %v", reporter, err)
		}
	}

	frame, ok := f.sender.lastOfType("bob", protocol.TypeBanned)
	if !ok {
		t.Fatalf("expected banned frame, got %v", f.sender.framesFor("bob"))
	}
	if frame.RetryAfterSec != 3600 {
		t.Fatalf("expected 1h ban, got %d", frame.RetryAfterSec)
	}
	banned, _, err := f.reports.IsBanned(ctx, "bob")
	if err != nil || !banned {
		t.Fatalf("bob should be banned: %v", err)
	}
}
