package service

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/park285/anonchat-go/internal/anonchat/bot"
	"github.com/park285/anonchat-go/internal/anonchat/config"
	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/match"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
	"github.com/park285/anonchat-go/internal/common/ptr"
)

// 사람 상대가 끊기는 partner_left 프레임의 사유.
const (
	reasonSwitchToBot        = "switch_to_non_human"
	reasonPartnerSwitchedBot = "partner_switched_to_non_human"
)

// JoinRequest 는 매칭 참여 요청의 프로필이다.
type JoinRequest struct {
	UserID     string
	Want       model.MatchMode
	Gender     model.Gender
	Preference model.Gender
	Interests  []string
	Username   string
}

// MatchService 는 대기열 참여와 매칭 성사, 봇 폴백을 담당한다.
type MatchService struct {
	instanceID    string
	sessions      *acredis.SessionStore
	rooms         *acredis.RoomStore
	engine        *match.Engine
	reports       *acredis.ReportStore
	lock          *acredis.ActionLock
	presence      *acredis.PresenceStore
	bridge        *bot.Bridge
	sender        Sender
	logger        *slog.Logger
	cooldownDelay time.Duration
}

// NewMatchService 는 MatchService를 생성한다.
func NewMatchService(
	instanceID string,
	sessions *acredis.SessionStore,
	rooms *acredis.RoomStore,
	engine *match.Engine,
	reports *acredis.ReportStore,
	lock *acredis.ActionLock,
	presence *acredis.PresenceStore,
	bridge *bot.Bridge,
	sender Sender,
	logger *slog.Logger,
	cooldownDelay time.Duration,
) *MatchService {
	if cooldownDelay <= 0 {
		cooldownDelay = config.CooldownDelayMS * time.Millisecond
	}
	return &MatchService{
		instanceID:    instanceID,
		sessions:      sessions,
		rooms:         rooms,
		engine:        engine,
		reports:       reports,
		lock:          lock,
		presence:      presence,
		bridge:        bridge,
		sender:        sender,
		logger:        logger.With("component", "match_service"),
		cooldownDelay: cooldownDelay,
	}
}

// Join 은 쿨다운을 거쳐 매칭을 시도한다. 이미 대기 중이면 조용히 거절한다.
// 쿨다운 중 상태가 바뀌면 (다른 인스턴스에서 매칭 성사 등) 시도를 포기한다.
func (s *MatchService) Join(ctx context.Context, req JoinRequest) error {
	if err := s.lock.Acquire(ctx, req.UserID); err != nil {
		return acredis.WrapAcquireError(req.UserID, err)
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), req.UserID); err != nil {
			s.logger.Warn("lock_release_failed", "user_id", req.UserID, "error", err)
		}
	}()

	sess, err := s.sessions.Get(ctx, req.UserID)
	if err != nil {
		return err
	}
	if sess != nil && (sess.State == model.StateWaiting || sess.State == model.StateCooldown) {
		return acerrors.AlreadyWaitingError{UserID: req.UserID}
	}

	cooldown := model.StateCooldown
	if _, err := s.sessions.Touch(ctx, req.UserID, s.instanceID, model.SessionPatch{State: &cooldown}); err != nil {
		return err
	}

	select {
	case <-time.After(s.cooldownDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	latest, err := s.sessions.Get(ctx, req.UserID)
	if err != nil {
		return err
	}
	if latest == nil || latest.State != model.StateCooldown {
		return nil
	}

	return s.attempt(ctx, req, attemptOpts{enqueueOnMiss: true})
}

// Retry 는 대기 중 재시도다. 채팅 모드에서 상대가 없으면 봇 방으로 폴백한다.
func (s *MatchService) Retry(ctx context.Context, req JoinRequest) error {
	if err := s.lock.Acquire(ctx, req.UserID); err != nil {
		return acredis.WrapAcquireError(req.UserID, err)
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), req.UserID); err != nil {
			s.logger.Warn("lock_release_failed", "user_id", req.UserID, "error", err)
		}
	}()

	opts := attemptOpts{}
	if req.Want == model.ModeChat {
		opts.botFallback = true
	}
	return s.attempt(ctx, req, opts)
}

type attemptOpts struct {
	enqueueOnMiss bool // 실패 시 대기열에 등록한다
	botFallback   bool // 실패 시 봇 방을 만든다 (채팅 전용)
}

// attempt 는 프로필을 세션에 기록하고 후보 큐를 스캔한다.
func (s *MatchService) attempt(ctx context.Context, req JoinRequest, opts attemptOpts) error {
	banned, remaining, err := s.reports.IsBanned(ctx, req.UserID)
	if err != nil {
		return err
	}
	if banned {
		return acerrors.BannedError{UserID: req.UserID, RetryAfter: remaining}
	}

	// 봇 폴백 판단은 매칭 전의 방 상태를 기준으로 한다
	currentBotRoomID := ""
	if opts.botFallback {
		if roomID, ok, err := s.rooms.UserRoom(ctx, req.UserID); err == nil && ok {
			if room, err := s.rooms.Get(ctx, roomID); err == nil && room != nil && room.IsBot() {
				currentBotRoomID = roomID
			}
		}
	}

	interests := req.Interests
	if interests == nil {
		interests = []string{}
	}
	waiting := model.StateWaiting
	sess, err := s.sessions.Touch(ctx, req.UserID, s.instanceID, model.SessionPatch{
		Want:       &req.Want,
		Gender:     &req.Gender,
		Preference: &req.Preference,
		Interests:  interests,
		Username:   ptr.String(req.Username),
		State:      &waiting,
		RoomID:     ptr.String(""),
	})
	if err != nil {
		return err
	}
	if err := s.presence.Register(ctx, req.UserID, s.instanceID); err != nil {
		return err
	}

	roomID := uuid.NewString()
	res, err := s.engine.TryMatch(ctx, req.UserID, roomID, *sess)
	if err != nil {
		return err
	}
	if res.PartnerID != "" {
		return s.completeMatch(ctx, req.UserID, res.PartnerID, res.RoomID, req.Want)
	}

	if opts.enqueueOnMiss {
		if _, err := s.engine.Enqueue(ctx, req.UserID, *sess, time.Now()); err != nil {
			return err
		}
		s.send(ctx, req.UserID, protocol.ServerMessage{Type: protocol.TypeWaiting})
		return nil
	}

	if opts.botFallback && currentBotRoomID == "" {
		return s.startBotRoom(ctx, req.UserID, model.ModeChat, req.Preference, "")
	}
	return nil
}

// completeMatch 는 클레임이 성사된 두 사용자를 방에 넣고 통지한다.
func (s *MatchService) completeMatch(ctx context.Context, userID, partnerID, roomID string, want model.MatchMode) error {
	// 어느 쪽이든 봇 방에 있었다면 먼저 닫는다
	s.endBotRoomIfAny(ctx, partnerID, want)
	s.endBotRoomIfAny(ctx, userID, want)

	callerID, calleeID := userID, partnerID
	if want == model.ModeCall {
		if rand.Intn(2) == 0 {
			callerID, calleeID = partnerID, userID
		}
		if err := s.rooms.SetCallRoles(ctx, roomID, callerID, calleeID); err != nil {
			return err
		}
	}

	if err := s.rooms.SetUserRoom(ctx, userID, roomID); err != nil {
		return err
	}
	if err := s.rooms.SetUserRoom(ctx, partnerID, roomID); err != nil {
		return err
	}

	inRoom := model.StateInRoom
	if _, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{
		State: &inRoom, RoomID: ptr.String(roomID),
	}); err != nil {
		return err
	}
	if _, err := s.sessions.Touch(ctx, partnerID, s.instanceID, model.SessionPatch{
		State: &inRoom, RoomID: ptr.String(roomID),
	}); err != nil {
		return err
	}

	s.send(ctx, userID, protocol.ServerMessage{
		Type:            protocol.TypeMatched,
		RoomID:          roomID,
		PartnerID:       partnerID,
		PartnerUserName: s.username(ctx, partnerID),
		Want:            string(want),
		Role:            callRole(want, userID, callerID),
	})
	s.send(ctx, partnerID, protocol.ServerMessage{
		Type:            protocol.TypeMatched,
		RoomID:          roomID,
		PartnerID:       userID,
		PartnerUserName: s.username(ctx, userID),
		Want:            string(want),
		Role:            callRole(want, partnerID, callerID),
	})

	s.logger.Info("match_completed",
		"room_id", roomID, "user_id", userID, "partner_id", partnerID, "want", want)
	return nil
}

// StartBotChat 은 봇 채팅 방을 연다. 기존 방이 있으면 그 방으로 복귀시킨다.
func (s *MatchService) StartBotChat(ctx context.Context, userID string, preference model.Gender) error {
	roomID, ok, err := s.rooms.UserRoom(ctx, userID)
	if err != nil {
		return err
	}
	if ok {
		room, err := s.rooms.Get(ctx, roomID)
		if err != nil {
			return err
		}
		history, err := s.rooms.History(ctx, roomID, config.RoomHistoryMax)
		if err != nil {
			return err
		}
		partnerID := ""
		if room != nil {
			partnerID = room.B
		}
		s.send(ctx, userID, protocol.ServerMessage{
			Type:      protocol.TypeRoomExist,
			RoomID:    roomID,
			PartnerID: partnerID,
			Messages:  historyItems(roomID, history),
		})
		return nil
	}
	return s.startBotRoom(ctx, userID, model.ModeChat, preference, "")
}

// StartBotCall 은 봇 통화 방을 연다. 살아 있는 사람 방이 있으면 먼저 해체만 하고 끝낸다.
func (s *MatchService) StartBotCall(ctx context.Context, userID string, preference model.Gender) error {
	roomID, ok, err := s.rooms.UserRoom(ctx, userID)
	if err != nil {
		return err
	}
	if ok {
		room, err := s.rooms.Get(ctx, roomID)
		if err != nil {
			return err
		}
		if room != nil && room.A != "" && room.B != "" {
			partnerID := room.Partner(userID)
			partnerRoomID, partnerOk, err := s.rooms.UserRoom(ctx, partnerID)
			if err != nil {
				return err
			}
			if partnerOk && partnerRoomID == roomID {
				if err := s.rooms.Delete(ctx, roomID); err != nil {
					return err
				}
				if err := s.rooms.DeleteUserRoom(ctx, userID, ""); err != nil {
					return err
				}
				if err := s.rooms.DeleteUserRoom(ctx, partnerID, ""); err != nil {
					return err
				}
				s.send(ctx, userID, protocol.ServerMessage{
					Type: protocol.TypePartnerLeft, RoomID: roomID, Reason: reasonSwitchToBot,
				})
				s.send(ctx, partnerID, protocol.ServerMessage{
					Type: protocol.TypePartnerLeft, RoomID: roomID, Reason: reasonPartnerSwitchedBot,
				})
				return nil
			}
		}
		if err := s.rooms.DeleteUserRoom(ctx, userID, ""); err != nil {
			return err
		}
	}
	return s.startBotRoom(ctx, userID, model.ModeCall, preference, bot.RandomName())
}

// EndBotCall 은 클라이언트가 보낸 통화 종료를 처리한다.
func (s *MatchService) EndBotCall(ctx context.Context, userID, roomID string) error {
	return s.bridge.EndCall(ctx, roomID, userID, bot.ReasonTimeExpired)
}

// startBotRoom 은 봇 방을 만들고 matched_bot 프레임을 보낸다.
func (s *MatchService) startBotRoom(ctx context.Context, userID string, want model.MatchMode, preference model.Gender, partnerName string) error {
	room, err := s.bridge.CreateRoom(ctx, userID, want, preference)
	if err != nil {
		return err
	}
	s.send(ctx, userID, protocol.ServerMessage{
		Type:            protocol.TypeMatchedBot,
		RoomID:          room.ID,
		PartnerID:       room.B,
		PartnerUserName: partnerName,
	})
	s.logger.Info("bot_room_started", "room_id", room.ID, "user_id", userID, "want", want)
	return nil
}

// endBotRoomIfAny 는 사용자가 봇 방에 있으면 전환 사유로 닫는다.
func (s *MatchService) endBotRoomIfAny(ctx context.Context, userID string, want model.MatchMode) {
	roomID, ok, err := s.rooms.UserRoom(ctx, userID)
	if err != nil || !ok {
		return
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil || room == nil || !room.IsBot() {
		return
	}
	if want == model.ModeCall {
		err = s.bridge.EndCall(ctx, roomID, userID, bot.ReasonSwitchToHuman)
	} else {
		err = s.bridge.EndChat(ctx, roomID, userID, bot.ReasonSwitchToHuman)
	}
	if err != nil {
		s.logger.Warn("bot_room_end_failed", "room_id", roomID, "user_id", userID, "error", err)
	}
}

func (s *MatchService) username(ctx context.Context, userID string) string {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil || sess == nil {
		return ""
	}
	return sess.Username
}

func (s *MatchService) send(ctx context.Context, userID string, msg protocol.ServerMessage) {
	if userID == "" {
		return
	}
	if err := s.sender.SendToUser(ctx, userID, msg); err != nil {
		s.logger.Warn("send_failed", "user_id", userID, "type", msg.Type, "error", err)
	}
}

// callRole 은 통화 모드에서 사용자의 역할 문자열을 반환한다. 채팅이면 빈 값.
func callRole(want model.MatchMode, userID, callerID string) string {
	if want != model.ModeCall {
		return ""
	}
	if userID == callerID {
		return "caller"
	}
	return "callee"
}
