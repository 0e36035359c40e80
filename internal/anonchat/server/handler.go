package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/park285/anonchat-go/internal/anonchat/config"
	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	"github.com/park285/anonchat-go/internal/anonchat/service"
	"github.com/park285/anonchat-go/internal/anonchat/signal"
)

// Handler 는 수신 프레임을 타입별로 서비스 호출로 옮긴다.
type Handler struct {
	instanceID string
	hub        *Hub
	matches    *service.MatchService
	rooms      *service.RoomService
	reports    *service.ReportService
	relay      *signal.Relay
	logger     *slog.Logger
}

// NewHandler 는 Handler를 생성하고 허브에 연결한다.
func NewHandler(
	instanceID string,
	hub *Hub,
	matches *service.MatchService,
	rooms *service.RoomService,
	reports *service.ReportService,
	relay *signal.Relay,
	logger *slog.Logger,
) *Handler {
	h := &Handler{
		instanceID: instanceID,
		hub:        hub,
		matches:    matches,
		rooms:      rooms,
		reports:    reports,
		relay:      relay,
		logger:     logger.With("component", "handler"),
	}
	hub.SetHandler(h)
	return h
}

// Handle 은 원시 프레임 하나를 처리한다. 알 수 없는 타입은 버린다.
func (h *Handler) Handle(ctx context.Context, c *Client, raw []byte) {
	msg, err := protocol.DecodeClient(raw)
	if err != nil {
		h.logger.Debug("frame_decode_failed", "user_id", c.userID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeAuth:
		h.handleAuth(ctx, c)
	case protocol.TypeResume:
		h.handleResume(ctx, c, msg)
	case protocol.TypeJoin:
		go h.runMatch(c, h.joinRequest(c, msg), false)
	case protocol.TypeRetryMatch:
		go h.runMatch(c, h.joinRequest(c, msg), true)
	case protocol.TypeResetStart:
		if err := h.rooms.CleanupUser(ctx, c.userID); err != nil {
			h.logger.Warn("reset_start_failed", "user_id", c.userID, "error", err)
		}
	case protocol.TypeLeave:
		h.handleLeave(ctx, c, msg, false)
	case protocol.TypeSkip:
		h.handleLeave(ctx, c, msg, true)
		go h.runMatch(c, h.joinRequest(c, msg), false)
	case protocol.TypeReport:
		h.handleReport(ctx, c, msg)
	case protocol.TypeHeartbeat:
		if err := h.rooms.Heartbeat(ctx, c.userID); err != nil {
			h.logger.Warn("heartbeat_failed", "user_id", c.userID, "error", err)
		}
	case protocol.TypeText:
		h.reply(c, h.rooms.HandleText(ctx, c.userID, msg))
	case protocol.TypeTyping:
		from := msg.From
		if from == "" {
			from = c.userID
		}
		h.logIfError(c, h.rooms.Typing(ctx, from, msg.State), "typing")
	case protocol.TypePeerMuted:
		h.logIfError(c, h.rooms.PeerMuted(ctx, c.userID, msg.RoomID, msg.Muted), "peer_muted")
	case protocol.TypeGetPartnerInfo:
		h.logIfError(c, h.rooms.PartnerInfo(ctx, c.userID), "get_partner_info")
	case protocol.TypeInterestUpdated:
		h.logIfError(c, h.rooms.UpdateInterests(ctx, c.userID, msg.Interests), "interest_updated")
	case protocol.TypePreOffer:
		h.reply(c, h.relay.PreOffer(ctx, msg.RoomID, h.from(c, msg), msg.LocalDesc))
	case protocol.TypeWebRTCOffer:
		h.reply(c, h.relay.Offer(ctx, msg.RoomID, h.from(c, msg), msg.Offer))
	case protocol.TypeWebRTCAnswer:
		h.reply(c, h.relay.Answer(ctx, msg.RoomID, h.from(c, msg), msg.Answer))
	case protocol.TypeWebRTCIce:
		h.reply(c, h.relay.ForwardIce(ctx, msg.RoomID, h.from(c, msg), msg.Candidate))
	case protocol.TypeWebRTCConnState:
		h.reply(c, h.relay.ForwardConnState(ctx, msg.RoomID, h.from(c, msg), msg.ConnState))
	case protocol.TypeWebRTCAnswerOK:
		h.logIfError(c, h.relay.AnswerOK(ctx, msg.RoomID), "webrtc_answer_ok")
	case protocol.TypeWebRTCAck:
		h.hub.Ack(c.userID, msg.AckID)
	case protocol.TypeBotChat:
		h.reply(c, h.matches.StartBotChat(ctx, c.userID, model.ParseGender(msg.Preference)))
	case protocol.TypeBotCall:
		h.reply(c, h.matches.StartBotCall(ctx, c.userID, model.ParseGender(msg.Preference)))
	case protocol.TypeBotCallEnd:
		h.logIfError(c, h.matches.EndBotCall(ctx, c.userID, msg.RoomID), "non-human-call-end")
	default:
		h.logger.Debug("unknown_frame", "user_id", c.userID, "type", msg.Type)
	}
}

func (h *Handler) handleAuth(ctx context.Context, c *Client) {
	sess, err := h.rooms.Authenticate(ctx, c.userID)
	if err != nil {
		h.logger.Error("auth_failed", "user_id", c.userID, "error", err)
		c.Send(protocol.ErrorMessage("auth failed"))
		return
	}
	c.Send(protocol.ServerMessage{
		Type:         protocol.TypeAuthOK,
		UserID:       c.userID,
		Instance:     h.instanceID,
		SessionState: string(sess.State),
	})
}

func (h *Handler) handleResume(ctx context.Context, c *Client, msg protocol.ClientMessage) {
	snap, err := h.rooms.Resume(ctx, c.userID, model.ParseMatchMode(msg.Want))
	if err != nil {
		h.logger.Error("resume_failed", "user_id", c.userID, "error", err)
		c.Send(protocol.ServerMessage{Type: protocol.TypeResumeFailed, Reason: "resume_error"})
		return
	}
	if snap == nil {
		c.Send(protocol.ServerMessage{Type: protocol.TypeResumeFailed, Reason: "no_state_to_resume"})
		return
	}

	// 클라이언트가 리스너를 다시 붙일 시간을 준 뒤 상태를 내려보낸다
	userID := c.userID
	time.AfterFunc(config.ResumeReplayDelay*time.Millisecond, func() {
		c.Send(protocol.ServerMessage{
			Type:            protocol.TypeResumeOK,
			UserID:          userID,
			Instance:        h.instanceID,
			RoomID:          snap.RoomID,
			PartnerID:       snap.PartnerID,
			PartnerUserName: snap.PartnerUserName,
			CallRole:        snap.CallRole,
			SessionState:    string(snap.State),
			Messages:        snap.Messages,
		})
	})
}

func (h *Handler) handleLeave(ctx context.Context, c *Client, msg protocol.ClientMessage, skip bool) {
	err := h.rooms.Leave(ctx, c.userID, msg.RoomID, skip)
	if err != nil {
		if errors.As(err, new(acerrors.RoomNotFoundError)) {
			c.Send(protocol.ErrorMessage("room not found or invalid"))
			return
		}
		h.logger.Error("leave_failed", "user_id", c.userID, "error", err)
		return
	}

	ackType := protocol.TypeLeft
	if skip {
		ackType = protocol.TypeSkipped
	}
	c.Send(protocol.ServerMessage{Type: ackType, RoomID: msg.RoomID})
}

func (h *Handler) handleReport(ctx context.Context, c *Client, msg protocol.ClientMessage) {
	reporterID := msg.UserID
	if reporterID == "" {
		reporterID = c.userID
	}
	if err := h.reports.Report(ctx, reporterID, msg.TargetID, msg.RoomID); err != nil {
		if acerrors.IsExpectedUserBehavior(err) {
			h.logger.Debug("report_rejected", "user_id", reporterID, "error", err)
			return
		}
		h.logger.Error("report_failed", "user_id", reporterID, "error", err)
	}
}

// runMatch 는 쿨다운을 포함한 매칭 시도를 소켓 읽기 루프 밖에서 돌린다.
func (h *Handler) runMatch(c *Client, req service.JoinRequest, retry bool) {
	ctx := context.Background()
	var err error
	if retry {
		err = h.matches.Retry(ctx, req)
	} else {
		err = h.matches.Join(ctx, req)
	}
	if err == nil {
		return
	}

	var banned acerrors.BannedError
	if errors.As(err, &banned) {
		c.Send(protocol.ServerMessage{
			Type:          protocol.TypeBanned,
			RetryAfterSec: int64(banned.RetryAfter.Seconds()),
			Message:       "You have been temporarily blocked due to multiple reports.",
		})
		return
	}
	if acerrors.IsExpectedUserBehavior(err) {
		h.logger.Debug("match_request_ignored", "user_id", req.UserID, "error", err)
		return
	}
	h.logger.Error("match_failed", "user_id", req.UserID, "retry", retry, "error", err)
}

func (h *Handler) joinRequest(c *Client, msg protocol.ClientMessage) service.JoinRequest {
	return service.JoinRequest{
		UserID:     c.userID,
		Want:       model.ParseMatchMode(msg.Want),
		Gender:     model.ParseGender(msg.Gender),
		Preference: model.ParseGender(msg.Preference),
		Interests:  msg.Interests,
		Username:   msg.Username,
	}
}

func (h *Handler) from(c *Client, msg protocol.ClientMessage) string {
	if msg.From != "" {
		return msg.From
	}
	return c.userID
}

// reply 는 실패를 클라이언트에게 알린다. 패턴 내 동작은 조용히 로그만 남긴다.
func (h *Handler) reply(c *Client, err error) {
	if err == nil {
		return
	}
	if errors.As(err, new(acerrors.RoomNotFoundError)) {
		c.Send(protocol.ErrorMessage("room not found"))
		return
	}
	if acerrors.IsExpectedUserBehavior(err) {
		h.logger.Debug("request_ignored", "user_id", c.userID, "error", err)
		return
	}
	h.logger.Error("request_failed", "user_id", c.userID, "error", err)
	c.Send(protocol.ErrorMessage("internal error"))
}

func (h *Handler) logIfError(c *Client, err error, op string) {
	if err == nil {
		return
	}
	if acerrors.IsExpectedUserBehavior(err) {
		h.logger.Debug("request_ignored", "user_id", c.userID, "op", op, "error", err)
		return
	}
	h.logger.Warn("request_failed", "user_id", c.userID, "op", op, "error", err)
}
