// Package signal 은 WebRTC 핸드셰이크 중계와 진행 상태 관리를 담당한다.
// SDP 내용은 해석하지 않고 그대로 상대에게 전달하며,
// 진행 단계만 추적하여 중복 오퍼와 순서 위반을 걸러낸다.
package signal

import (
	"context"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

// Sender 는 프레임을 대상 사용자에게 전달한다. 라우터가 구현한다.
type Sender interface {
	SendToUser(ctx context.Context, userID string, msg protocol.ServerMessage) error
}

// Relay 는 오퍼/앤서/ICE 프레임을 방 상대에게 중계한다.
type Relay struct {
	rooms      *acredis.RoomStore
	handshakes *acredis.HandshakeStore
	sender     Sender
	logger     *slog.Logger
}

// NewRelay 는 Relay를 생성한다.
func NewRelay(rooms *acredis.RoomStore, handshakes *acredis.HandshakeStore, sender Sender, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{rooms: rooms, handshakes: handshakes, sender: sender, logger: logger}
}

func (r *Relay) partner(ctx context.Context, roomID, from string) (string, error) {
	room, err := r.rooms.Get(ctx, roomID)
	if err != nil {
		return "", err
	}
	if room == nil || room.A == "" {
		return "", acerrors.RoomNotFoundError{RoomID: roomID}
	}
	return room.Partner(from), nil
}

// Offer 는 오퍼를 상대에게 전달하고 핸드셰이크를 시작한다.
// 이미 진행 중인 핸드셰이크가 있으면 재전송으로 보고 아무것도 하지 않는다.
func (r *Relay) Offer(ctx context.Context, roomID, from string, offer json.RawMessage) error {
	partnerID, err := r.partner(ctx, roomID, from)
	if err != nil {
		return err
	}

	existing, err := r.handshakes.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if err := r.handshakes.MarkPendingOffer(ctx, roomID, from); err != nil {
		return err
	}
	if err := r.sender.SendToUser(ctx, partnerID, protocol.ServerMessage{
		Type:   protocol.TypeWebRTCOffer,
		RoomID: roomID,
		From:   from,
		Offer:  offer,
	}); err != nil {
		return err
	}

	return r.handshakes.Save(ctx, roomID, model.Handshake{
		Stage: model.StageOfferSent,
		From:  from,
		Ts:    time.Now().UnixMilli(),
	})
}

// Answer 는 앤서를 오퍼 발신자에게 전달한다.
// 핸드셰이크가 없으면 순서 위반이고, 이미 앤서 단계면 재전송으로 무시한다.
func (r *Relay) Answer(ctx context.Context, roomID, from string, answer json.RawMessage) error {
	partnerID, err := r.partner(ctx, roomID, from)
	if err != nil {
		return err
	}

	hs, err := r.handshakes.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if hs == nil {
		return acerrors.RoomNotFoundError{RoomID: roomID}
	}
	if hs.Stage == model.StageAnswerSent || hs.Stage == model.StageAnswerReceived {
		return nil
	}

	if err := r.sender.SendToUser(ctx, partnerID, protocol.ServerMessage{
		Type:   protocol.TypeWebRTCAnswer,
		RoomID: roomID,
		From:   from,
		Answer: answer,
	}); err != nil {
		return err
	}

	// 앤서가 도착했으면 offer는 전달된 것이므로 재전송 마커를 걷는다
	if err := r.handshakes.ClearPendingOffer(ctx, roomID); err != nil {
		r.logger.Warn("pending_offer_clear_failed", "room_id", roomID, "error", err)
	}

	hs.Stage = model.StageAnswerSent
	hs.Ts = time.Now().UnixMilli()
	return r.handshakes.Save(ctx, roomID, *hs)
}

// AnswerOK 는 앤서 수신 확인으로 핸드셰이크를 종료한다.
func (r *Relay) AnswerOK(ctx context.Context, roomID string) error {
	return r.handshakes.Clear(ctx, roomID)
}

// OfferPending 은 방에 아직 응답받지 못한 offer가 남아 있는지 확인한다.
// 재전송 루프가 호출하며, 마커가 사라지면 재전송을 중단해야 한다.
func (r *Relay) OfferPending(ctx context.Context, roomID string) (bool, error) {
	_, ok, err := r.handshakes.PendingOffer(ctx, roomID)
	return ok, err
}

// OnDelivered 는 오퍼/앤서 프레임의 전달 ACK를 반영한다.
// 오퍼 ACK는 OFFER_RECEIVED로 전이하고, 앤서 ACK는 핸드셰이크를 정리한다.
func (r *Relay) OnDelivered(ctx context.Context, roomID, eventType string) error {
	hs, err := r.handshakes.Get(ctx, roomID)
	if err != nil || hs == nil {
		return err
	}

	switch eventType {
	case protocol.TypeWebRTCOffer:
		if hs.CanAdvance(model.StageOfferReceived) {
			hs.Stage = model.StageOfferReceived
			hs.Ts = time.Now().UnixMilli()
			return r.handshakes.Save(ctx, roomID, *hs)
		}
	case protocol.TypeWebRTCAnswer:
		if hs.Stage != model.StageAnswerReceived {
			return r.handshakes.Clear(ctx, roomID)
		}
	}
	return nil
}

// PreOffer 는 협상 전 디스크립션 교환을 그대로 중계한다.
func (r *Relay) PreOffer(ctx context.Context, roomID, from string, localDesc json.RawMessage) error {
	partnerID, err := r.partner(ctx, roomID, from)
	if err != nil {
		return err
	}
	return r.sender.SendToUser(ctx, partnerID, protocol.ServerMessage{
		Type:      protocol.TypePreOffer,
		RoomID:    roomID,
		From:      from,
		LocalDesc: localDesc,
	})
}

// ForwardIce 는 ICE 후보를 무조건 상대에게 전달한다.
func (r *Relay) ForwardIce(ctx context.Context, roomID, from string, candidate json.RawMessage) error {
	partnerID, err := r.partner(ctx, roomID, from)
	if err != nil {
		return err
	}
	return r.sender.SendToUser(ctx, partnerID, protocol.ServerMessage{
		Type:      protocol.TypeWebRTCIce,
		RoomID:    roomID,
		From:      from,
		Candidate: candidate,
	})
}

// ForwardConnState 는 연결 상태 변화를 상대에게 알린다.
func (r *Relay) ForwardConnState(ctx context.Context, roomID, from, state string) error {
	partnerID, err := r.partner(ctx, roomID, from)
	if err != nil {
		return err
	}
	return r.sender.SendToUser(ctx, partnerID, protocol.ServerMessage{
		Type:      protocol.TypeWebRTCConnState,
		RoomID:    roomID,
		From:      from,
		ConnState: state,
	})
}
