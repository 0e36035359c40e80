// Package protocol 은 클라이언트와 주고받는 WebSocket 메시지 형식을 정의한다.
// 모든 프레임은 type 필드가 있는 평면 JSON 객체다.
package protocol

import (
	json "github.com/goccy/go-json"
)

// 클라이언트 → 서버 메시지 타입
const (
	TypeAuth            = "auth"
	TypeResume          = "resume"
	TypeJoin            = "join"
	TypeRetryMatch      = "retry_match"
	TypeResetStart      = "reset_start"
	TypeLeave           = "leave"
	TypeSkip            = "skip"
	TypeReport          = "report"
	TypeHeartbeat       = "hb"
	TypeText            = "text"
	TypeTyping          = "typing"
	TypePreOffer        = "preoffer"
	TypeWebRTCOffer     = "webrtc_offer"
	TypeWebRTCAnswer    = "webrtc_answer"
	TypeWebRTCIce       = "webrtc_ice"
	TypeWebRTCConnState = "webrtc_connection_state"
	TypeWebRTCAnswerOK  = "webrtc_answer_ok"
	TypeWebRTCAck       = "webrtc_ack"
	TypeInterestUpdated = "interest_updated"
	TypePeerMuted       = "peer_muted"
	TypeGetPartnerInfo  = "get_partner_info"
	TypeBotChat         = "non-human-chat"
	TypeBotCall         = "non-human-call"
	TypeBotCallEnd      = "non-human-call-end"
)

// 서버 → 클라이언트 메시지 타입
const (
	TypeAuthOK            = "auth_ok"
	TypeResumeOK          = "resume_ok"
	TypeResumeFailed      = "resume_failed"
	TypeWaiting           = "waiting"
	TypeMatched           = "matched"
	TypeMatchedBot        = "matched_bot"
	TypePartnerInfo       = "partner_info"
	TypePartnerLeft       = "partner_left"
	TypeRoomClosed        = "room_closed"
	TypeBanned            = "banned"
	TypeReportOK          = "report_ok"
	TypeTextAck           = "text_ack"
	TypeInterestUpdatedOK = "interest_updated_ok"
	TypeOnlineCount       = "online_count"
	TypeBotChatEnd        = "non_human_chat_end"
	TypeBotCallEnded      = "non_human_call_end"
	TypeRoomExist         = "room_exist"
	TypeLeft              = "left"
	TypeSkipped           = "skipped"
	TypeError             = "error"
)

// ClientMessage 는 클라이언트가 보내는 프레임이다.
// 타입별로 사용하는 필드만 채워지며 나머지는 0값으로 남는다.
type ClientMessage struct {
	Type       string          `json:"type"`
	UserID     string          `json:"userId,omitempty"`
	RoomID     string          `json:"roomId,omitempty"`
	Want       string          `json:"want,omitempty"`
	Gender     string          `json:"gender,omitempty"`
	Preference string          `json:"preference,omitempty"`
	Interests  []string        `json:"interests,omitempty"`
	Username   string          `json:"username,omitempty"`
	From       string          `json:"from,omitempty"`
	Body       string          `json:"body,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	State      bool            `json:"state,omitempty"`     // typing on/off
	Muted      bool            `json:"muted,omitempty"`     // peer_muted
	TargetID   string          `json:"targetId,omitempty"`  // report 대상
	AckID      string          `json:"ackId,omitempty"`     // webrtc_ack 상관관계
	Offer      json.RawMessage `json:"offer,omitempty"`     // SDP offer
	Answer     json.RawMessage `json:"answer,omitempty"`    // SDP answer
	Candidate  json.RawMessage `json:"candidate,omitempty"` // ICE candidate
	LocalDesc  json.RawMessage `json:"localDesc,omitempty"` // preoffer 디스크립션
	ConnState  string          `json:"connState,omitempty"` // webrtc_connection_state
}

// ServerMessage 는 서버가 보내는 프레임이다.
type ServerMessage struct {
	Type            string          `json:"type"`
	UserID          string          `json:"userId,omitempty"`
	RoomID          string          `json:"roomId,omitempty"`
	PartnerID       string          `json:"partnerId,omitempty"`
	PartnerUserName string          `json:"partnerUserName,omitempty"`
	BotID           string          `json:"botId,omitempty"`
	From            string          `json:"from,omitempty"`
	Body            string          `json:"body,omitempty"`
	Seq             int64           `json:"seq,omitempty"`
	Ts              int64           `json:"ts,omitempty"`
	State           bool            `json:"state,omitempty"`
	Muted           bool            `json:"muted,omitempty"`
	Count           int64           `json:"count,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Message         string          `json:"message,omitempty"`
	Instance        string          `json:"instance,omitempty"`
	SessionState    string          `json:"sessionState,omitempty"` // auth_ok/resume_ok의 매칭 상태
	Want            string          `json:"want,omitempty"`
	Interests       []string        `json:"interests,omitempty"`
	Role            string          `json:"role,omitempty"`     // matched 프레임의 caller|callee
	CallRole        string          `json:"callRole,omitempty"` // resume_ok 프레임의 caller|callee
	Messages        []HistoryItem   `json:"messages,omitempty"`
	AckID           string          `json:"ackId,omitempty"`
	Offer           json.RawMessage `json:"offer,omitempty"`
	Answer          json.RawMessage `json:"answer,omitempty"`
	Candidate       json.RawMessage `json:"candidate,omitempty"`
	LocalDesc       json.RawMessage `json:"localDesc,omitempty"`
	ConnState       string          `json:"connState,omitempty"`
	RetryAfterSec   int64           `json:"retryAfterSec,omitempty"` // banned 남은 기간
	TargetID        string          `json:"targetId,omitempty"`      // report_ok 대상
	Dedup           bool            `json:"dedup,omitempty"`         // report_ok 중복 신고 표시
}

// DecodeClient 는 원시 프레임을 ClientMessage로 해석한다.
func DecodeClient(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

// Encode 는 서버 메시지를 JSON으로 직렬화한다.
func Encode(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// HistoryItem 은 재접속/봇 방 복귀 시 내려보내는 과거 메시지 한 건이다.
type HistoryItem struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	From   string `json:"from"`
	Body   string `json:"body"`
	Ts     int64  `json:"ts"`
}

// RelayFrame 은 인스턴스 간 Pub/Sub으로 전달되는 프레임이다.
// 수신 인스턴스가 payload를 그대로 대상 사용자 소켓에 내려보낸다.
type RelayFrame struct {
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorMessage 는 오류 프레임을 만든다.
func ErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}
