// Package model 은 익명 매칭 서비스의 핵심 데이터 타입들을 정의한다.
package model

import (
	"strings"
)

// UserState: 사용자의 매칭 수명주기 상태 타입
type UserState string

const (
	// StateIdle: 매칭에 참여하지 않은 기본 상태
	StateIdle UserState = "IDLE"
	// StateWaiting: 대기 큐에 등록된 상태
	StateWaiting UserState = "WAITING"
	// StateCooldown: 매칭 시도 전 쿨다운 상태
	StateCooldown UserState = "COOLDOWN"
	// StateInRoom: 대화방에 참여 중인 상태
	StateInRoom UserState = "IN_ROOM"
)

// ParseUserState: 문자열을 UserState로 변환한다. 알 수 없는 값은 IDLE로 처리한다.
func ParseUserState(input string) UserState {
	switch UserState(strings.ToUpper(strings.TrimSpace(input))) {
	case StateWaiting:
		return StateWaiting
	case StateCooldown:
		return StateCooldown
	case StateInRoom:
		return StateInRoom
	default:
		return StateIdle
	}
}

// CanTransition: 현재 상태에서 next 상태로의 전이가 허용되는지 확인한다.
// 같은 상태로의 재진입은 항상 허용한다. (재시도 경로가 WAITING을 다시 찍는다)
func (s UserState) CanTransition(next UserState) bool {
	if next == s {
		return true
	}
	switch s {
	case StateIdle:
		return next == StateCooldown || next == StateWaiting
	case StateCooldown:
		return next == StateWaiting || next == StateIdle || next == StateInRoom
	case StateWaiting:
		return next == StateInRoom || next == StateIdle || next == StateCooldown
	case StateInRoom:
		return next == StateIdle || next == StateCooldown
	default:
		return false
	}
}

// MatchMode: 매칭 모드 (채팅/통화)
type MatchMode string

const (
	// ModeChat: 텍스트 채팅 매칭
	ModeChat MatchMode = "chat"
	// ModeCall: 음성 통화 매칭
	ModeCall MatchMode = "call"
)

// ParseMatchMode: 문자열을 MatchMode로 변환한다. 알 수 없는 값은 chat으로 처리한다.
func ParseMatchMode(input string) MatchMode {
	switch MatchMode(strings.ToLower(strings.TrimSpace(input))) {
	case ModeCall:
		return ModeCall
	default:
		return ModeChat
	}
}

// Gender: 성별 표기. 큐 키 구성에 그대로 사용된다.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
	GenderAny     Gender = "any"
)

// ParseGender: 문자열을 Gender로 변환한다. 알 수 없는 값은 any로 처리한다.
func ParseGender(input string) Gender {
	switch Gender(strings.ToLower(strings.TrimSpace(input))) {
	case GenderMale:
		return GenderMale
	case GenderFemale:
		return GenderFemale
	case GenderNeutral:
		return GenderNeutral
	default:
		return GenderAny
	}
}

// Session: 접속 중인 사용자의 휘발성 프로필과 매칭 상태를 담는 레코드
// sess:{userId} 키에 JSON으로 저장되며 하트비트마다 TTL이 갱신된다.
type Session struct {
	Want       MatchMode `json:"want"`                 // 원하는 매칭 모드
	Gender     Gender    `json:"gender"`               // 본인 성별
	Preference Gender    `json:"preference"`           // 상대 성별 선호
	Interests  []string  `json:"interests,omitempty"`  // 관심사 태그
	Username   string    `json:"username,omitempty"`   // 표시 이름
	State      UserState `json:"state"`                // 매칭 수명주기 상태
	RoomID     string    `json:"roomId,omitempty"`     // 참여 중인 방 ID
	Instance   string    `json:"instance,omitempty"`   // 소켓을 보유한 인스턴스 ID
	Ts         int64     `json:"ts"`                   // 마지막 갱신 시각 (unix ms)
}

// SessionPatch: Touch 시 병합되는 부분 갱신 값들. nil 필드는 건드리지 않는다.
type SessionPatch struct {
	Want       *MatchMode
	Gender     *Gender
	Preference *Gender
	Interests  []string
	Username   *string
	State      *UserState
	RoomID     *string
}

// RoomMode: 대화방 종류 (사람-사람 / 사람-봇)
type RoomMode string

const (
	RoomModeHuman RoomMode = "human"
	RoomModeBot   RoomMode = "bot"
)

// Room: 1:1 대화방 레코드. room:{roomId} 해시에 저장된다.
type Room struct {
	ID        string    `json:"id"`
	A         string    `json:"a"`                   // 참가자 A
	B         string    `json:"b"`                   // 참가자 B (봇 방이면 봇 ID)
	Mode      RoomMode  `json:"mode"`                // human | bot
	Want      MatchMode `json:"want"`                // chat | call
	Caller    string    `json:"caller,omitempty"`    // 통화 모드에서 오퍼를 보내는 쪽
	Callee    string    `json:"callee,omitempty"`    // 통화 모드에서 오퍼를 받는 쪽
	BotGender Gender    `json:"botGender,omitempty"` // 봇 방에서 봇의 성별
}

// Partner: 방에서 주어진 사용자의 상대를 반환한다. 방에 없는 사용자면 빈 문자열.
func (r Room) Partner(userID string) string {
	switch userID {
	case r.A:
		return r.B
	case r.B:
		return r.A
	default:
		return ""
	}
}

// Has: 사용자가 이 방의 참가자인지 확인한다.
func (r Room) Has(userID string) bool {
	return userID != "" && (r.A == userID || r.B == userID)
}

// IsBot: 봇 방 여부를 반환한다.
func (r Room) IsBot() bool {
	return r.Mode == RoomModeBot
}

// RoomMessage: 방 히스토리에 저장되는 메시지 한 건
type RoomMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
	Ts   int64  `json:"ts"`
}

// HandshakeStage: WebRTC 핸드셰이크 진행 단계
type HandshakeStage string

const (
	StageOfferSent      HandshakeStage = "OFFER_SENT"
	StageOfferReceived  HandshakeStage = "OFFER_RECEIVED"
	StageAnswerSent     HandshakeStage = "ANSWER_SENT"
	StageAnswerReceived HandshakeStage = "ANSWER_RECEIVED"
)

// Handshake: room_state:{roomId}에 저장되는 핸드셰이크 진행 레코드
type Handshake struct {
	Stage HandshakeStage `json:"stage"`
	From  string         `json:"from"` // 오퍼를 시작한 사용자
	Ts    int64          `json:"ts"`   // 마지막 단계 전이 시각 (unix ms)
}

// CanAdvance: 현재 단계에서 next 단계로의 전이가 허용되는지 확인한다.
func (h Handshake) CanAdvance(next HandshakeStage) bool {
	switch h.Stage {
	case StageOfferSent:
		return next == StageOfferReceived || next == StageAnswerSent
	case StageOfferReceived:
		return next == StageAnswerSent
	case StageAnswerSent:
		return next == StageAnswerReceived
	default:
		return false
	}
}
