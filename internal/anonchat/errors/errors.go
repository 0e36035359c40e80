package errors

import (
	"errors"
	"fmt"
	"time"
)

// BannedError 는 제재 중인 사용자의 매칭 시도 시 발생한다.
type BannedError struct {
	UserID     string
	RetryAfter time.Duration
}

func (e BannedError) Error() string {
	return fmt.Sprintf("user banned: %s retry_after=%s", e.UserID, e.RetryAfter)
}

// BusyError 는 같은 사용자의 동작이 이미 처리 중일 때 발생한다.
type BusyError struct {
	UserID string
}

func (e BusyError) Error() string { return fmt.Sprintf("user action in progress: %s", e.UserID) }

// AlreadyWaitingError 는 대기 중인 사용자가 다시 join을 보낼 때 발생한다.
type AlreadyWaitingError struct {
	UserID string
}

func (e AlreadyWaitingError) Error() string { return fmt.Sprintf("already waiting: %s", e.UserID) }

// RoomNotFoundError 는 방이 없거나 만료되었을 때 발생한다.
type RoomNotFoundError struct {
	RoomID string
}

func (e RoomNotFoundError) Error() string { return fmt.Sprintf("room not found: %s", e.RoomID) }

// NotInRoomError 는 방에 속하지 않은 사용자의 방 동작 시 발생한다.
type NotInRoomError struct {
	UserID string
}

func (e NotInRoomError) Error() string { return fmt.Sprintf("not in room: %s", e.UserID) }

// SelfReportError 는 자기 자신을 신고하려 할 때 발생한다.
type SelfReportError struct {
	UserID string
}

func (e SelfReportError) Error() string { return fmt.Sprintf("self report rejected: %s", e.UserID) }

// DeliveryFailedError 는 시그널링 메시지 전달이 재시도 끝에 실패했을 때 발생한다.
type DeliveryFailedError struct {
	RoomID string
	Event  string
}

func (e DeliveryFailedError) Error() string {
	return fmt.Sprintf("delivery failed room=%s event=%s", e.RoomID, e.Event)
}

// LLMFailureError 는 봇 응답 생성이 실패했을 때 발생한다.
type LLMFailureError struct {
	Err error
}

func (e LLMFailureError) Error() string {
	if e.Err == nil {
		return "llm generation failed"
	}
	return fmt.Sprintf("llm generation failed: %v", e.Err)
}

func (e LLMFailureError) Unwrap() error { return e.Err }

// IsExpectedUserBehavior 는 에러가 사용자의 정상적인 패턴 내 동작인지 확인한다.
func IsExpectedUserBehavior(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.As(err, new(BannedError)):
		return true
	case errors.As(err, new(BusyError)):
		return true
	case errors.As(err, new(AlreadyWaitingError)):
		return true
	case errors.As(err, new(RoomNotFoundError)):
		return true
	case errors.As(err, new(NotInRoomError)):
		return true
	case errors.As(err, new(SelfReportError)):
		return true
	default:
		return false
	}
}
