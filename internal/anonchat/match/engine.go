// Package match 는 대기 큐 계산과 원자적 매칭 시도를 담당한다.
package match

import (
	"context"
	"log/slog"
	"time"

	"github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

// CandidateQueues 는 (want, gender, preference)로부터 스캔할 후보 큐 목록을 만든다.
// 우선순위 순서: 상호 일치 > 상대가 개방 > 내 성별을 원하는 누구나 > 글로벌 폴백.
// 중복 키는 순서를 보존하며 제거한다.
func CandidateQueues(want model.MatchMode, gender, preference model.Gender) (myQueue string, attempts []string) {
	myQueue = acredis.WaitQueueKey(want, gender, preference)

	candidates := make([]string, 0, 4)
	if preference != model.GenderAny && gender != model.GenderAny {
		candidates = append(candidates, acredis.WaitQueueKey(want, preference, gender))
	}
	if preference != model.GenderAny {
		candidates = append(candidates, acredis.WaitQueueKey(want, preference, model.GenderAny))
	}
	if gender != model.GenderAny {
		candidates = append(candidates, acredis.WaitQueueKey(want, model.GenderAny, gender))
	}
	candidates = append(candidates, acredis.WaitQueueKey(want, model.GenderAny, model.GenderAny))

	seen := make(map[string]struct{}, len(candidates))
	attempts = make([]string, 0, len(candidates))
	for _, queue := range candidates {
		if _, ok := seen[queue]; ok {
			continue
		}
		seen[queue] = struct{}{}
		attempts = append(attempts, queue)
	}
	return myQueue, attempts
}

// GlobalQueue 는 모드별 글로벌 폴백 큐 키를 반환한다.
func GlobalQueue(want model.MatchMode) string {
	return acredis.WaitQueueKey(want, model.GenderAny, model.GenderAny)
}

// Engine 은 후보 큐를 순회하며 매칭을 시도하고, 실패 시 대기 큐 등록을 수행한다.
type Engine struct {
	matches *acredis.MatchStore
	queues  *acredis.QueueStore
	logger  *slog.Logger
	scanCap int
}

// NewEngine 은 Engine을 생성한다.
func NewEngine(matches *acredis.MatchStore, queues *acredis.QueueStore, logger *slog.Logger, scanCap int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if scanCap <= 0 {
		scanCap = config.MatchScanLimit
	}
	return &Engine{matches: matches, queues: queues, logger: logger, scanCap: scanCap}
}

// Result 는 매칭 시도 한 번의 결과다.
type Result struct {
	PartnerID string // 성사 시 상대 ID, 실패 시 빈 문자열
	RoomID    string
	Queue     string // 성사된 큐
}

// TryMatch 는 후보 큐들을 우선순위 순서로 스캔하여 첫 적합 후보를 클레임한다.
// 자기 큐를 스캔할 때는 자신 외 대기자가 있을 때만 시도한다.
// 어떤 큐에서도 성사되지 않으면 빈 PartnerID를 반환한다.
func (e *Engine) TryMatch(ctx context.Context, userID, roomID string, sess model.Session) (Result, error) {
	myQueue, attempts := CandidateQueues(sess.Want, sess.Gender, sess.Preference)
	globalQueue := GlobalQueue(sess.Want)
	requireInterest := len(sess.Interests) > 0

	for _, targetQueue := range attempts {
		if targetQueue == myQueue {
			size, err := e.queues.Size(ctx, targetQueue)
			if err != nil {
				return Result{}, err
			}
			enrolled, err := e.queues.IsMember(ctx, targetQueue, userID)
			if err != nil {
				return Result{}, err
			}
			// 자기 큐에는 자기 자신이 포함될 수 있으므로 등록 여부로 문턱을 조정한다
			threshold := int64(0)
			if enrolled {
				threshold = 1
			}
			if size <= threshold {
				continue
			}
		}

		partnerID, err := e.matches.Claim(ctx, acredis.ClaimRequest{
			TargetQueue:     targetQueue,
			UserID:          userID,
			RoomID:          roomID,
			MyQueue:         myQueue,
			GlobalQueue:     globalQueue,
			Want:            sess.Want,
			RequireInterest: requireInterest,
			MaxScan:         e.scanCap,
		})
		if err != nil {
			return Result{}, err
		}
		if partnerID != "" {
			e.logger.Info("match_claimed",
				"user_id", userID,
				"partner_id", partnerID,
				"queue", targetQueue,
				"room_id", roomID)
			return Result{PartnerID: partnerID, RoomID: roomID, Queue: targetQueue}, nil
		}
	}
	return Result{RoomID: roomID}, nil
}

// Enqueue 는 사용자를 자기 큐와 글로벌 큐에 등록한다.
func (e *Engine) Enqueue(ctx context.Context, userID string, sess model.Session, joinedAt time.Time) (string, error) {
	myQueue, _ := CandidateQueues(sess.Want, sess.Gender, sess.Preference)
	globalQueue := GlobalQueue(sess.Want)
	if err := e.queues.Enqueue(ctx, userID, myQueue, globalQueue, joinedAt); err != nil {
		return "", err
	}
	return myQueue, nil
}

// Dequeue 는 사용자를 관련 큐 전부에서 제거한다.
// 등록 시점의 큐는 멤버십 레코드가 기억하므로 프로필이 바뀌어도 유령 항목이 남지 않는다.
func (e *Engine) Dequeue(ctx context.Context, userID string, sess model.Session) error {
	myQueue, _ := CandidateQueues(sess.Want, sess.Gender, sess.Preference)
	if recorded, ok, err := e.queues.MembershipQueue(ctx, userID); err != nil {
		return err
	} else if ok {
		myQueue = recorded
	}
	return e.queues.Remove(ctx, userID, myQueue, GlobalQueue(sess.Want))
}
