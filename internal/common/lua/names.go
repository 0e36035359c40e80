package lua

// 매칭 스크립트 이름 상수.
const (
	ScriptMatchClaim = "match_claim"
)
