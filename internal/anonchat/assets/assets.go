package assets

import _ "embed" // 에셋 임베드용

// MatchClaimLua: 대기 큐 스캔과 방 생성을 원자적으로 수행하는 매칭 Lua 스크립트입니다.
//
//go:embed lua/match_claim.lua
var MatchClaimLua string
