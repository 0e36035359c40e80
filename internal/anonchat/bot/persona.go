// Package bot 은 상대가 없을 때 대화를 이어주는 봇 브리지를 제공한다.
package bot

import (
	"math/rand"
	"strings"

	"github.com/park285/anonchat-go/internal/anonchat/model"
)

// BotIDPrefix 는 봇 참가자 ID의 접두사다.
const BotIDPrefix = "bot:"

var displayNames = []string{
	"Aanya", "Riya", "Anvi", "Kiara", "Myra", "Isha",
	"Aarohi", "Siya", "Kavya", "Mahi", "Zara", "Ayesha",
	"Inaya", "Maria", "Rhea", "Simran", "Gurleen",
}

// RandomName 은 봇의 표시 이름을 하나 고른다.
func RandomName() string {
	return displayNames[rand.Intn(len(displayNames))]
}

// IDForPreference 는 사용자의 상대 선호에 맞는 봇 ID를 반환한다.
func IDForPreference(preference model.Gender) string {
	switch preference {
	case model.GenderMale:
		return "bot:male_1"
	case model.GenderFemale:
		return "bot:female_1"
	default:
		return "bot:neutral_1"
	}
}

// IsBotID 는 참가자 ID가 봇인지 확인한다.
func IsBotID(id string) bool {
	return strings.HasPrefix(id, BotIDPrefix)
}

// PersonaGender 는 봇 성별 설정을 페르소나 표기로 정규화한다.
func PersonaGender(preference model.Gender) string {
	switch preference {
	case model.GenderMale:
		return "male"
	case model.GenderFemale:
		return "female"
	default:
		return "neutral"
	}
}

// SystemPrompt 는 봇 페르소나 지시문을 만든다.
func SystemPrompt(personaGender string) string {
	return strings.TrimSpace(`
You are a chat companion in an anonymous chat app.
You are NOT a real human, but you speak like a friendly Indian stranger.
You use a ` + personaGender + `-style persona (tone and wording only).

Rules:
- Reply in Hinglish (mix of Hindi + English).
- Keep replies VERY short: 3-4 words only.
- Sound casual, natural, and human.
- Sometimes reply with a short question (e.g. "fine, you?", "aur tu?", "Hii", "Hlw").
- Use Indian-style expressions (e.g. "theek hoon", "haan yaar", "sab sahi").
- Avoid cheesy flirting or overacting.

Strictly avoid:
- Saying you are an AI.
- Sharing real personal details (name, age, city, job).
- Long sentences or explanations.
- Formal or robotic language.
`)
}
