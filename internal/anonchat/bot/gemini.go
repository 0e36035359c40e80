package bot

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/park285/anonchat-go/internal/anonchat/config"
	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/model"
)

// FallbackReply 는 LLM 호출 실패 시 대신 보내는 응답이다.
const FallbackReply = "Sorry, I'm having trouble responding right now."

// Responder 는 대화 맥락으로 봇 응답을 생성한다.
type Responder interface {
	Reply(ctx context.Context, history []model.RoomMessage, preference model.Gender) (string, error)
}

// GeminiResponder 는 Gemini API 기반 Responder 구현이다.
type GeminiResponder struct {
	client *genai.Client
	model  string
}

// NewGeminiResponder 는 GeminiResponder를 생성한다.
func NewGeminiResponder(ctx context.Context, apiKey, modelID string) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiResponder{client: client, model: modelID}, nil
}

// Reply 는 최근 대화를 맥락으로 짧은 봇 응답을 만든다.
// 비어 있는 응답이나 호출 실패는 LLMFailureError로 감싼다.
func (r *GeminiResponder) Reply(ctx context.Context, history []model.RoomMessage, preference model.Gender) (string, error) {
	contents := buildContents(history)
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(config.BotTemperature)),
		MaxOutputTokens:   config.BotMaxOutputTokens,
		SystemInstruction: genai.NewContentFromText(SystemPrompt(PersonaGender(preference)), genai.RoleUser),
	}

	response, err := r.client.Models.GenerateContent(ctx, r.model, contents, cfg)
	if err != nil {
		return "", acerrors.LLMFailureError{Err: err}
	}
	text := strings.TrimSpace(response.Text())
	if text == "" {
		return "", acerrors.LLMFailureError{Err: fmt.Errorf("empty response")}
	}
	return text, nil
}

// FallbackResponder 는 API 키 없이 기동했을 때 쓰는 Responder다.
// 항상 실패를 반환해 브리지가 고정 폴백 응답을 보내게 한다.
type FallbackResponder struct{}

func (FallbackResponder) Reply(context.Context, []model.RoomMessage, model.Gender) (string, error) {
	return "", acerrors.LLMFailureError{Err: fmt.Errorf("bot responder not configured")}
}

// buildContents 는 히스토리를 역할별 genai 컨텐츠로 변환한다.
// 봇이 보낸 메시지는 model 역할, 나머지는 user 역할이다.
func buildContents(history []model.RoomMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := genai.Role(genai.RoleUser)
		if IsBotID(msg.From) {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Body, role))
	}
	return contents
}
