package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/example/vocabreview/pkg/models"
)

// Config holds the OpenAI client configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Verdict is the outcome of judging a typed translation.
type Verdict struct {
	Correct  bool
	Feedback string
	// ByModel is false when the local comparison decided
	ByModel bool
}

// TranslationJudge decides whether a typed answer means the same as an item.
type TranslationJudge struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewTranslationJudge creates a judge. Without an API key only the local comparison is used.
func NewTranslationJudge(cfg Config, logger *zap.Logger) *TranslationJudge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	j := &TranslationJudge{model: cfg.Model, timeout: cfg.Timeout, logger: logger}
	if cfg.APIKey != "" {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		j.client = openai.NewClientWithConfig(clientConfig)
	}
	return j
}

// Judge grades answer against the item. An exact local match never needs the model;
// model errors fall back to the local result.
func (j *TranslationJudge) Judge(ctx context.Context, item models.Item, answer string) Verdict {
	local := MatchMeaning(item.Meaning, answer)
	if local || j.client == nil || strings.TrimSpace(answer) == "" {
		return Verdict{Correct: local, Feedback: item.Meaning}
	}

	verdict, err := j.ask(ctx, item, answer)
	if err != nil {
		j.logger.Warn("translation judge fell back to local comparison",
			zap.String("item_id", item.ID), zap.Error(err))
		return Verdict{Correct: local, Feedback: item.Meaning}
	}
	return verdict
}

func (j *TranslationJudge) ask(ctx context.Context, item models.Item, answer string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Chinese: %s (%s)\nReference meaning: %s\nLearner's translation: %s\n\n"+
			"Reply with CORRECT or WRONG on the first line, then one short sentence of feedback.",
		item.Text, item.Pronunciation, item.Meaning, answer,
	)

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You grade translations of Chinese vocabulary into English. Accept synonyms and minor spelling mistakes."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   60,
		Temperature: 0,
	})
	if err != nil {
		return Verdict{}, errors.Wrap(err, "failed to send request")
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, errors.New("no response choices returned")
	}
	return parseVerdict(resp.Choices[0].Message.Content)
}

func parseVerdict(content string) (Verdict, error) {
	content = strings.TrimSpace(content)
	first, rest, _ := strings.Cut(content, "\n")
	first = strings.ToUpper(strings.TrimSpace(first))

	v := Verdict{Feedback: strings.TrimSpace(rest), ByModel: true}
	switch {
	case strings.HasPrefix(first, "CORRECT"):
		v.Correct = true
	case strings.HasPrefix(first, "WRONG"):
	default:
		return Verdict{}, errors.Errorf("unexpected verdict %q", first)
	}
	return v, nil
}

// MatchMeaning reports whether answer equals one of the meaning's alternatives
// (separated by "," ";" or "/") ignoring case, punctuation and a leading "to ".
func MatchMeaning(meaning, answer string) bool {
	want := normalize(answer)
	if want == "" {
		return false
	}
	for _, alt := range strings.FieldsFunc(meaning, func(r rune) bool {
		return r == ',' || r == ';' || r == '/' || r == '，' || r == '；'
	}) {
		if normalize(alt) == want {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimPrefix(s, "to ")
}
