package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/vocabreview/pkg/models"
)

var study = models.Item{ID: "学", Level: 1, Text: "学", Pronunciation: "xué", Meaning: "to study; to learn / school"}

func TestMatchMeaning(t *testing.T) {
	assert.True(t, MatchMeaning(study.Meaning, "study"))
	assert.True(t, MatchMeaning(study.Meaning, "  To Learn! "))
	assert.True(t, MatchMeaning(study.Meaning, "school"))
	assert.False(t, MatchMeaning(study.Meaning, "teach"))
	assert.False(t, MatchMeaning(study.Meaning, ""))
	assert.False(t, MatchMeaning("", "study"))
}

func TestJudgeLocalOnly(t *testing.T) {
	j := NewTranslationJudge(Config{}, nil)
	assert.True(t, j.Judge(context.Background(), study, "learn").Correct)

	v := j.Judge(context.Background(), study, "read")
	assert.False(t, v.Correct)
	assert.False(t, v.ByModel)
	assert.Equal(t, study.Meaning, v.Feedback)
}

func TestJudgeAsksModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"CORRECT\nClose synonym."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	j := NewTranslationJudge(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	v := j.Judge(context.Background(), study, "studying")
	assert.True(t, v.Correct)
	assert.True(t, v.ByModel)
	assert.Equal(t, "Close synonym.", v.Feedback)
}

func TestJudgeFallsBackOnModelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	j := NewTranslationJudge(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	v := j.Judge(context.Background(), study, "studying")
	assert.False(t, v.Correct)
	assert.False(t, v.ByModel)
}

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict("wrong\nThat means teach.")
	require.NoError(t, err)
	assert.False(t, v.Correct)
	assert.Equal(t, "That means teach.", v.Feedback)

	_, err = parseVerdict("maybe")
	assert.Error(t, err)
}
