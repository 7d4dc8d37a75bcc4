package pronunciation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/vocabreview/pkg/models"
)

// ErrAssessorUnavailable is returned when no recognition service is configured or it cannot be reached.
var ErrAssessorUnavailable = errors.New("pronunciation: assessor unavailable")

// Assessor grades a recording of an item being read aloud.
type Assessor interface {
	Analyze(ctx context.Context, audio []byte, item models.Item) ([]CharacterAssessment, error)
}

// Config holds the recognition service configuration
type Config struct {
	// URL of the service that turns audio into pinyin
	URL string
	// RequestsPerSecond bounds calls to the service; <= 0 disables pacing
	RequestsPerSecond float64
	// Timeout is the HTTP timeout per request
	Timeout time.Duration
}

// HTTPAssessor posts the recording as multipart "file" and compares the returned pinyin.
type HTTPAssessor struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewHTTPAssessor creates an assessor for the given service.
func NewHTTPAssessor(config Config, logger *zap.Logger) *HTTPAssessor {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &HTTPAssessor{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
	if config.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return a
}

// recognitionResponse accepts both shapes the service is known to answer with.
type recognitionResponse struct {
	Pinyin []string `json:"pinyin"`
	Tokens []string `json:"tokens"`
}

// Analyze sends the audio to the service and grades each character of the item.
func (a *HTTPAssessor) Analyze(ctx context.Context, audio []byte, item models.Item) ([]CharacterAssessment, error) {
	if a.config.URL == "" {
		return nil, ErrAssessorUnavailable
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limit wait")
		}
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "voice.ogg")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create form file")
	}
	if _, err := part.Write(audio); err != nil {
		return nil, errors.Wrap(err, "failed to write audio")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, &body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Warn("pinyin service request failed", zap.String("item_id", item.ID), zap.Error(err))
		return nil, errors.Wrap(ErrAssessorUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Wrapf(ErrAssessorUnavailable, "status %d: %s", resp.StatusCode, string(msg))
	}

	var parsed recognitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "failed to decode pinyin response")
	}
	heard := parsed.Pinyin
	if len(heard) == 0 {
		heard = parsed.Tokens
	}

	results := Compare(item.Text, Split(item.Pronunciation), heard)
	a.logger.Debug("pronunciation assessed",
		zap.String("item_id", item.ID),
		zap.Strings("heard", heard),
		zap.Bool("correct", AllCorrect(results)))
	return results, nil
}
