package bot

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/example/vocabreview/internal/ai"
	"github.com/example/vocabreview/internal/database"
	"github.com/example/vocabreview/internal/mastery"
	"github.com/example/vocabreview/internal/pronunciation"
	"github.com/example/vocabreview/internal/quiz"
	"github.com/example/vocabreview/internal/session"
	"github.com/example/vocabreview/internal/spaced_repetition"
	"github.com/example/vocabreview/pkg/models"
)

// API is the part of the Telegram client the bot uses. *tgbotapi.BotAPI implements it.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// ItemStore provides the vocabulary of each level
type ItemStore interface {
	LoadItems(ctx context.Context, level int) ([]models.Item, error)
	CountByLevel(ctx context.Context) ([]database.LevelCount, error)
}

// SettingsStore keeps what each user last chose
type SettingsStore interface {
	Get(ctx context.Context, userID int64) (models.UserSettings, error)
	Save(ctx context.Context, s models.UserSettings) error
}

// ResultStore keeps finished sessions
type ResultStore interface {
	Save(ctx context.Context, res models.SessionResult) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.SessionResult, error)
	StatsForUser(ctx context.Context, userID int64) (database.Stats, error)
}

// Judge grades typed translations
type Judge interface {
	Judge(ctx context.Context, item models.Item, answer string) ai.Verdict
}

// DueChecker sends a user their reminder on demand and reports how many items are due.
// *scheduler.Scheduler implements it.
type DueChecker interface {
	RunManualCheck(ctx context.Context, settings models.UserSettings) (int, error)
}

// Deps are the services the bot talks to. Assessor may be nil, which disables speaking mode.
type Deps struct {
	Items    ItemStore
	Settings SettingsStore
	Results  ResultStore
	Mastery  mastery.Persister
	Assessor pronunciation.Assessor
	Judge    Judge
	Logger   *zap.Logger
}

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// chatState is everything the bot holds for one user. mu serializes the user's updates.
type chatState struct {
	mu       sync.Mutex
	userID   int64
	chatID   int64
	lastSeen time.Time
	evicted  bool
	settings models.UserSettings
	store    *mastery.Store
	ctrl     *session.Controller
	picker   *quiz.Picker
	rng      *rand.Rand
	items    []models.Item // level items of the running session, used for distractors
	question *quiz.Question
}

// Bot represents the Telegram bot application
type Bot struct {
	api        API
	config     *Config
	deps       Deps
	logger     *zap.Logger
	selector   *spaced_repetition.Selector
	httpClient *http.Client
	now        func() time.Time
	newRand    func() *rand.Rand
	due        DueChecker

	mu    sync.Mutex
	chats map[int64]*chatState
}

// NewAPI connects to Telegram
func NewAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create bot")
	}
	api.Debug = debug
	return api, nil
}

// New creates a new bot instance
func New(api API, config *Config, deps Deps) *Bot {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Judge == nil {
		deps.Judge = ai.NewTranslationJudge(ai.Config{}, deps.Logger)
	}

	selector := spaced_repetition.NewSelector()
	selector.ReviewedSubsetThreshold = config.ReviewedSubsetThreshold
	if config.WindowFactor > 0 {
		selector.WindowFactor = config.WindowFactor
	}

	return &Bot{
		api:        api,
		config:     config,
		deps:       deps,
		logger:     deps.Logger,
		selector:   selector,
		httpClient: &http.Client{Timeout: config.VoiceTimeout},
		now:        time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		chats: make(map[int64]*chatState),
	}
}

// Run handles updates until ctx is cancelled or the channel closes.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	var evict <-chan time.Time
	if b.config.IdleTimeout > 0 && b.config.EvictInterval > 0 {
		ticker := time.NewTicker(b.config.EvictInterval)
		defer ticker.Stop()
		evict = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-evict:
			b.evictIdle(b.now())
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						b.logger.Error("panic while handling update",
							zap.Int("update_id", update.UpdateID), zap.Any("panic", r))
					}
				}()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// Close flushes pending mastery writes of every user
func (b *Bot) Close() {
	b.mu.Lock()
	chats := make([]*chatState, 0, len(b.chats))
	for _, st := range b.chats {
		chats = append(chats, st)
	}
	b.chats = make(map[int64]*chatState)
	b.mu.Unlock()

	for _, st := range chats {
		st.store.Close()
	}
	b.logger.Info("bot stopped", zap.Int("users", len(chats)))
}

// SetDueChecker enables "/remind now". The scheduler needs the bot as its notifier,
// so it is attached after both exist.
func (b *Bot) SetDueChecker(d DueChecker) {
	b.due = d
}

// evictIdle drops users that sent nothing for IdleTimeout and flushes their
// mastery writes. Users with an update in progress are skipped.
func (b *Bot) evictIdle(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var idle []*chatState
	for userID, st := range b.chats {
		if !st.mu.TryLock() {
			continue
		}
		if now.Sub(st.lastSeen) >= b.config.IdleTimeout {
			st.evicted = true
			delete(b.chats, userID)
			idle = append(idle, st)
		}
		st.mu.Unlock()
	}

	// Closing under b.mu keeps a returning user from loading records before they are flushed
	for _, st := range idle {
		st.store.Close()
	}
	if len(idle) > 0 {
		b.logger.Info("evicted idle users", zap.Int("users", len(idle)), zap.Int("remaining", len(b.chats)))
	}
	return len(idle)
}

// SendReminders implements the scheduler.Notifier interface
func (b *Bot) SendReminders(userID int64, count int) error {
	noun := "items"
	if count == 1 {
		noun = "item"
	}
	// In private chats the chat ID is the user ID
	text := fmt.Sprintf("You have %d %s due for review.", count, noun)
	if err := b.send(userID, text, createKeyboard([][]MenuButton{{{Text: "Review now", CallbackData: cbReview}}})); err != nil {
		return errors.Wrap(err, "failed to send reminder")
	}
	return nil
}

// chat returns the state of a user, loading settings and mastery on first use.
func (b *Bot) chat(ctx context.Context, userID, chatID int64) (*chatState, error) {
	b.mu.Lock()
	st, ok := b.chats[userID]
	b.mu.Unlock()
	if ok {
		return st, nil
	}

	settings, err := b.deps.Settings.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load settings")
	}
	store := mastery.NewStore(userID, b.deps.Mastery,
		mastery.WithLogger(b.logger),
		mastery.WithClock(b.now))
	if err := store.Load(ctx); err != nil {
		store.Close()
		return nil, err
	}

	rng := b.newRand()
	st = &chatState{
		userID:   userID,
		chatID:   chatID,
		lastSeen: b.now(),
		settings: settings,
		store:    store,
		picker:   quiz.NewPicker(b.config.DistractorCount),
		rng:      rng,
	}
	st.ctrl = session.NewController(userID, settings.Level, store,
		session.WithClock(b.now),
		session.WithRand(rng),
		session.WithSelector(b.selector))
	st.ctrl.OnComplete = func(res models.SessionResult) {
		b.finish(st, res)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.chats[userID]; ok {
		// another update of the same user got here first
		store.Close()
		return existing, nil
	}
	b.chats[userID] = st
	b.logger.Debug("user loaded", zap.Int64("user_id", userID), zap.Int("records", store.Len()), zap.Int("users", len(b.chats)))
	return st, nil
}

// lockChat returns the locked state of a user, retrying if it was evicted meanwhile.
func (b *Bot) lockChat(ctx context.Context, userID, chatID int64) (*chatState, error) {
	for {
		st, err := b.chat(ctx, userID, chatID)
		if err != nil {
			return nil, err
		}
		st.mu.Lock()
		if !st.evicted {
			st.chatID = chatID
			st.lastSeen = b.now()
			return st, nil
		}
		st.mu.Unlock()
	}
}

func (b *Bot) saveSettings(ctx context.Context, st *chatState) error {
	st.settings.UserID = st.userID
	if err := b.deps.Settings.Save(ctx, st.settings); err != nil {
		b.logger.Error("failed to save settings", zap.Int64("user_id", st.userID), zap.Error(err))
		return err
	}
	return nil
}

func (b *Bot) send(chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
		return err
	}
	return nil
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Debug("failed to answer callback", zap.Error(err))
	}
}
