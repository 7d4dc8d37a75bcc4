package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/example/vocabreview/internal/pronunciation"
	"github.com/example/vocabreview/internal/session"
	"github.com/example/vocabreview/internal/spaced_repetition"
	"github.com/example/vocabreview/pkg/models"
)

// Callback data
const (
	cbMenu   = "menu"
	cbStats  = "stats"
	cbReview = "review"
	cbRetry  = "retry"
	cbPrev   = "nav:prev"
	cbNext   = "nav:next"

	cbModePrefix   = "mode:"
	cbAnswerPrefix = "ans:"
	cbRatePrefix   = "rate:"
)

const helpText = `Commands:
/quiz - multiple-choice meaning review
/speak - read characters aloud (send a voice message)
/translate - type the meaning
/review - start a session in your last mode
/level N - switch level (0 is your custom deck)
/size N|ALL - items per session
/hide on|off - skip items you answered correctly last time
/remind on|off - review reminders
/remind now - check for due items right away
/levels - list levels
/stats - your statistics
/prev, /next - move inside a session
/rate 1-5 - how well you know the current item (5 is best)
/retry - repeat the last session setup`

const errStorage = "Storage is unavailable right now, please try again later."

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil && update.Message.Chat != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	st, err := b.lockChat(ctx, message.From.ID, chatID)
	if err != nil {
		b.logger.Error("failed to load user", zap.Int64("user_id", message.From.ID), zap.Error(err))
		b.send(chatID, errStorage, nil)
		return
	}
	defer st.mu.Unlock()

	switch {
	case message.IsCommand():
		b.handleCommand(ctx, st, message.Command(), strings.TrimSpace(message.CommandArguments()))
	case message.Voice != nil:
		b.handleVoice(ctx, st, message.Voice.FileID)
	case message.Text != "":
		b.handleText(ctx, st, message.Text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, st *chatState, cmd, args string) {
	switch cmd {
	case "start":
		b.send(st.chatID, "Welcome! Pick a review mode to begin.\n\n"+helpText, createKeyboard(mainMenu()))
	case "help":
		b.send(st.chatID, helpText, nil)
	case "menu":
		b.showMainMenu(st)
	case "quiz":
		b.startSession(ctx, st, models.Recognition)
	case "speak":
		b.startSession(ctx, st, models.Speaking)
	case "translate":
		b.startSession(ctx, st, models.Translation)
	case "review":
		mode := st.settings.Mode
		if args != "" {
			m, err := models.ParseReviewMode(args)
			if err != nil {
				b.send(st.chatID, "Unknown mode. Use quiz, speaking or translation.", nil)
				return
			}
			mode = m
		}
		b.startSession(ctx, st, mode)
	case "retry":
		b.retry(ctx, st)
	case "prev":
		b.navigate(st, false)
	case "next":
		b.navigate(st, true)
	case "rate":
		tier, err := strconv.Atoi(args)
		if err != nil {
			b.send(st.chatID, "Usage: /rate 1-5", nil)
			return
		}
		b.send(st.chatID, b.rate(st, st.ctrl.Cursor(), tier), nil)
	case "level":
		b.handleLevel(ctx, st, args)
	case "size":
		b.handleSize(ctx, st, args)
	case "hide":
		b.handleToggle(ctx, st, args, "Hide recently correct", &st.settings.HideRecentlyCorrect)
	case "remind":
		if strings.EqualFold(args, "now") {
			b.remindNow(ctx, st)
			return
		}
		b.handleToggle(ctx, st, args, "Reminders", &st.settings.NotifyEnabled)
	case "levels":
		b.handleLevels(ctx, st)
	case "stats":
		b.handleStats(ctx, st)
	default:
		b.send(st.chatID, "Unknown command. Use /help to see what I can do.", nil)
	}
}

// handleCallback handles callback queries from buttons
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	st, err := b.lockChat(ctx, cb.From.ID, cb.Message.Chat.ID)
	if err != nil {
		b.logger.Error("failed to load user", zap.Int64("user_id", cb.From.ID), zap.Error(err))
		b.answerCallback(cb.ID, errStorage)
		return
	}
	defer st.mu.Unlock()

	action, arg := parseCallback(cb.Data)
	switch action {
	case cbMenu:
		b.answerCallback(cb.ID, "")
		b.showMainMenu(st)
	case cbStats:
		b.answerCallback(cb.ID, "")
		b.handleStats(ctx, st)
	case cbReview:
		b.answerCallback(cb.ID, "")
		b.startSession(ctx, st, st.settings.Mode)
	case cbRetry:
		b.answerCallback(cb.ID, "")
		b.retry(ctx, st)
	case cbPrev, cbNext:
		b.answerCallback(cb.ID, "")
		b.navigate(st, action == cbNext)
	case cbModePrefix:
		mode, err := models.ParseReviewMode(arg)
		if err != nil {
			b.answerCallback(cb.ID, "Unknown mode")
			return
		}
		b.answerCallback(cb.ID, "")
		b.startSession(ctx, st, mode)
	case cbAnswerPrefix:
		cursor, option, ok := parseAnswer(arg)
		if !ok {
			b.answerCallback(cb.ID, "Invalid answer")
			return
		}
		b.answerCallback(cb.ID, b.handleChoice(st, cursor, option))
	case cbRatePrefix:
		cursor, tier, ok := parseAnswer(arg)
		if !ok {
			b.answerCallback(cb.ID, "Invalid rating")
			return
		}
		b.answerCallback(cb.ID, b.rate(st, cursor, tier))
	default:
		b.answerCallback(cb.ID, "")
	}
}

// parseCallback splits "mode:speaking" into ("mode:", "speaking"). Plain actions have no argument.
func parseCallback(data string) (string, string) {
	for _, prefix := range []string{cbModePrefix, cbAnswerPrefix, cbRatePrefix} {
		if strings.HasPrefix(data, prefix) {
			return prefix, strings.TrimPrefix(data, prefix)
		}
	}
	return data, ""
}

// parseAnswer reads "<cursor>:<option>", also used for "<cursor>:<tier>" ratings.
func parseAnswer(arg string) (int, int, bool) {
	c, o, found := strings.Cut(arg, ":")
	if !found {
		return 0, 0, false
	}
	cursor, err1 := strconv.Atoi(c)
	option, err2 := strconv.Atoi(o)
	if err1 != nil || err2 != nil || cursor < 0 || option < 0 {
		return 0, 0, false
	}
	return cursor, option, true
}

func answerData(cursor, option int) string {
	return fmt.Sprintf("%s%d:%d", cbAnswerPrefix, cursor, option)
}

func rateButtons(cursor int) []MenuButton {
	row := make([]MenuButton, 0, models.MaxTier-models.MinTier+1)
	for tier := models.MinTier; tier <= models.MaxTier; tier++ {
		row = append(row, MenuButton{
			Text:         fmt.Sprintf("%d★", tier),
			CallbackData: fmt.Sprintf("%s%d:%d", cbRatePrefix, cursor, tier),
		})
	}
	return row
}

func mainMenu() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "Quiz", CallbackData: cbModePrefix + models.Recognition.String()}},
		{{Text: "Speaking", CallbackData: cbModePrefix + models.Speaking.String()}},
		{{Text: "Translation", CallbackData: cbModePrefix + models.Translation.String()}},
		{{Text: "Statistics", CallbackData: cbStats}},
	}
}

func (b *Bot) showMainMenu(st *chatState) {
	s := st.settings
	text := fmt.Sprintf("Level %d, %s items per session, hide recently correct: %s.\nChoose a mode:",
		s.Level, s.SessionSize, onOff(s.HideRecentlyCorrect))
	b.send(st.chatID, text, createKeyboard(mainMenu()))
}

func (b *Bot) startSession(ctx context.Context, st *chatState, mode models.ReviewMode) {
	if mode == models.Speaking && b.deps.Assessor == nil {
		b.send(st.chatID, "Speaking mode is not available on this server.", nil)
		return
	}

	if st.settings.Mode != mode {
		st.settings.Mode = mode
		_ = b.saveSettings(ctx, st)
	}
	b.begin(ctx, st, st.settings.Level, st.settings.SessionConfig())
}

func (b *Bot) retry(ctx context.Context, st *chatState) {
	if st.ctrl.State() == session.Idle {
		b.startSession(ctx, st, st.settings.Mode)
		return
	}
	cfg := st.ctrl.Config()
	if cfg.Mode == models.Speaking && b.deps.Assessor == nil {
		b.send(st.chatID, "Speaking mode is not available on this server.", nil)
		return
	}
	b.begin(ctx, st, st.ctrl.Level, cfg)
}

func (b *Bot) begin(ctx context.Context, st *chatState, level int, cfg models.SessionConfig) {
	items, err := b.deps.Items.LoadItems(ctx, level)
	if err != nil {
		b.logger.Error("failed to load items", zap.Int("level", level), zap.Error(err))
		b.send(st.chatID, errStorage, nil)
		return
	}

	st.items = items
	st.question = nil
	st.picker.Reset()
	st.ctrl.Level = level
	st.ctrl.StartWithConfig(items, cfg)

	b.logger.Info("session started",
		zap.Int64("user_id", st.userID),
		zap.Int("level", level),
		zap.String("mode", cfg.Mode.String()),
		zap.String("session_id", st.ctrl.ID()),
		zap.Int("items", st.ctrl.Len()))

	if st.ctrl.State() == session.Active {
		b.sendCurrent(st)
	}
}

// finish runs when a session completes. The caller holds st.mu.
func (b *Bot) finish(st *chatState, res models.SessionResult) {
	st.question = nil
	if res.Total == 0 {
		b.send(st.chatID, fmt.Sprintf("Nothing to review in level %d right now.", res.Level), createKeyboard(mainMenu()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.deps.Results.Save(ctx, res); err != nil {
		b.logger.Error("failed to save session result",
			zap.Int64("user_id", res.UserID), zap.String("session_id", res.ID), zap.Error(err))
	}
	b.send(st.chatID, formatResult(res), createKeyboard([][]MenuButton{
		{{Text: "Retry", CallbackData: cbRetry}, {Text: "Menu", CallbackData: cbMenu}},
	}))
}

func formatResult(res models.SessionResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session complete: %d/%d correct (%d%%)\n", res.Correct, res.Total, res.Percentage())
	fmt.Fprintf(&sb, "Time: %s\n", res.Duration().Round(time.Second))
	if len(res.Mistakes) > 0 {
		sb.WriteString("\nReview these:\n")
		for _, it := range res.Mistakes {
			fmt.Fprintf(&sb, "%s (%s) - %s\n", it.Text, it.Pronunciation, it.Meaning)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func navButtons() []MenuButton {
	return []MenuButton{{Text: "« Prev", CallbackData: cbPrev}, {Text: "Next »", CallbackData: cbNext}}
}

// sendCurrent shows the item under the cursor in the session's mode.
func (b *Bot) sendCurrent(st *chatState) {
	item, ok := st.ctrl.Current()
	if !ok {
		return
	}
	cursor := st.ctrl.Cursor()
	header := fmt.Sprintf("%d/%d", cursor+1, st.ctrl.Len())
	if prev, answered := st.ctrl.Answer(cursor); answered {
		header += " (answered: " + mark(prev.Correct) + ")"
	}

	switch st.ctrl.Mode() {
	case models.Recognition:
		q := st.picker.NewQuestion(item, st.items, st.rng)
		st.question = &q
		rows := make([][]MenuButton, 0, len(q.Options)+1)
		for i, opt := range q.Options {
			rows = append(rows, []MenuButton{{Text: opt.Meaning, CallbackData: answerData(cursor, i)}})
		}
		rows = append(rows, rateButtons(cursor), navButtons())
		b.send(st.chatID, fmt.Sprintf("%s\n\n%s\n%s", header, item.Text, item.Pronunciation), createKeyboard(rows))
	case models.Speaking:
		st.question = nil
		b.send(st.chatID, fmt.Sprintf("%s\n\n%s\n%s\n\nSend a voice message reading it aloud.", header, item.Text, item.Meaning),
			createKeyboard([][]MenuButton{rateButtons(cursor), navButtons()}))
	case models.Translation:
		st.question = nil
		b.send(st.chatID, fmt.Sprintf("%s\n\n%s\n%s\n\nType the meaning.", header, item.Text, item.Pronunciation),
			createKeyboard([][]MenuButton{rateButtons(cursor), navButtons()}))
	}
}

func (b *Bot) navigate(st *chatState, forward bool) {
	if st.ctrl.State() != session.Active {
		b.send(st.chatID, "No session is running. Use /review to start one.", nil)
		return
	}
	if forward {
		st.ctrl.Advance()
	} else {
		st.ctrl.Retreat()
	}
	if st.ctrl.State() == session.Active {
		b.sendCurrent(st)
	}
}

// handleChoice records a recognition answer and returns the callback toast.
func (b *Bot) handleChoice(st *chatState, cursor, option int) string {
	q := st.question
	if st.ctrl.State() != session.Active || st.ctrl.Mode() != models.Recognition ||
		q == nil || cursor != st.ctrl.Cursor() || option >= len(q.Options) {
		return "This question has expired"
	}

	correct := q.IsCorrect(option)
	if err := st.ctrl.RecordAnswer(correct, q.Options[option]); err != nil {
		return "This question has expired"
	}
	feedback := "Correct!"
	if !correct {
		feedback = fmt.Sprintf("%s means %s", q.Item.Text, q.Item.Meaning)
	}
	b.send(st.chatID, mark(correct)+" "+feedback, nil)
	b.next(st)
	return feedback
}

// rate stores a self-assessed tier for the item at cursor and returns the reply.
func (b *Bot) rate(st *chatState, cursor, tier int) string {
	if st.ctrl.State() != session.Active || cursor != st.ctrl.Cursor() {
		return "This item is no longer shown"
	}
	if tier < models.MinTier || tier > models.MaxTier {
		return fmt.Sprintf("Rate from %d to %d", models.MinTier, models.MaxTier)
	}
	item, _ := st.ctrl.Current()
	rec, err := st.ctrl.Rate(tier)
	if err != nil {
		return "This item is no longer shown"
	}
	return fmt.Sprintf("%s: mastery %d/%d", item.Text, rec.Tier, models.MaxTier)
}

func (b *Bot) handleText(ctx context.Context, st *chatState, text string) {
	item, ok := st.ctrl.Current()
	if st.ctrl.State() != session.Active || st.ctrl.Mode() != models.Translation || !ok {
		b.send(st.chatID, "Use /help to see what I can do.", nil)
		return
	}

	verdict := b.deps.Judge.Judge(ctx, item, text)
	if err := st.ctrl.RecordAnswer(verdict.Correct, text); err != nil {
		return
	}
	reply := mark(verdict.Correct) + " " + item.Text + ": " + item.Meaning
	if verdict.ByModel && verdict.Feedback != "" {
		reply += "\n" + verdict.Feedback
	}
	b.send(st.chatID, reply, nil)
	b.next(st)
}

func (b *Bot) handleVoice(ctx context.Context, st *chatState, fileID string) {
	item, ok := st.ctrl.Current()
	if st.ctrl.State() != session.Active || st.ctrl.Mode() != models.Speaking || !ok {
		b.send(st.chatID, "Start a speaking session with /speak first.", nil)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.VoiceTimeout)
	defer cancel()

	audio, err := b.download(ctx, fileID)
	if err != nil {
		b.logger.Warn("failed to download voice message", zap.Int64("user_id", st.userID), zap.Error(err))
		b.send(st.chatID, "Could not read your voice message, please send it again.", nil)
		return
	}
	results, err := b.deps.Assessor.Analyze(ctx, audio, item)
	if err != nil {
		b.logger.Warn("pronunciation assessment failed",
			zap.Int64("user_id", st.userID), zap.String("item_id", item.ID), zap.Error(err))
		b.send(st.chatID, "Pronunciation check is unavailable, please try again later.", nil)
		return
	}

	correct := pronunciation.AllCorrect(results)
	if err := st.ctrl.RecordAnswer(correct, results); err != nil {
		return
	}
	b.send(st.chatID, formatAssessment(correct, results), nil)
	b.next(st)
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get file URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download file")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func formatAssessment(correct bool, results []pronunciation.CharacterAssessment) string {
	var sb strings.Builder
	if correct {
		sb.WriteString(mark(true) + " Well pronounced!\n")
	} else {
		sb.WriteString(mark(false) + " Not quite:\n")
	}
	for _, r := range results {
		fmt.Fprintf(&sb, "%s  expected %s, heard %s", r.Char, r.Expected, r.Actual)
		if !r.Correct {
			var wrong []string
			if !r.InitialMatch {
				wrong = append(wrong, "initial")
			}
			if !r.FinalMatch {
				wrong = append(wrong, "final")
			}
			if !r.ToneMatch {
				wrong = append(wrong, "tone")
			}
			if len(wrong) > 0 {
				sb.WriteString(" (" + strings.Join(wrong, ", ") + ")")
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// next moves past an answered item and shows the following one.
func (b *Bot) next(st *chatState) {
	st.ctrl.Advance()
	if st.ctrl.State() == session.Active {
		b.sendCurrent(st)
	}
}

func (b *Bot) handleLevel(ctx context.Context, st *chatState, args string) {
	level, err := strconv.Atoi(args)
	if err != nil || level < 0 {
		b.send(st.chatID, "Usage: /level N (0 is your custom deck)", nil)
		return
	}
	st.settings.Level = level
	if err := b.saveSettings(ctx, st); err != nil {
		b.send(st.chatID, errStorage, nil)
		return
	}
	b.send(st.chatID, fmt.Sprintf("Level set to %d.", level), nil)
}

func (b *Bot) handleSize(ctx context.Context, st *chatState, args string) {
	size, err := models.ParseSessionSize(args)
	if err != nil {
		b.send(st.chatID, "Usage: /size N or /size ALL", nil)
		return
	}
	st.settings.SessionSize = size
	if err := b.saveSettings(ctx, st); err != nil {
		b.send(st.chatID, errStorage, nil)
		return
	}
	b.send(st.chatID, fmt.Sprintf("Session size set to %s.", size), nil)
}

func (b *Bot) handleToggle(ctx context.Context, st *chatState, args, name string, field *bool) {
	switch strings.ToLower(args) {
	case "on":
		*field = true
	case "off":
		*field = false
	case "":
		*field = !*field
	default:
		b.send(st.chatID, "Use on or off.", nil)
		return
	}
	if err := b.saveSettings(ctx, st); err != nil {
		b.send(st.chatID, errStorage, nil)
		return
	}
	b.send(st.chatID, fmt.Sprintf("%s: %s.", name, onOff(*field)), nil)
}

func (b *Bot) remindNow(ctx context.Context, st *chatState) {
	if b.due == nil {
		b.send(st.chatID, "Reminders are not available on this server.", nil)
		return
	}
	count, err := b.due.RunManualCheck(ctx, st.settings)
	if err != nil {
		b.logger.Error("manual reminder check failed", zap.Int64("user_id", st.userID), zap.Error(err))
		b.send(st.chatID, errStorage, nil)
		return
	}
	// a positive count already produced the reminder message
	if count == 0 {
		b.send(st.chatID, "Nothing is due right now.", nil)
	}
}

func (b *Bot) handleLevels(ctx context.Context, st *chatState) {
	counts, err := b.deps.Items.CountByLevel(ctx)
	if err != nil {
		b.logger.Error("failed to count items", zap.Error(err))
		b.send(st.chatID, errStorage, nil)
		return
	}
	if len(counts) == 0 {
		b.send(st.chatID, "No vocabulary has been imported yet.", nil)
		return
	}
	var sb strings.Builder
	sb.WriteString("Levels:\n")
	for _, c := range counts {
		name := fmt.Sprintf("Level %d", c.Level)
		if c.Level == models.CustomLevel {
			name = "Custom deck"
		}
		fmt.Fprintf(&sb, "%s: %d items\n", name, c.Count)
	}
	b.send(st.chatID, strings.TrimRight(sb.String(), "\n"), nil)
}

func (b *Bot) handleStats(ctx context.Context, st *chatState) {
	stats, err := b.deps.Results.StatsForUser(ctx, st.userID)
	if err != nil {
		b.logger.Error("failed to get statistics", zap.Int64("user_id", st.userID), zap.Error(err))
		b.send(st.chatID, errStorage, nil)
		return
	}
	items, err := b.deps.Items.LoadItems(ctx, st.settings.Level)
	if err != nil {
		b.send(st.chatID, errStorage, nil)
		return
	}

	// rated-only records have no review yet and would always score as due
	mode := st.settings.Mode
	var pool []models.Item
	for _, it := range items {
		if rec, ok := st.store.Get(it.Level, it.ID, mode); ok && rec.Reviewed() {
			pool = append(pool, it)
		}
	}
	due := spaced_repetition.CountDue(pool, st.store, mode, b.now(), b.config.DueUrgency)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Level %d (%s): %d of %d items reviewed, %d due\n",
		st.settings.Level, mode, len(pool), len(items), due)
	fmt.Fprintf(&sb, "Sessions: %d, answers: %d, correct: %d%%", stats.Sessions, stats.Answered, stats.Percentage())

	history, err := b.deps.Results.ListByUser(ctx, st.userID, b.config.HistoryLimit)
	if err == nil && len(history) > 0 {
		sb.WriteString("\n\nRecent sessions:")
		for _, r := range history {
			fmt.Fprintf(&sb, "\n%s level %d %s: %d/%d", r.FinishedAt.Format("2006-01-02"), r.Level, r.Mode, r.Correct, r.Total)
		}
	}
	b.send(st.chatID, sb.String(), nil)
}

func mark(correct bool) string {
	if correct {
		return "✅"
	}
	return "❌"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
