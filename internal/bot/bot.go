// Package bot drives a classroom from two Telegram chats, one for the teacher and one for the student.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/engclass/internal/classroom"
)

// Sender is the part of the Telegram API the bot uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// role of a chat in the classroom
type role int

const (
	roleNone role = iota
	roleTeacher
	roleStudent
)

// MenuButton represents a button in an inline keyboard
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	return &markup
}

// Bot represents the Telegram transport of one classroom
type Bot struct {
	api     Sender
	room    *classroom.Room
	teacher classroom.Teacher
	student classroom.Student
	config  Config
	logger  *zap.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	lastSeq  uint64
	lastView map[int64]string
}

// Option configures a Bot
type Option func(*Bot)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Bot) { b.logger = l }
}

// New creates a new bot instance
func New(api Sender, room *classroom.Room, cfg Config, opts ...Option) (*Bot, error) {
	if cfg.TeacherChatID == 0 || cfg.StudentChatID == 0 {
		return nil, fmt.Errorf("teacher and student chat ids are required")
	}
	if cfg.TeacherChatID == cfg.StudentChatID {
		return nil, fmt.Errorf("teacher and student must use different chats")
	}
	if cfg.IntakeSize <= 0 {
		cfg.IntakeSize = DefaultConfig().IntakeSize
	}
	if cfg.RateLimit <= 0 || cfg.RateBurst <= 0 {
		cfg.RateLimit, cfg.RateBurst = DefaultConfig().RateLimit, DefaultConfig().RateBurst
	}
	b := &Bot{
		api:      api,
		room:     room,
		teacher:  room.Teacher(),
		student:  room.Student(),
		config:   cfg,
		logger:   zap.NewNop(),
		limiters: make(map[int64]*rate.Limiter),
		lastView: make(map[int64]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Start handles updates and publishes room snapshots until ctx is done or updates closes
func (b *Bot) Start(ctx context.Context, updates <-chan tgbotapi.Update) error {
	snaps, unsubscribe, err := b.room.Subscribe(ctx, 16)
	if err != nil {
		return fmt.Errorf("failed to subscribe to classroom: %w", err)
	}
	defer unsubscribe()

	b.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.HandleUpdate(ctx, update); err != nil {
				return err
			}
		case snap, ok := <-snaps:
			if !ok {
				return classroom.ErrClosed
			}
			b.publish(snap)
		}
	}
}

// HandleUpdate applies one Telegram update to the classroom. Classroom errors are
// reported to the chat; only a closed room is returned.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	chatID, ok := chatOf(update)
	if !ok {
		return nil
	}
	r := b.roleOf(chatID)
	if r == roleNone {
		b.logger.Debug("ignoring update from unknown chat", zap.Int64("chat_id", chatID))
		return nil
	}
	if !b.allow(chatID) {
		b.logger.Debug("rate limited", zap.Int64("chat_id", chatID))
		if update.CallbackQuery != nil {
			b.answerCallback(update.CallbackQuery.ID, "Too fast, try again")
		}
		return nil
	}

	var err error
	switch {
	case update.CallbackQuery != nil:
		b.answerCallback(update.CallbackQuery.ID, "")
		err = b.handleCallback(ctx, r, update.CallbackQuery.Data)
	case update.Message != nil:
		err = b.handleMessage(ctx, r, update.Message)
	}
	if errors.Is(err, classroom.ErrClosed) || errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		b.logger.Info("update rejected", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendText(chatID, describeError(err))
	}
	b.refresh(ctx)
	return nil
}

// SendReminders implements the scheduler.Notifier interface
func (b *Bot) SendReminders(studentID string, count int) error {
	wordForm := "words"
	if count == 1 {
		wordForm = "word"
	}
	text := fmt.Sprintf("🔔 You have %d %s due for review. Your warm-up is waiting!", count, wordForm)
	if err := b.send(tgbotapi.NewMessage(b.config.StudentChatID, text)); err != nil {
		return err
	}
	return b.send(tgbotapi.NewMessage(b.config.TeacherChatID,
		fmt.Sprintf("🔔 %s has %d %s due. Start with /session standard", studentID, count, wordForm)))
}

// refresh publishes the current snapshot
func (b *Bot) refresh(ctx context.Context) {
	snap, err := b.teacher.Snapshot(ctx)
	if err != nil {
		b.logger.Debug("snapshot unavailable", zap.Error(err))
		return
	}
	b.publish(snap)
}

// publish renders a snapshot for both roles; unchanged views and snapshots older than
// the last published one are not sent
func (b *Bot) publish(snap classroom.Snapshot) {
	b.mu.Lock()
	if snap.Seq <= b.lastSeq {
		b.mu.Unlock()
		return
	}
	b.lastSeq = snap.Seq
	b.mu.Unlock()

	b.sendView(b.config.TeacherChatID, renderTeacher(snap))
	b.sendView(b.config.StudentChatID, renderStudent(snap))
}

func (b *Bot) sendView(chatID int64, v view) {
	key := v.key()
	b.mu.Lock()
	if b.lastView[chatID] == key {
		b.mu.Unlock()
		return
	}
	b.lastView[chatID] = key
	b.mu.Unlock()

	msg := tgbotapi.NewMessage(chatID, v.text)
	if v.keyboard != nil {
		msg.ReplyMarkup = v.keyboard
	}
	if err := b.send(msg); err != nil {
		b.logger.Warn("failed to send view", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	if err := b.send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) send(c tgbotapi.Chattable) error {
	if _, err := b.api.Send(c); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Debug("failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) roleOf(chatID int64) role {
	switch chatID {
	case b.config.TeacherChatID:
		return roleTeacher
	case b.config.StudentChatID:
		return roleStudent
	}
	return roleNone
}

func (b *Bot) allow(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[chatID]
	if !ok {
		l = rate.NewLimiter(b.config.RateLimit, b.config.RateBurst)
		b.limiters[chatID] = l
	}
	return l.Allow()
}

func chatOf(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID, true
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, true
	}
	return 0, false
}

func (v view) key() string {
	var sb strings.Builder
	sb.WriteString(v.text)
	if v.keyboard != nil {
		for _, row := range v.keyboard.InlineKeyboard {
			for _, btn := range row {
				sb.WriteString("|")
				if btn.CallbackData != nil {
					sb.WriteString(*btn.CallbackData)
				}
			}
		}
	}
	return sb.String()
}
