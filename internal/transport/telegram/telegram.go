// Package telegram implements transport.Adapter over the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration

	// GroupChatID is the community supergroup that hosts forum topics
	// created for create_group jobs.
	GroupChatID int64

	// RatePerSec caps every outbound Bot API call.
	RatePerSec int
}

var _ transport.Adapter = (*Adapter)(nil)

// Adapter wraps telebot for outbound-only use. It never starts the
// update poller; rosterbot consumes no inbound updates.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (a *Adapter) Close() error { return nil }

const telegramTextLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chunks := splitText(text, telegramTextLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}
	var first transport.MessageRef
	for i, chunk := range chunks {
		if err := a.limiter.Wait(ctx); err != nil {
			return first, err
		}
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			if first.ChatID != 0 {
				return first, err
			}
			return transport.MessageRef{}, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// AddMember brings a user into the group. Bots cannot force-join
// arbitrary users, so membership is granted by approving any pending
// join request and delivering a single-use invite link directly to the
// user.
func (a *Adapter) AddMember(ctx context.Context, group transport.ChatTarget, user transport.UserRef) (string, error) {
	chat := &tele.Chat{ID: group.ChatID}

	// A pending join request means the user already knocked; approving
	// finishes the add without an invite message.
	if err := a.approveJoin(ctx, chat, user); err == nil {
		return "join request approved", nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	link, err := a.bot.CreateInviteLink(chat, &tele.ChatInviteLink{
		Name:        inviteName(user),
		MemberLimit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}

	text := fmt.Sprintf("You have been added to the group roster. Join here: %s", link.InviteLink)
	if _, err := a.SendText(ctx, transport.ChatTarget{ChatID: user.UserID}, text, nil); err != nil {
		return "", fmt.Errorf("deliver invite: %w", err)
	}
	return "invite link delivered", nil
}

// CreateGroupSpace creates a forum topic in the configured community
// supergroup and invites its first member.
func (a *Adapter) CreateGroupSpace(ctx context.Context, title string, first transport.UserRef) (transport.ChatTarget, string, error) {
	if a.cfg.GroupChatID == 0 {
		return transport.ChatTarget{}, "", errors.New("telegram group_chat_id is not configured")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.ChatTarget{}, "", err
	}

	chat := &tele.Chat{ID: a.cfg.GroupChatID}
	topic, err := a.bot.CreateTopic(chat, &tele.Topic{Name: title})
	if err != nil {
		return transport.ChatTarget{}, "", fmt.Errorf("create topic: %w", err)
	}
	target := transport.ChatTarget{ChatID: a.cfg.GroupChatID, ThreadID: topic.ThreadID}

	detail, err := a.AddMember(ctx, target, first)
	if err != nil {
		// Topic exists but the first member could not be brought in.
		return target, "", fmt.Errorf("add first member: %w", err)
	}
	return target, fmt.Sprintf("topic created; %s", detail), nil
}

func (a *Adapter) approveJoin(ctx context.Context, chat *tele.Chat, user transport.UserRef) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.bot.ApproveJoinRequest(chat, &tele.User{ID: user.UserID})
}

func inviteName(u transport.UserRef) string {
	if u.Username != "" {
		return "roster:" + u.Username
	}
	return fmt.Sprintf("roster:%d", u.UserID)
}

// splitText splits long messages into chunks Telegram accepts,
// preferring newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}
