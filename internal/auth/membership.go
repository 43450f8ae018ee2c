package auth

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChatMemberGetter is the slice of *tgbotapi.BotAPI used for membership lookups.
type ChatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// ChannelMembership answers whether a user belongs to one public channel.
// The bot must be an administrator of the channel for lookups to succeed.
type ChannelMembership struct {
	api     ChatMemberGetter
	channel string
}

func NewChannelMembership(api ChatMemberGetter, channelUsername string) *ChannelMembership {
	return &ChannelMembership{api: api, channel: channelUsername}
}

func (m *ChannelMembership) IsMember(_ context.Context, userID int64) (bool, error) {
	if m.channel == "" {
		return false, fmt.Errorf("channel not configured")
	}
	cfg := tgbotapi.ChatConfigWithUser{
		SuperGroupUsername: m.channel,
		UserID:             userID,
	}
	member, err := m.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: cfg})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}

	switch strings.ToLower(member.Status) {
	case "creator", "administrator", "member":
		return true, nil
	case "restricted":
		return member.IsMember, nil
	default:
		return false, nil
	}
}
