package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	member bool
	err    error
	calls  int
}

func (s *stubChecker) IsMember(context.Context, int64) (bool, error) {
	s.calls++
	return s.member, s.err
}

func TestGateAuthorize(t *testing.T) {
	ctx := context.Background()
	user := &Identity{UserID: 7}

	cases := []struct {
		name    string
		cfg     GateConfig
		checker *stubChecker
		id      *Identity
		want    error
		lookups int
	}{
		{"member", GateConfig{Enabled: true}, &stubChecker{member: true}, user, nil, 1},
		{"not member", GateConfig{Enabled: true}, &stubChecker{}, user, ErrNotSubscribed, 1},
		{"gate disabled", GateConfig{Enabled: false}, &stubChecker{}, user, nil, 0},
		{"owner bypass", GateConfig{Enabled: true, OwnerID: 7}, &stubChecker{}, user, nil, 0},
		{"lookup fails open", GateConfig{Enabled: true, FailOpen: true}, &stubChecker{err: errors.New("chat not found")}, user, nil, 1},
		{"lookup fails closed", GateConfig{Enabled: true}, &stubChecker{err: errors.New("chat not found")}, user, ErrCheckUnavailable, 1},
		{"missing identity", GateConfig{Enabled: true}, &stubChecker{member: true}, nil, ErrUnauthorized, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate := NewGate(tc.cfg, tc.checker, nil)
			err := gate.Authorize(ctx, tc.id)
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
				assert.True(t, IsDenied(err))
			}
			assert.Equal(t, tc.lookups, tc.checker.calls)
		})
	}
}

func TestGateAuthenticate(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	gate := NewGate(GateConfig{BotToken: testBotToken, InitDataMaxAge: time.Hour}, nil, nil)
	gate.now = func() time.Time { return now }

	id, err := gate.Authenticate(signInitData(testBotToken, validFields(now)))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UserID)

	_, err = gate.Authenticate("garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

type stubMemberAPI struct {
	status string
	err    error
	got    tgbotapi.GetChatMemberConfig
}

func (s *stubMemberAPI) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	s.got = cfg
	return tgbotapi.ChatMember{Status: s.status}, s.err
}

func TestChannelMembership(t *testing.T) {
	for status, want := range map[string]bool{
		"creator":       true,
		"administrator": true,
		"member":        true,
		"left":          false,
		"kicked":        false,
	} {
		api := &stubMemberAPI{status: status}
		m := NewChannelMembership(api, "@gurenko_kristina_ai")
		ok, err := m.IsMember(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, want, ok, status)
		assert.Equal(t, "@gurenko_kristina_ai", api.got.SuperGroupUsername)
		assert.Equal(t, int64(7), api.got.UserID)
	}

	_, err := NewChannelMembership(&stubMemberAPI{err: errors.New("Bad Request: chat not found")}, "@x").IsMember(context.Background(), 7)
	assert.Error(t, err)
}
