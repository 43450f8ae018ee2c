package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/digkill/TGMysticBot/internal/models"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotSubscribed    = errors.New("not subscribed")
	ErrCheckUnavailable = errors.New("membership check unavailable")
)

// Identity is the verified caller behind a mini-app request or a chat update.
type Identity struct {
	UserID       int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
	AuthDate     time.Time
	StartParam   string
}

func (i Identity) Profile() models.Profile {
	return models.Profile{
		UserID:    i.UserID,
		Username:  i.Username,
		FirstName: i.FirstName,
		LastName:  i.LastName,
	}
}

// ValidateInitData checks the WebApp initData signature against the bot token.
// maxAge of zero disables the auth_date freshness check. All failures wrap ErrUnauthorized.
func ValidateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (*Identity, error) {
	if strings.TrimSpace(initData) == "" {
		return nil, fmt.Errorf("%w: missing init data", ErrUnauthorized)
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: parse init data: %v", ErrUnauthorized, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrUnauthorized)
	}

	values.Del("hash")
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+values.Get(key))
	}
	dataCheckString := strings.Join(parts, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheckString))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(hash)
	if err != nil || !hmac.Equal(expected, got) {
		return nil, fmt.Errorf("%w: bad hash", ErrUnauthorized)
	}

	var authDate time.Time
	if raw := values.Get("auth_date"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid auth_date", ErrUnauthorized)
		}
		authDate = time.Unix(sec, 0)
	}
	if maxAge > 0 {
		if authDate.IsZero() {
			return nil, fmt.Errorf("%w: missing auth_date", ErrUnauthorized)
		}
		if now.Sub(authDate) > maxAge {
			return nil, fmt.Errorf("%w: auth_date expired", ErrUnauthorized)
		}
	}

	var identity Identity
	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, fmt.Errorf("%w: missing user", ErrUnauthorized)
	}
	if err := json.Unmarshal([]byte(userJSON), &identity); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrUnauthorized, err)
	}
	if identity.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrUnauthorized)
	}
	identity.AuthDate = authDate
	identity.StartParam = values.Get("start_param")
	return &identity, nil
}
