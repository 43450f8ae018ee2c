package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/digkill/TGMysticBot/internal/auth"
	"github.com/digkill/TGMysticBot/internal/config"
	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/repository"
	"github.com/digkill/TGMysticBot/internal/service"
)

const (
	cbGenerate   = "gen"
	cbPrompts    = "prompts"
	cbProfile    = "profile"
	cbBuy        = "buy"
	cbHelp       = "help"
	cbCheckSub   = "check_sub"
	cbBack       = "back_to_menu"
	cbAspect     = "aspect:"
	cbBuyPack    = "buy_pack:"
	promptsShown = 10
)

// AspectOption is one choice on the aspect ratio keyboard.
type AspectOption struct {
	Label string
	Value string
}

var AspectOptions = []AspectOption{
	{Label: "📱 9:16", Value: "social_story_9_16"},
	{Label: "⬜ 1:1", Value: "square_1_1"},
	{Label: "🖥 16:9", Value: "widescreen_16_9"},
	{Label: "🖼 3:4", Value: "traditional_3_4"},
	{Label: "🏞 4:3", Value: "classic_4_3"},
}

func validAspect(value string) bool {
	for _, opt := range AspectOptions {
		if opt.Value == value {
			return true
		}
	}
	return false
}

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	gate       service.Authorizer
	users      *service.UserService
	generation *service.GenerationService
	promo      *service.PromoService
	payments   *service.PaymentService
	packs      *service.PackService
	prompts    *service.PromptService
	sessions   *SessionStore
	inflight   sync.WaitGroup
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, gate service.Authorizer, users *service.UserService, generation *service.GenerationService, promo *service.PromoService, payments *service.PaymentService, packs *service.PackService, prompts *service.PromptService) *Bot {
	return &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		gate:       gate,
		users:      users,
		generation: generation,
		promo:      promo,
		payments:   payments,
		packs:      packs,
		prompts:    prompts,
		sessions:   NewSessionStore(cfg.SessionTTL),
	}
}

// Run consumes updates until ctx is done, then waits for running generations.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "pre_checkout_query", "channel_post"}

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", "username", b.api.Self.UserName)

	prune := time.NewTicker(time.Minute)
	defer prune.Stop()

	for {
		select {
		case update := <-updates:
			b.handleUpdate(ctx, update)
		case <-prune.C:
			if n := b.sessions.Prune(); n > 0 {
				b.log.Debug("expired sessions pruned", "count", n)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.inflight.Wait()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChannelPost != nil:
		b.handleChannelPost(ctx, update.ChannelPost)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.PreCheckoutQuery != nil:
		if err := b.payments.HandlePreCheckout(update.PreCheckoutQuery); err != nil {
			b.log.Error("pre-checkout failed", "err", err)
		}
	}
}

func (b *Bot) handleChannelPost(ctx context.Context, post *tgbotapi.Message) {
	if post.Chat == nil || !sameChannel(post.Chat.UserName, b.cfg.ChannelUsername) {
		return
	}
	text := post.Text
	if text == "" {
		text = post.Caption
	}
	p, err := b.prompts.Ingest(ctx, post.MessageID, text)
	if err != nil {
		b.log.Error("ingest channel post", "message_id", post.MessageID, "err", err)
		return
	}
	if p != nil {
		b.log.Info("prompt ingested", "prompt_id", p.ID, "message_id", post.MessageID)
	}
}

func sameChannel(chatUsername, configured string) bool {
	if chatUsername == "" || configured == "" {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(chatUsername, "@"), strings.TrimPrefix(configured, "@"))
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	session, ok := b.sessions.Take(msg.From.ID)
	if !ok || session.State != StateAwaitingPrompt {
		b.sendMenu(msg.Chat.ID, "Нажми «🎨 Генерация», выбери формат и пришли промт.")
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		b.sessions.AwaitPrompt(msg.From.ID, session.AspectRatio)
		b.sendText(msg.Chat.ID, "Напиши текст промта ✍️")
		return
	}
	b.startGeneration(msg.Chat.ID, identityOf(msg.From), msg.Text, session.AspectRatio)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "generate":
		if b.admit(ctx, chatID, msg.From) {
			b.askAspect(chatID)
		}
	case "balance", "profile":
		if b.admit(ctx, chatID, msg.From) {
			b.sendProfile(ctx, chatID, msg.From)
		}
	case "buy":
		if b.admit(ctx, chatID, msg.From) {
			b.sendPackMenu(ctx, chatID)
		}
	case "prompts":
		if b.admit(ctx, chatID, msg.From) {
			b.sendPrompts(ctx, chatID)
		}
	case "promo":
		b.handlePromo(ctx, msg)
	case "paysupport":
		b.sendText(chatID, "💬 Поддержка по оплате\n\nЕсли у тебя списались Stars, а генерации не начислились, пришли сюда скрин оплаты и свой @username. Мы разберёмся ✅")
	case "help":
		b.sendHelp(chatID)
	default:
		b.sendText(chatID, "Неизвестная команда. Используй /generate.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	b.sessions.Reset(msg.From.ID)
	reg, err := b.users.Register(ctx, profileOf(msg.From), msg.CommandArguments())
	if err != nil {
		b.log.Error("register user", "user_id", msg.From.ID, "err", err)
		b.sendText(msg.Chat.ID, "Что-то пошло не так, попробуй ещё раз позже.")
		return
	}
	if reg.ReferrerID != 0 {
		b.sendText(reg.ReferrerID, fmt.Sprintf("🎁 У тебя новый друг по ссылке! +%d генерац(ии) добавлено в профиль.", b.cfg.ReferralBonusCredits))
	}
	if reg.Created {
		b.sendText(msg.Chat.ID, fmt.Sprintf("Привет! Дарю %d генерации на старт ✨", b.cfg.StartBonusCredits))
	}
	if b.admit(ctx, msg.Chat.ID, msg.From) {
		b.sendMenu(msg.Chat.ID, "Готово ✅\n\nВыбирай, что делаем:")
	}
}

func (b *Bot) handlePromo(ctx context.Context, msg *tgbotapi.Message) {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		b.sendText(msg.Chat.ID, "Формат: /promo КОД")
		return
	}
	if _, err := b.users.Register(ctx, profileOf(msg.From), ""); err != nil {
		b.log.Error("ensure user promo", "user_id", msg.From.ID, "err", err)
		return
	}
	bonus, err := b.promo.Apply(ctx, msg.From.ID, code)
	switch {
	case err == nil:
		b.sendText(msg.Chat.ID, fmt.Sprintf("Промокод активирован! +%d генераций.", bonus))
	case errors.Is(err, service.ErrPromoInvalid):
		b.sendText(msg.Chat.ID, "Промокод недействителен.")
	case errors.Is(err, repository.ErrPromoAlreadyRedeemed):
		b.sendText(msg.Chat.ID, "Этот промокод уже использован.")
	case errors.Is(err, repository.ErrPromoExhausted):
		b.sendText(msg.Chat.ID, "Лимит активаций промокода исчерпан.")
	default:
		b.log.Error("apply promo", "user_id", msg.From.ID, "err", err)
		b.sendText(msg.Chat.ID, "Не удалось применить промокод, попробуй позже.")
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := b.users.Register(ctx, profileOf(msg.From), ""); err != nil {
		b.log.Error("ensure user payment", "user_id", msg.From.ID, "err", err)
	}
	res, err := b.payments.HandleSuccessfulPayment(ctx, msg.From.ID, msg.SuccessfulPayment)
	if err != nil {
		b.log.Error("process successful payment", "user_id", msg.From.ID, "err", err)
		b.sendText(msg.Chat.ID, "Оплата прошла, но я не смогла начислить генерации автоматически 🙈 Напиши /paysupport")
		return
	}
	if res.Duplicate {
		return
	}
	b.sendMenu(msg.Chat.ID, fmt.Sprintf("✅ Оплата прошла!\nНачислила: +%d генераций\nБаланс обновлён 🔥", res.CreditsAdded))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", "err", err)
	}
	chatID := cb.Message.Chat.ID

	switch data := cb.Data; {
	case data == cbCheckSub:
		if b.admit(ctx, chatID, cb.From) {
			b.sendMenu(chatID, "Готово ✅\n\nВыбирай, что делаем:")
		}
	case data == cbBack:
		b.sessions.Reset(cb.From.ID)
		b.sendMenu(chatID, "Выбирай, что делаем:")
	case data == cbHelp:
		b.sendHelp(chatID)
	case data == cbGenerate:
		if b.admit(ctx, chatID, cb.From) {
			b.askAspect(chatID)
		}
	case strings.HasPrefix(data, cbAspect):
		aspect := strings.TrimPrefix(data, cbAspect)
		if !validAspect(aspect) {
			b.sendText(chatID, "Неизвестный формат, выбери ещё раз.")
			return
		}
		b.sessions.AwaitPrompt(cb.From.ID, aspect)
		b.sendText(chatID, "Отлично! Теперь пришли текст промта ✍️")
	case data == cbPrompts:
		if b.admit(ctx, chatID, cb.From) {
			b.sendPrompts(ctx, chatID)
		}
	case data == cbProfile:
		if b.admit(ctx, chatID, cb.From) {
			b.sendProfile(ctx, chatID, cb.From)
		}
	case data == cbBuy:
		if b.admit(ctx, chatID, cb.From) {
			b.sendPackMenu(ctx, chatID)
		}
	case strings.HasPrefix(data, cbBuyPack):
		if !b.admit(ctx, chatID, cb.From) {
			return
		}
		if _, err := b.users.Register(ctx, profileOf(cb.From), ""); err != nil {
			b.log.Error("ensure user buy", "user_id", cb.From.ID, "err", err)
			return
		}
		err := b.payments.SendInvoice(ctx, chatID, strings.TrimPrefix(data, cbBuyPack))
		switch {
		case errors.Is(err, service.ErrPackNotFound):
			b.sendText(chatID, "Пакет не найден 🙈")
		case err != nil:
			b.log.Error("send invoice", "user_id", cb.From.ID, "err", err)
			b.sendText(chatID, "Не удалось отправить счёт. Попробуй позже.")
		}
	default:
		b.log.Debug("unknown callback", "data", data)
	}
}

// admit applies the channel gate and answers the user when they are turned away.
func (b *Bot) admit(ctx context.Context, chatID int64, from *tgbotapi.User) bool {
	id := identityOf(from)
	err := b.gate.Authorize(ctx, &id)
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrNotSubscribed):
		b.sendGate(chatID)
	case errors.Is(err, auth.ErrCheckUnavailable):
		b.log.Error("membership check unavailable", "user_id", from.ID, "err", err)
		b.sendText(chatID, checkUnavailableText)
	default:
		b.log.Error("authorize", "user_id", from.ID, "err", err)
		b.sendText(chatID, "Что-то пошло не так, попробуй позже.")
	}
	return false
}

// startGeneration runs the coordinator off the update loop; a single request
// can poll the provider for a minute.
func (b *Bot) startGeneration(chatID int64, id auth.Identity, prompt, aspect string) {
	reqID := uuid.NewString()
	b.sendText(chatID, "Запускаю генерацию… ⏳ Обычно это меньше минуты.")

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		ctx := context.Background()
		log := b.log.With("request_id", reqID, "user_id", id.UserID)

		res, err := b.generation.Generate(ctx, service.GenerationRequest{
			Identity:    &id,
			Prompt:      prompt,
			AspectRatio: aspect,
		})
		switch {
		case err == nil && res.Pending():
			b.sendText(chatID, fmt.Sprintf("Генерация ещё идёт ⏳ Результат появится в истории Mini App.\nЗадача: %s", res.TaskID))
		case err == nil:
			b.deliverImage(chatID, res.URL)
		case errors.Is(err, auth.ErrNotSubscribed):
			b.sendGate(chatID)
		case errors.Is(err, service.ErrInsufficientCredits):
			b.sendPackPrompt(ctx, chatID, "Закончились генерации ⚡️ Купи пакет Stars ⭐️")
		default:
			switch {
			case errors.Is(err, service.ErrPromptRequired), errors.Is(err, service.ErrGenerationFailed):
			case errors.Is(err, service.ErrSubmissionFailed):
				log.Warn("generation not started", "err", err)
			default:
				log.Error("generate", "err", err)
			}
			b.sendText(chatID, generationFailureText(err))
		}
	}()
}

const checkUnavailableText = "Не смог проверить подписку 🙈\n\nВажно: добавь бота админом в канал, иначе Telegram не даст проверить участников."

// generationFailureText is the reply for a generation error that needs no keyboard.
func generationFailureText(err error) string {
	switch {
	case errors.Is(err, auth.ErrCheckUnavailable):
		return checkUnavailableText
	case errors.Is(err, service.ErrPromptRequired):
		return "Напиши текст промта ✍️"
	case errors.Is(err, service.ErrGenerationFailed):
		return "Генерация не удалась 😢 Генерацию вернула на баланс."
	case errors.Is(err, service.ErrSubmissionFailed):
		return "Сервис генерации сейчас недоступен 😢 Генерацию вернула на баланс."
	default:
		return "Ошибка генерации 😢 Попробуй позже."
	}
}

func (b *Bot) deliverImage(chatID int64, resultURL string) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(resultURL))
	photo.Caption = "Готово ✅"
	photo.ReplyMarkup = b.menuKeyboard()
	if _, err := b.api.Send(photo); err != nil {
		b.log.Warn("send photo failed, falling back to link", "err", err)
		b.sendText(chatID, "Готово ✅\n"+resultURL)
	}
}

func (b *Bot) askAspect(chatID int64) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, opt := range AspectOptions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(opt.Label, cbAspect+opt.Value)))
	}
	msg := tgbotapi.NewMessage(chatID, "🎨 Выбери формат изображения:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

func (b *Bot) sendProfile(ctx context.Context, chatID int64, from *tgbotapi.User) {
	reg, err := b.users.Register(ctx, profileOf(from), "")
	if err != nil {
		b.log.Error("ensure user profile", "user_id", from.ID, "err", err)
		return
	}
	link := b.users.ReferralLink(from.ID)
	referred, err := b.users.ReferralCount(ctx, from.ID)
	if err != nil {
		b.log.Warn("count referrals", "user_id", from.ID, "err", err)
	}

	msg := tgbotapi.NewMessage(chatID, FormatProfile(reg.User, link, referred))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	shareBot := "https://t.me/share/url?url=" + url.QueryEscape(link) + "&text=" + url.QueryEscape("Держи бот с промтами и генерацией 🔥")
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💫 Купить генерации", cbBuy)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🔗 Поделиться ботом", shareBot)),
	}
	if channel := strings.TrimPrefix(b.cfg.ChannelUsername, "@"); channel != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📣 Канал", "https://t.me/"+channel)))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

// FormatProfile renders the profile card as Telegram HTML.
func FormatProfile(user *models.User, referralLink string, referred int) string {
	var sb strings.Builder
	username := user.Username
	if username == "" {
		username = "без_ника"
	}
	sb.WriteString("👤 <b>Профиль</b>\n\n")
	fmt.Fprintf(&sb, "• ID: <code>%d</code>\n", user.ID)
	fmt.Fprintf(&sb, "• Username: <b>@%s</b>\n", html.EscapeString(username))
	fmt.Fprintf(&sb, "• Генерации: <b>%d</b>\n", user.Credits)
	fmt.Fprintf(&sb, "• Потрачено Stars: <b>%d</b>\n", user.SpentStars)
	if referred > 0 {
		fmt.Fprintf(&sb, "• Приглашено друзей: <b>%d</b>\n", referred)
	}
	if user.LastResultURL != "" {
		fmt.Fprintf(&sb, "\n<b>Последний результат:</b>\n%s\n", html.EscapeString(user.LastResultURL))
	}
	fmt.Fprintf(&sb, "\n🔗 <b>Твоя ссылка для друзей:</b>\n%s", html.EscapeString(referralLink))
	return sb.String()
}

func (b *Bot) sendPackMenu(ctx context.Context, chatID int64) {
	b.sendPackPrompt(ctx, chatID, "💫 Покупка генераций за Telegram Stars\n\nВыбери пакет:")
}

func (b *Bot) sendPackPrompt(ctx context.Context, chatID int64, text string) {
	packs, err := b.packs.List(ctx, true)
	if err != nil {
		b.log.Error("list packs", "err", err)
		b.sendText(chatID, "Не удалось загрузить пакеты, попробуй позже.")
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range packs {
		label := fmt.Sprintf("%s — %d⭐️", p.Title, p.Stars)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, cbBuyPack+p.Code)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", cbBack)))
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

func (b *Bot) sendPrompts(ctx context.Context, chatID int64) {
	items, err := b.prompts.Latest(ctx, promptsShown)
	if err != nil {
		b.log.Error("list prompts", "err", err)
		b.sendText(chatID, "Не удалось загрузить промты, попробуй позже.")
		return
	}
	if len(items) == 0 {
		b.sendText(chatID, "Пока нет промтов. Добавь пост в канал и я подхвачу ✅")
		return
	}
	b.sendText(chatID, FormatPrompts(items))
}

// FormatPrompts lists prompts newest first, each clipped for the chat message limit.
func FormatPrompts(items []models.Prompt) string {
	const maxText = 300
	parts := make([]string, 0, len(items))
	for _, p := range items {
		title := p.Title
		if title == "" {
			title = "Промт"
		}
		text := []rune(p.Text)
		if len(text) > maxText {
			text = append(text[:maxText], '…')
		}
		parts = append(parts, fmt.Sprintf("#%d — %s\n%s", p.ID, title, string(text)))
	}
	return strings.Join(parts, "\n\n")
}

func (b *Bot) sendHelp(chatID int64) {
	b.sendText(chatID, "🆘 Поддержка\n\n• /generate — новая генерация\n• /buy — купить генерации за Stars\n• /balance — профиль и баланс\n• /prompts — свежие промты из канала\n• /promo КОД — активировать промокод\n• /paysupport — вопросы по оплате")
}

func (b *Bot) sendGate(chatID int64) {
	channel := strings.TrimPrefix(b.cfg.ChannelUsername, "@")
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Чтобы пользоваться ботом, подпишись на канал: @%s\n\nПосле подписки нажми «Проверить подписку».", channel))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("✅ Подписаться на канал", "https://t.me/"+channel)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 Проверить подписку", cbCheckSub)),
	)
	b.send(msg)
}

func (b *Bot) menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🎨 Генерация", cbGenerate)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📚 Промты", cbPrompts)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👤 Профиль", cbProfile),
			tgbotapi.NewInlineKeyboardButtonData("💫 Купить", cbBuy),
		),
	}
	if b.cfg.WebAppURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🌐 Открыть Mini App", b.cfg.WebAppURL)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🆘 Поддержка", cbHelp)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) sendMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = b.menuKeyboard()
	b.send(msg)
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "err", err)
	}
}

func identityOf(from *tgbotapi.User) auth.Identity {
	return auth.Identity{
		UserID:       from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
	}
}

func profileOf(from *tgbotapi.User) models.Profile {
	return identityOf(from).Profile()
}
