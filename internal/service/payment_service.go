package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGMysticBot/internal/metrics"
	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/repository"
)

const (
	starsCurrency = "XTR"
	packPayload   = "pack:"
)

var ErrPackNotFound = errors.New("pack not found")

// TelegramAPI is the part of *tgbotapi.BotAPI the payment flow needs.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

type PaymentService struct {
	log       *slog.Logger
	api       TelegramAPI
	packs     *PackService
	purchases *repository.PurchaseRepository
	users     *repository.UserRepository
}

// PaymentResult describes a processed successful_payment update.
type PaymentResult struct {
	Pack         *models.Pack
	CreditsAdded int
	Duplicate    bool
}

func NewPaymentService(log *slog.Logger, api TelegramAPI, packs *PackService, purchases *repository.PurchaseRepository, users *repository.UserRepository) *PaymentService {
	return &PaymentService{log: log, api: api, packs: packs, purchases: purchases, users: users}
}

func invoiceDescription(pack *models.Pack) string {
	return fmt.Sprintf("%s. Начислим +%d генераций.", pack.Description, pack.Credits)
}

// SendInvoice posts a Stars invoice for the pack into the chat.
func (s *PaymentService) SendInvoice(ctx context.Context, chatID int64, packCode string) error {
	pack, err := s.packs.Active(ctx, packCode)
	if err != nil {
		return err
	}
	if pack == nil {
		return ErrPackNotFound
	}

	invoice := tgbotapi.NewInvoice(chatID,
		pack.Title,
		invoiceDescription(pack),
		packPayload+pack.Code,
		"",
		"",
		starsCurrency,
		[]tgbotapi.LabeledPrice{{Label: pack.Title, Amount: pack.Stars}},
	)
	// A nil slice is serialised as null, which the Bot API rejects.
	invoice.SuggestedTipAmounts = []int{}

	if _, err := s.api.Send(invoice); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	return nil
}

// InvoiceLink creates a shareable Stars invoice link for the mini-app.
func (s *PaymentService) InvoiceLink(ctx context.Context, packCode string) (string, *models.Pack, error) {
	pack, err := s.packs.Active(ctx, packCode)
	if err != nil {
		return "", nil, err
	}
	if pack == nil {
		return "", nil, ErrPackNotFound
	}

	params := tgbotapi.Params{}
	params["title"] = pack.Title
	params["description"] = invoiceDescription(pack)
	params["payload"] = packPayload + pack.Code
	params["provider_token"] = ""
	params["currency"] = starsCurrency
	if err := params.AddInterface("prices", []tgbotapi.LabeledPrice{{Label: pack.Title, Amount: pack.Stars}}); err != nil {
		return "", nil, fmt.Errorf("encode prices: %w", err)
	}

	resp, err := s.api.MakeRequest("createInvoiceLink", params)
	if err != nil {
		return "", nil, fmt.Errorf("create invoice link: %w", err)
	}
	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", nil, fmt.Errorf("decode invoice link: %w", err)
	}
	return link, pack, nil
}

func (s *PaymentService) HandlePreCheckout(query *tgbotapi.PreCheckoutQuery) error {
	response := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}
	if _, err := s.api.Request(response); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return nil
}

// HandleSuccessfulPayment grants the pack's credits once per Telegram charge id.
// A failed grant leaves no purchase row behind, so a redelivery can retry it.
// The spent-stars counter is informational and its failure is only logged.
func (s *PaymentService) HandleSuccessfulPayment(ctx context.Context, userID int64, payment *tgbotapi.SuccessfulPayment) (*PaymentResult, error) {
	res := &PaymentResult{}
	code, _ := strings.CutPrefix(payment.InvoicePayload, packPayload)
	if code != "" {
		pack, err := s.packs.repo.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("get pack: %w", err)
		}
		res.Pack = pack
	}
	if res.Pack != nil {
		res.CreditsAdded = res.Pack.Credits
	}

	record := &models.Purchase{
		UserID:       userID,
		Payload:      payment.InvoicePayload,
		Stars:        payment.TotalAmount,
		CreditsAdded: res.CreditsAdded,
		ChargeID:     payment.TelegramPaymentChargeID,
	}
	if res.Pack != nil {
		record.PackID = &res.Pack.ID
	}
	if err := s.purchases.Record(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicatePurchase) {
			s.log.Warn("duplicate payment ignored", "user_id", userID, "charge_id", payment.TelegramPaymentChargeID)
			metrics.RecordPurchase("duplicate")
			res.Duplicate = true
			return res, nil
		}
		s.log.Error("record purchase failed", "user_id", userID, "charge_id", payment.TelegramPaymentChargeID, "credits", res.CreditsAdded, "err", err)
		metrics.RecordPurchase("error")
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	if payment.TotalAmount > 0 {
		if err := s.users.RecordSpend(ctx, userID, payment.TotalAmount); err != nil {
			s.log.Error("record spent stars failed", "user_id", userID, "stars", payment.TotalAmount, "err", err)
		}
	}

	metrics.RecordPurchase("ok")
	s.log.Info("payment processed", "user_id", userID, "payload", payment.InvoicePayload, "stars", payment.TotalAmount, "credits", res.CreditsAdded)
	return res, nil
}
