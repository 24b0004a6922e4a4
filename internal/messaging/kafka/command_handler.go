package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
)

// ErrUnknownCommand возвращается для команды неизвестного типа.
var ErrUnknownCommand = errors.New("unknown command type")

// ErrPaymentReferenceRequired возвращается, если у платёжной команды нет ни transaction_id, ни command_id,
// и повторная доставка создала бы дубль платежа.
var ErrPaymentReferenceRequired = errors.New("payment command requires transaction_id or command_id")

// CommandService описывает часть ledger.Service, которую вызывает consumer команд.
type CommandService interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	RecordPayment(ctx context.Context, cmd ledger.RecordPaymentCommand) (domain.Order, error)
	TransitionCreditNote(ctx context.Context, cmd ledger.TransitionCreditNoteCommand) (domain.Order, error)
}

// NewCommandHandler возвращает MessageHandler для TopicCommands.
// Ошибки, которые повтор не исправит, возвращаются как PermanentError.
func NewCommandHandler(svc CommandService) MessageHandler {
	logger := log.WithField("component", "kafka-command-handler")

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		cmd, err := ParseCommand(message)
		if err != nil {
			return Permanent(err)
		}

		entry := logger.WithFields(log.Fields{
			"command":  cmd.Type,
			"order_id": cmd.OrderID,
			"offset":   message.Offset,
		})

		switch cmd.Type {
		case CommandRecordPayment:
			err = handleRecordPayment(ctx, svc, cmd)
		case CommandTransitionCreditNote:
			err = handleTransitionCreditNote(ctx, svc, cmd)
		default:
			err = Permanent(fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type))
		}
		if err != nil {
			entry.WithError(err).Warn("command failed")
			return err
		}

		entry.Debug("command applied")
		return nil
	}
}

func handleRecordPayment(ctx context.Context, svc CommandService, cmd *CommandEnvelope) error {
	var payload ledger.RecordPaymentCommand
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return Permanent(fmt.Errorf("decode payment.record payload: %w", err))
	}
	if payload.OrderID == "" {
		payload.OrderID = cmd.OrderID
	}
	if strings.TrimSpace(payload.TransactionID) == "" {
		if cmd.CommandID == "" {
			return Permanent(ErrPaymentReferenceRequired)
		}
		payload.TransactionID = cmd.CommandID
	}

	_, err := svc.RecordPayment(ctx, payload)
	return classify(err)
}

func handleTransitionCreditNote(ctx context.Context, svc CommandService, cmd *CommandEnvelope) error {
	var payload ledger.TransitionCreditNoteCommand
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return Permanent(fmt.Errorf("decode credit_note.transition payload: %w", err))
	}
	if payload.OrderID == "" {
		payload.OrderID = cmd.OrderID
	}

	_, err := svc.TransitionCreditNote(ctx, payload)
	if errors.Is(err, domain.ErrCreditNoteNotPending) && alreadyTransitioned(ctx, svc, payload) {
		// Повторная доставка уже применённой команды.
		return nil
	}
	return classify(err)
}

func alreadyTransitioned(ctx context.Context, svc CommandService, cmd ledger.TransitionCreditNoteCommand) bool {
	order, err := svc.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return false
	}
	note, ok := order.FindCreditNote(cmd.CreditNoteID)
	return ok && note.Status == cmd.To
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsValidation(err),
		domain.IsStateConflict(err),
		domain.IsAlreadyExists(err),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCreditNoteNotFound):
		return Permanent(err)
	default:
		return err
	}
}
