package web

import (
	"errors"

	"github.com/dukex/dealflow/pkg/integrations"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// Inbound provider webhooks answer 204 once the event is recorded, whether or
// not it moved the deal. Unknown deals are acknowledged too so providers stop
// retrying.

func (h *APIHandlers) ESignWebhook(c fiber.Ctx) error {
	var req ESignWebhookRequest
	if err := h.bindWebhook(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.integrations.HandleESign(c.Context(), integrations.ESignInput{
		DealID:     req.DealID,
		Status:     req.Status,
		EnvelopeID: req.EnvelopeID,
	})

	return h.acknowledge(c, outcome, err)
}

func (h *APIHandlers) BankWebhook(c fiber.Ctx) error {
	var req BankWebhookRequest
	if err := h.bindWebhook(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.integrations.HandleBankPayment(c.Context(), integrations.BankPaymentInput{
		DealID:      req.DealID,
		Kind:        models.PaymentKind(req.Kind),
		Status:      models.PaymentStatus(req.Status),
		Amount:      req.Amount,
		Currency:    req.Currency,
		ExternalRef: req.ExternalRef,
	})

	return h.acknowledge(c, outcome, err)
}

func (h *APIHandlers) AECBWebhook(c fiber.Ctx) error {
	var req AECBWebhookRequest
	if err := h.bindWebhook(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.integrations.HandleCreditBureau(c.Context(), integrations.CreditBureauInput{
		DealID:    req.DealID,
		AECBScore: *req.AECBScore,
		Approved:  *req.Approved,
		Notes:     req.Notes,
	})

	return h.acknowledge(c, outcome, err)
}

var errInvalidJSON = errors.New("Invalid JSON format")

func (h *APIHandlers) bindWebhook(c fiber.Ctx, req any) error {
	if err := c.Bind().JSON(req); err != nil {
		return errInvalidJSON
	}

	if err := h.validator.Struct(req); err != nil {
		return err
	}

	return nil
}

func (h *APIHandlers) acknowledge(c fiber.Ctx, outcome *integrations.Outcome, err error) error {
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Webhook processing failed", "path", c.Path(), "error", err)

		return internalError(c, err)
	}

	if !outcome.DealFound {
		h.logger.WarnContext(c.Context(), "Webhook for unknown deal", "path", c.Path(), "event", outcome.Event)
	} else if outcome.Attempted && !outcome.Transitioned {
		h.logger.InfoContext(c.Context(), "Webhook transition not applied",
			"event", outcome.Event,
			"to", outcome.To,
			"reason", outcome.Reason,
		)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
