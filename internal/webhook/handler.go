package webhook

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sellsync/internal/logger"
	"sellsync/internal/normalize"
)

// handleWebhook processes one push notification:
// received → signature_verified → event_classified → processed | ignored | rejected.
//
// Transport-level failures (bad signature, unparseable body) map to 401/400;
// everything past classification answers with a structured Result so the
// provider can tell transient failures (eligible for its retry policy) from
// permanent rejections.
func (s *Server) handleWebhook(c *gin.Context) {
	requestID := uuid.NewString()
	log := logger.WithRequestID(requestID).With().Str("component", "webhook").Logger()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read webhook body")
		c.JSON(http.StatusBadRequest, Result{Status: StatusError, Message: "unreadable request body"})
		return
	}

	if s.cfg.SkipSignature {
		log.Warn().Msg("SIGNATURE VERIFICATION BYPASSED for this request (WEBHOOK_SKIP_SIGNATURE is enabled)")
	} else {
		if err := VerifySignature(body, c.GetHeader(SignatureHeader), s.cfg.Secret); err != nil {
			log.Warn().Err(err).Msg("Webhook signature rejected")
			c.JSON(http.StatusUnauthorized, Result{Status: StatusError, Message: err.Error()})
			return
		}
	}

	payload, ok := ParsePayload(body)
	if !ok {
		log.Warn().Int("body_size", len(body)).Msg("Webhook body is neither JSON nor form-encoded")
		c.JSON(http.StatusBadRequest, Result{Status: StatusError, Message: "unparseable request body"})
		return
	}

	event := ClassifyEvent(payload)
	log.Info().
		Str("event_type", event.Type).
		Str("resource_type", event.ResourceType).
		Str("resource_id", event.ResourceID).
		Msg("Webhook event classified")

	if !event.Handled() {
		c.JSON(http.StatusOK, Result{Status: StatusIgnored, Message: "event not handled"})
		return
	}

	ctx := c.Request.Context()

	invoice, err := s.fetcher.GetInvoice(ctx, event.ResourceID)
	if err != nil {
		log.Error().Err(err).Str("invoice_id", event.ResourceID).Msg("Invoice detail fetch failed")
		c.JSON(http.StatusBadGateway, Result{
			Status:  StatusError,
			Message: fmt.Sprintf("could not fetch invoice %s", event.ResourceID),
		})
		return
	}

	record := normalize.Normalize(invoice)
	if !record.HasExternalID() {
		log.Warn().Str("invoice_id", event.ResourceID).Msg("Invoice payload yielded no external id")
		c.JSON(http.StatusUnprocessableEntity, Result{
			Status:  StatusError,
			Message: fmt.Sprintf("invoice %s has no usable id", event.ResourceID),
		})
		return
	}

	recordID, created, err := s.upserter.Upsert(ctx, record)
	if err != nil {
		log.Error().Err(err).Str("invoice_id", record.ExternalID).Msg("Destination upsert failed")
		c.JSON(http.StatusBadGateway, Result{
			Status:  StatusError,
			Message: fmt.Sprintf("could not store invoice %s", record.ExternalID),
		})
		return
	}

	action := "updated"
	if created {
		action = "created"
	}
	log.Info().
		Str("invoice_id", record.ExternalID).
		Str("record_id", recordID).
		Str("action", action).
		Msg("Webhook invoice processed")

	c.JSON(http.StatusOK, Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("invoice %s %s", record.ExternalID, action),
	})
}
