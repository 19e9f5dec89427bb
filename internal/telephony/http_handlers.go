package telephony

import (
	"context"
	"net/http"
	"time"

	"cloudcall-platform/internal/routing"
	"cloudcall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandler terminates provider webhooks: parse the form, delegate to
// the lifecycle services, and answer with TwiML.
//
// No business logic here. One rule is absolute: a webhook response is always
// well-formed and always 200. A failed inbound call gets the apology tree,
// a failed status update is logged and acknowledged. Returning an error
// status would make the provider retry or play its own error message.

// VoiceService is the call-lifecycle surface the webhook needs.
type VoiceService interface {
	HandleInbound(ctx context.Context, ev InboundCallEvent) ([]Instruction, error)
	ApplyStatus(ctx context.Context, ev CallStatusEvent) error
	HandleDialResult(ctx context.Context, ev DialResultEvent) ([]Instruction, error)
	HandleIVRDigit(ctx context.Context, ev IVRDigitEvent) ([]Instruction, error)
	AttachRecording(ctx context.Context, ev RecordingEvent) error
}

// MessageService is the message-lifecycle surface the webhook needs.
// HandleInbound returns the auto-reply body, empty when no reply is due.
type MessageService interface {
	HandleInbound(ctx context.Context, ev InboundMessageEvent) (string, error)
	ApplyStatus(ctx context.Context, ev MessageStatusEvent) error
}

type WebhookHandler struct {
	Voice    VoiceService
	Messages MessageService

	Now func() time.Time
}

func (h WebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h WebhookHandler) HandleInboundVoice(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseInboundCall(c.Request, h.now().UTC())
	if err != nil {
		log.Warn("inbound voice webhook parse failed", "err", err)
		h.writeTwiML(c, Apology())
		return
	}

	ctx := routing.WithClientIP(c.Request.Context(), c.ClientIP())
	instructions, err := h.Voice.HandleInbound(ctx, ev)
	if err != nil {
		log.Error("inbound call handling failed",
			"provider_call_id", ev.ProviderCallID, "to", ev.To, "err", err)
		h.writeTwiML(c, Apology())
		return
	}
	h.writeTwiML(c, instructions)
}

func (h WebhookHandler) HandleVoiceStatus(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseCallStatus(c.Request, h.now().UTC())
	if err != nil {
		log.Warn("voice status webhook parse failed", "err", err)
		c.Status(http.StatusOK)
		return
	}

	ctx := routing.WithClientIP(c.Request.Context(), c.ClientIP())
	if err := h.Voice.ApplyStatus(ctx, ev); err != nil {
		log.Error("voice status apply failed",
			"provider_call_id", ev.ProviderCallID, "status", ev.Status, "err", err)
	}
	c.Status(http.StatusOK)
}

// HandleDialResult answers the Dial action callback. The service decides
// whether the caller hears voicemail or a goodbye.
func (h WebhookHandler) HandleDialResult(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseDialResult(c.Request, h.now().UTC())
	if err != nil {
		log.Warn("dial result webhook parse failed", "err", err)
		h.writeTwiML(c, Apology())
		return
	}

	ctx := routing.WithClientIP(c.Request.Context(), c.ClientIP())
	instructions, err := h.Voice.HandleDialResult(ctx, ev)
	if err != nil {
		log.Error("dial result handling failed",
			"provider_call_id", ev.ProviderCallID, "dial_status", ev.DialStatus, "err", err)
		h.writeTwiML(c, Apology())
		return
	}
	h.writeTwiML(c, instructions)
}

// HandleIVRDigit answers the Gather action callback for menu :id.
func (h WebhookHandler) HandleIVRDigit(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseIVRDigit(c.Request, h.now().UTC())
	if err != nil {
		log.Warn("ivr digit webhook parse failed", "err", err)
		h.writeTwiML(c, Apology())
		return
	}
	ev.IVRID = c.Param("id")

	ctx := routing.WithClientIP(c.Request.Context(), c.ClientIP())
	instructions, err := h.Voice.HandleIVRDigit(ctx, ev)
	if err != nil {
		log.Error("ivr digit handling failed",
			"provider_call_id", ev.ProviderCallID, "ivr_id", ev.IVRID, "digit", ev.Digit, "err", err)
		h.writeTwiML(c, Apology())
		return
	}
	h.writeTwiML(c, instructions)
}

// HandleVoicemailRecording stores the recording reference. The caller has
// already left their message, so the response just closes the call politely.
func (h WebhookHandler) HandleVoicemailRecording(c *gin.Context) {
	log := logger.FromGin(c)

	goodbye := []Instruction{Say{Text: "Thank you. Goodbye."}, Hangup{}}

	ev, err := ParseRecording(c.Request, h.now().UTC())
	if err != nil {
		log.Warn("recording webhook parse failed", "err", err)
		h.writeTwiML(c, goodbye)
		return
	}

	ctx := routing.WithClientIP(c.Request.Context(), c.ClientIP())
	if err := h.Voice.AttachRecording(ctx, ev); err != nil {
		log.Error("recording attach failed",
			"provider_call_id", ev.ProviderCallID, "err", err)
	}
	h.writeTwiML(c, goodbye)
}

func (h WebhookHandler) HandleInboundSMS(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseInboundMessage(c.Request, h.now().UTC())
	if err != nil {
		log.Warn("inbound sms webhook parse failed", "err", err)
		h.writeMessageTwiML(c, "")
		return
	}

	ctx := routing.WithClientIP(c.Request.Context(), c.ClientIP())
	reply, err := h.Messages.HandleInbound(ctx, ev)
	if err != nil {
		log.Error("inbound sms handling failed",
			"provider_message_id", ev.ProviderMessageID, "to", ev.To, "err", err)
		reply = ""
	}
	h.writeMessageTwiML(c, reply)
}

func (h WebhookHandler) HandleSMSStatus(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseMessageStatus(c.Request, h.now().UTC())
	if err != nil {
		log.Warn("sms status webhook parse failed", "err", err)
		c.Status(http.StatusOK)
		return
	}

	ctx := routing.WithClientIP(c.Request.Context(), c.ClientIP())
	if err := h.Messages.ApplyStatus(ctx, ev); err != nil {
		log.Error("sms status apply failed",
			"provider_message_id", ev.ProviderMessageID, "status", ev.Status, "err", err)
	}
	c.Status(http.StatusOK)
}

func (h WebhookHandler) writeTwiML(c *gin.Context, instructions []Instruction) {
	doc, err := RenderTwiML(instructions)
	if err != nil {
		// The apology tree always renders; reaching this means the service
		// returned a malformed tree.
		logger.FromGin(c).Error("twiml render failed", "err", err)
		doc, _ = RenderTwiML(Apology())
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, doc)
}

func (h WebhookHandler) writeMessageTwiML(c *gin.Context, body string) {
	doc, err := RenderMessageTwiML(body)
	if err != nil {
		logger.FromGin(c).Error("message twiml render failed", "err", err)
		doc, _ = RenderMessageTwiML("")
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, doc)
}
