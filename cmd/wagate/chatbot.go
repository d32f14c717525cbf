package main

import (
	"context"
	"strings"

	apperrors "wagate/internal/errors"
	"wagate/internal/events"
	"wagate/internal/metrics"
	"wagate/internal/models"
	"wagate/internal/privacy"
	"wagate/pkg/chatbot"

	"github.com/sirupsen/logrus"
)

// registerChatBot forwards inbound text to the external reply service. The
// service owns outbound delivery; the gateway only relays the conversation.
// Direct chats are always forwarded; group chats only when the message starts
// with the command prefix, and commands from non-moderators are ignored.
func registerChatBot(dispatcher *events.Dispatcher, bot chatbot.Client, cfg *models.Config, logger *logrus.Logger) {
	errLogger := &apperrors.Logger{Logger: logger}

	dispatcher.OnNewMessage(func(ctx context.Context, ev events.NewMessage) {
		msg := ev.Message
		if msg.Text == "" {
			return
		}

		text := msg.Text
		if msg.IsGroup {
			if !msg.HasPrefix(cfg.CommandPrefix) {
				return
			}
			sender := strings.SplitN(msg.SenderJID, "@", 2)[0]
			if !cfg.IsModerator(sender) {
				logger.WithField("sender", privacy.MaskJID(msg.SenderJID)).Debug("Ignoring command from non-moderator")
				return
			}
			text = strings.TrimPrefix(text, cfg.CommandPrefix)
		}

		reply, err := bot.GetReply(ctx, msg.SenderJID, text)
		if err != nil {
			errLogger.LogRetryableError(err, "ChatBot reply failed", logrus.Fields{
				"chat": privacy.MaskJID(msg.ChatJID),
			})
			metrics.IncrementCounter("chatbot_errors", nil, "ChatBot request failures")
			return
		}

		metrics.IncrementCounter("chatbot_replies", nil, "ChatBot replies obtained")
		logger.WithFields(logrus.Fields{
			"chat":  privacy.MaskJID(msg.ChatJID),
			"event": ev.ID,
		}).Debug("ChatBot reply dispatched: " + reply)
	})
}
