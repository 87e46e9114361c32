package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/internal/presence"
	"github.com/Baaaki/pharmsoc-messaging/internal/service"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"go.uber.org/zap"
)

// CodeRateLimited is sent when send_message is throttled
const CodeRateLimited = "RATE_LIMITED"

// SendLimiter throttles send_message per user
type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Gateway handles inbound client events and pushes domain events to rooms. It
// owns the typing tracker; nothing else mutates it.
type Gateway struct {
	hub      *Hub
	messages *service.MessageService
	typing   *presence.Tracker
	limiter  SendLimiter
}

func NewGateway(hub *Hub, messages *service.MessageService, typing *presence.Tracker) *Gateway {
	return &Gateway{
		hub:      hub,
		messages: messages,
		typing:   typing,
	}
}

// SetSendLimiter enables per-user throttling of send_message
func (g *Gateway) SetSendLimiter(l SendLimiter) {
	g.limiter = l
}

// Connect places c in its user's room. The room comes from the authenticated
// principal, never from client input.
func (g *Gateway) Connect(c *Client) {
	g.hub.Register(c)
	logger.Log.Info("WebSocket client connected",
		zap.String("client_id", c.ID),
		zap.Uint64("user_id", c.UserID),
		zap.Int("connections", g.hub.Connections(c.UserID)),
	)
}

// Disconnect removes c. When it was the user's last connection, their typing
// flags are cleared and the counterparts told.
func (g *Gateway) Disconnect(c *Client) {
	last := g.hub.Unregister(c)
	c.Close()

	if last {
		for _, key := range g.typing.Clear(c.UserID) {
			g.hub.Emit(key.Other(c.UserID), EventTypingStopped, TypingPayload{UserID: c.UserID})
		}
	}

	logger.Log.Info("WebSocket client disconnected",
		zap.String("client_id", c.ID),
		zap.Uint64("user_id", c.UserID),
		zap.Bool("last_connection", last),
	)
}

// Handle dispatches one inbound event from c
func (g *Gateway) Handle(ctx context.Context, c *Client, req Request) {
	switch req.Type {
	case EventJoin:
		g.handleJoin(c, req)
	case EventSendMessage:
		g.handleSendMessage(ctx, c, req)
	case EventTypingStart:
		g.handleTyping(c, req, true)
	case EventTypingStop:
		g.handleTyping(c, req, false)
	case EventMarkRead:
		g.handleMarkRead(ctx, c, req)
	default:
		g.replyError(c, req.TempID, fmt.Errorf("%w: unknown event type %q", service.ErrValidation, req.Type))
	}
}

// checkIdentity rejects client-supplied ids that differ from the principal
func checkIdentity(c *Client, claimed uint64) error {
	if claimed != 0 && claimed != c.UserID {
		return fmt.Errorf("%w: user id does not match the authenticated user", service.ErrForbidden)
	}
	return nil
}

func (g *Gateway) handleJoin(c *Client, req Request) {
	if err := checkIdentity(c, req.UserID); err != nil {
		g.replyError(c, req.TempID, err)
		return
	}
	// Connect already registered the client; join only confirms the room
	c.Send(EventJoined, JoinedPayload{Room: RoomName(c.UserID)})
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, req Request) {
	if err := checkIdentity(c, req.SenderID); err != nil {
		g.replyError(c, req.TempID, err)
		return
	}

	if g.limiter != nil {
		allowed, err := g.limiter.Allow(ctx, "ws_send:"+strconv.FormatUint(c.UserID, 10))
		if err != nil {
			logger.Log.Warn("Send limiter unavailable, allowing", zap.Error(err))
		} else if !allowed {
			c.Send(EventError, ErrorPayload{
				Message: "too many messages, slow down",
				Code:    CodeRateLimited,
				TempID:  req.TempID,
			})
			return
		}
	}

	msg, err := g.messages.Send(ctx, c.UserID, req.ReceiverID, req.Content)
	if err != nil {
		g.replyError(c, req.TempID, err)
		return
	}

	// A sent message ends the sender's typing state in that conversation
	key := presence.NewKey(c.UserID, msg.ReceiverID)
	if g.typing.Get(key, c.UserID) {
		g.typing.Set(key, c.UserID, false)
		g.hub.Emit(msg.ReceiverID, EventTypingStopped, TypingPayload{UserID: c.UserID})
	}

	g.hub.Emit(msg.ReceiverID, EventNewMessage, NewMessagePayload(msg, c.UserName, ""))
	c.Send(EventMessageSent, NewMessagePayload(msg, c.UserName, req.TempID))
}

func (g *Gateway) handleTyping(c *Client, req Request, isTyping bool) {
	if err := checkIdentity(c, req.UserID); err != nil {
		g.replyError(c, req.TempID, err)
		return
	}
	if req.ReceiverID == 0 || req.ReceiverID == c.UserID {
		g.replyError(c, req.TempID, fmt.Errorf("%w: receiver_id must name another user", service.ErrValidation))
		return
	}

	g.typing.Set(presence.NewKey(c.UserID, req.ReceiverID), c.UserID, isTyping)

	if isTyping {
		g.hub.Emit(req.ReceiverID, EventTypingStarted, TypingPayload{UserID: c.UserID, UserName: c.UserName})
	} else {
		g.hub.Emit(req.ReceiverID, EventTypingStopped, TypingPayload{UserID: c.UserID})
	}
}

func (g *Gateway) handleMarkRead(ctx context.Context, c *Client, req Request) {
	if err := checkIdentity(c, req.UserID); err != nil {
		g.replyError(c, req.TempID, err)
		return
	}
	if req.OtherUserID == 0 {
		g.replyError(c, req.TempID, fmt.Errorf("%w: other_user_id is required", service.ErrValidation))
		return
	}

	receipt, err := g.messages.MarkAllReadFromSender(ctx, c.UserID, req.OtherUserID)
	if err != nil {
		g.replyError(c, req.TempID, err)
		return
	}
	g.NotifyMessagesRead(receipt)
}

func (g *Gateway) replyError(c *Client, tempID string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	code := service.ErrorCode(err)
	message := err.Error()
	if code == service.CodeInternal {
		logger.Log.Error("WebSocket event failed",
			zap.Uint64("user_id", c.UserID),
			zap.Error(err),
		)
		message = "internal error"
	}

	c.Send(EventError, ErrorPayload{Message: message, Code: code, TempID: tempID})
}

// NotifyMessageCreated pushes new_message to the receiver and message_sent to
// every connection of the sender.
func (g *Gateway) NotifyMessageCreated(msg *models.Message, senderName string) {
	payload := NewMessagePayload(msg, senderName, "")
	g.hub.Emit(msg.ReceiverID, EventNewMessage, payload)
	g.hub.Emit(msg.SenderID, EventMessageSent, payload)
}

// NotifyMessagesRead tells the original sender which of their messages were read.
// Empty receipts are not pushed.
func (g *Gateway) NotifyMessagesRead(receipt *service.ReadReceipt) {
	if receipt == nil || len(receipt.MessageIDs) == 0 {
		return
	}
	g.hub.Emit(receipt.CounterpartID, EventMessagesRead, MessagesReadPayload{
		ReaderID:   receipt.ReaderID,
		MessageIDs: receipt.MessageIDs,
		ReadAt:     receipt.ReadAt,
	})
}

// NotifyMessageDeleted tells the receiver a message addressed to them is gone
func (g *Gateway) NotifyMessageDeleted(msg *models.Message) {
	g.hub.Emit(msg.ReceiverID, EventMessageDeleted, MessageDeletedPayload{
		MessageID: msg.ID,
		UserID:    msg.SenderID,
	})
}

// NotifyConversationDeleted tells otherID that requesterID deleted their conversation
func (g *Gateway) NotifyConversationDeleted(requesterID, otherID uint64) {
	g.hub.Emit(otherID, EventConversationDeleted, ConversationDeletedPayload{UserID: requesterID})
}

// IsTyping reports whether otherID is typing to viewerID
func (g *Gateway) IsTyping(viewerID, otherID uint64) bool {
	return g.typing.Get(presence.NewKey(viewerID, otherID), otherID)
}
