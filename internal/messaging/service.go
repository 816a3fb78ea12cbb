// Package messaging appends to and reads the direct and group message streams.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nfrund/classhub/internal/conversation"
	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/metrics"
	"github.com/nfrund/classhub/internal/presence"
)

// Message kinds used as metric labels.
const (
	KindDirect = "direct"
	KindFile   = "file"
	KindGroup  = "group"
)

// MessagesFunc receives the full stream on every change.
type MessagesFunc func(ctx context.Context, msgs []domain.Message)

type options struct {
	clock   clockwork.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	newID   func() string
}

// Option configures a Service.
type Option func(*options)

// WithClock sets the time source for message timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithMetrics counts sent and read messages.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithIDGenerator replaces the uuid generator used for message ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// Service sends and reads messages. Messages are append-only; only the
// receiver's read flag ever changes.
type Service struct {
	store  docstore.Store
	opts   options
	logger *slog.Logger
}

// NewService creates a messaging service over store.
func NewService(store docstore.Store, opts ...Option) *Service {
	o := options{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default().With("service", "messaging"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{store: store, opts: o, logger: o.logger}
}

// SendDirect appends a text message to the conversation between from and to.
func (s *Service) SendDirect(ctx context.Context, from domain.Sender, to domain.UserIdentity, text string) (*domain.Message, error) {
	return s.sendDirect(ctx, from, to, strings.TrimSpace(text), domain.MessageTypeText, "", KindDirect)
}

// SendFile appends a file reference to the conversation. The message type is
// derived from the content type.
func (s *Service) SendFile(ctx context.Context, from domain.Sender, to domain.UserIdentity, name, contentType, url string) (*domain.Message, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: file name and url are required", domain.ErrValidation)
	}
	return s.sendDirect(ctx, from, to, "[File: "+name+"]", domain.MessageTypeFor(contentType), url, KindFile)
}

func (s *Service) sendDirect(ctx context.Context, from domain.Sender, to domain.UserIdentity, text string, typ domain.MessageType, url, kind string) (*domain.Message, error) {
	to = domain.UserIdentity(strings.TrimSpace(string(to)))
	if to == "" {
		return nil, fmt.Errorf("%w: receiver is required", domain.ErrValidation)
	}
	msg := &domain.Message{
		ID:                s.opts.newID(),
		ChatID:            conversation.DeriveKey(from.UID, to),
		SenderID:          from.UID,
		SenderDisplayName: from.DisplayName,
		ReceiverID:        to,
		Text:              text,
		MessageType:       typ,
		FileURL:           url,
		Timestamp:         s.opts.clock.Now().UTC(),
	}
	if err := domain.Validate(msg); err != nil {
		return nil, err
	}

	doc, err := s.store.Get(ctx, domain.CollectionPresence, string(to))
	if err != nil {
		return nil, domain.StoreError("message receiver lookup", err)
	}
	rec, err := presence.DecodeRecord(doc)
	if err != nil {
		return nil, err
	}
	msg.ReceiverDisplayName = rec.DisplayName

	if err := s.append(ctx, domain.CollectionMessages, msg); err != nil {
		return nil, err
	}
	s.opts.metrics.RecordMessageSent(kind)
	s.logger.Debug("Direct message sent", "id", msg.ID, "chat_id", msg.ChatID, "type", msg.MessageType)
	return msg, nil
}

// SendGroup appends a text message to a group stream.
func (s *Service) SendGroup(ctx context.Context, from domain.Sender, groupID, text string) (*domain.Message, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id is required", domain.ErrValidation)
	}
	msg := &domain.Message{
		ID:                s.opts.newID(),
		GroupID:           groupID,
		SenderID:          from.UID,
		SenderDisplayName: from.DisplayName,
		Text:              strings.TrimSpace(text),
		MessageType:       domain.MessageTypeText,
		Timestamp:         s.opts.clock.Now().UTC(),
	}
	if err := domain.Validate(msg); err != nil {
		return nil, err
	}
	if err := s.append(ctx, domain.CollectionGroupMessages, msg); err != nil {
		return nil, err
	}
	s.opts.metrics.RecordMessageSent(KindGroup)
	s.logger.Debug("Group message sent", "id", msg.ID, "group_id", groupID)
	return msg, nil
}

func (s *Service) append(ctx context.Context, collection string, msg *domain.Message) error {
	doc, err := docstore.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.store.Commit(ctx, docstore.NewBatch().Create(collection, msg.ID, doc)); err != nil {
		return domain.StoreError("append message", err)
	}
	return nil
}

// Conversation returns the direct messages between a and b, oldest first.
func (s *Service) Conversation(ctx context.Context, a, b domain.UserIdentity) ([]domain.Message, error) {
	return s.find(ctx, conversationQuery(a, b))
}

// Group returns a group's messages, oldest first.
func (s *Service) Group(ctx context.Context, groupID string) ([]domain.Message, error) {
	return s.find(ctx, groupQuery(groupID))
}

// WatchConversation streams the conversation between a and b. Release the
// subscription when the chat partner changes.
func (s *Service) WatchConversation(ctx context.Context, a, b domain.UserIdentity, fn MessagesFunc) (docstore.Subscription, error) {
	return s.watch(ctx, conversationQuery(a, b), fn)
}

// WatchGroup streams a group's messages.
func (s *Service) WatchGroup(ctx context.Context, groupID string, fn MessagesFunc) (docstore.Subscription, error) {
	return s.watch(ctx, groupQuery(groupID), fn)
}

// MarkRead sets the read flag of a direct message. Only its receiver may do so.
func (s *Service) MarkRead(ctx context.Context, messageID string, reader domain.UserIdentity) error {
	if strings.TrimSpace(messageID) == "" || strings.TrimSpace(string(reader)) == "" {
		return fmt.Errorf("%w: message id and reader are required", domain.ErrValidation)
	}
	doc, err := s.store.Get(ctx, domain.CollectionMessages, messageID)
	if err != nil {
		return domain.StoreError("mark read", err)
	}
	msg, err := docstore.Decode[domain.Message](doc)
	if err != nil {
		return err
	}
	if msg.ReceiverID != reader {
		return fmt.Errorf("%w: %s is not the receiver of message %s", domain.ErrForbidden, reader, messageID)
	}
	if msg.IsRead {
		return nil
	}

	batch := docstore.NewBatch().UpdateIf(domain.CollectionMessages, messageID, "receiverId", string(reader), docstore.Document{"isRead": true})
	if err := s.store.Commit(ctx, batch); err != nil {
		return domain.StoreError("mark read", err)
	}
	s.opts.metrics.RecordMessageRead()
	return nil
}

func (s *Service) find(ctx context.Context, q docstore.Query) ([]domain.Message, error) {
	docs, err := s.store.Find(ctx, q)
	if err != nil {
		return nil, domain.StoreError("read messages", err)
	}
	return DecodeMessages(docs)
}

func (s *Service) watch(ctx context.Context, q docstore.Query, fn MessagesFunc) (docstore.Subscription, error) {
	sub, err := s.store.Watch(ctx, q, func(ctx context.Context, snap docstore.Snapshot) {
		msgs, err := DecodeMessages(snap.Docs)
		if err != nil {
			s.logger.Error("Failed to decode message snapshot", "query", q.String(), "error", err)
			return
		}
		fn(ctx, msgs)
	})
	if err != nil {
		return nil, domain.StoreError("watch messages", err)
	}
	return sub, nil
}

func conversationQuery(a, b domain.UserIdentity) docstore.Query {
	return docstore.From(domain.CollectionMessages).
		Eq("chatId", string(conversation.DeriveKey(a, b))).
		Order("timestamp", false)
}

func groupQuery(groupID string) docstore.Query {
	return docstore.From(domain.CollectionGroupMessages).
		Eq("groupId", groupID).
		Order("timestamp", false)
}

// DecodeMessages converts stored documents into Messages.
func DecodeMessages(docs []docstore.Document) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := docstore.Decode[domain.Message](doc)
		if err != nil {
			return nil, err
		}
		if msg.ID == "" {
			msg.ID = doc.Key()
		}
		out = append(out, msg)
	}
	return out, nil
}
