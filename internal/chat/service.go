package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMalformedPayload indicates an inbound frame that does not decode to
	// a payload with a message field. The error is local to the frame; the
	// connection stays open.
	ErrMalformedPayload = errors.New("chat: malformed payload")
	// ErrStoreUnavailable indicates a failed history read.
	ErrStoreUnavailable = errors.New("chat: store unavailable")

	errMissingDatabase = errors.New("chat: database handle is required")
	errMissingRegistry = errors.New("chat: registry is required")
)

// ServiceConfig describes the dependencies of the chat service.
type ServiceConfig struct {
	Database *gorm.DB
	Registry *Registry
	Bridge   Bridge
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service accepts inbound chat frames, fans them out to the course room and
// keeps the durable message log.
type Service struct {
	db       *gorm.DB
	registry *Registry
	bridge   Bridge
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the chat service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		registry: cfg.Registry,
		bridge:   cfg.Bridge,
		clock:    clock,
		logger:   logger,
	}, nil
}

type inboundFrame struct {
	Message *string `json:"message"`
}

// HandleInbound processes one raw text frame from a connection: decode,
// broadcast to the course room, then persist. Broadcast delivery completes
// before the log write starts, so persistence can never delay fan-out. A
// failed write is logged and not retried: live viewers have already seen
// the message, history will not include it.
func (s *Service) HandleInbound(ctx context.Context, courseID uint, userID, displayName string, raw []byte) (Envelope, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Message == nil {
		return Envelope{}, ErrMalformedPayload
	}

	envelope := Envelope{
		Type:     EnvelopeTypeChatMessage,
		Message:  *frame.Message,
		User:     displayName,
		Datetime: s.clock().UTC().Format(time.RFC3339),
	}

	s.broadcast(ctx, courseID, envelope)

	message := Message{
		UserID:   userID,
		CourseID: courseID,
		Content:  *frame.Message,
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		s.logger.Error("chat message persistence failed",
			zap.Uint("course_id", courseID),
			zap.String("user_id", userID),
			zap.Error(err))
	}

	return envelope, nil
}

// broadcast routes the envelope through the cross-instance bridge when one
// is configured, falling back to local delivery if the bridge rejects the
// publish so the local room still sees the message.
func (s *Service) broadcast(ctx context.Context, courseID uint, envelope Envelope) {
	if s.bridge != nil {
		err := s.bridge.Publish(ctx, Event{CourseID: courseID, Envelope: envelope})
		if err == nil {
			return
		}
		s.logger.Warn("chat bridge publish failed, delivering locally",
			zap.Uint("course_id", courseID),
			zap.Error(err))
	}
	s.registry.Publish(courseID, envelope)
}

// History returns the latest messages of a course in chronological order.
// The query reads the newest rows first and reverses them for display.
func (s *Service) History(ctx context.Context, courseID uint, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 5
	}

	var messages []Message
	err := s.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for left, right := 0, len(messages)-1; left < right; left, right = left+1, right-1 {
		messages[left], messages[right] = messages[right], messages[left]
	}
	return messages, nil
}
