package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/intelliguard/intelliguard/pkg/kafka"
	"github.com/intelliguard/intelliguard/pkg/logger"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
)

// Topics for user domain events.
var (
	TopicUserRegistered = pkgkafka.Topic("user", "registered")
	TopicUserLocked     = pkgkafka.Topic("user", "locked")
)

const (
	AggregateTypeUser = "user"
	SourceUserService = "user-service"
)

// UserRegisteredData is the payload of user.registered.
type UserRegisteredData struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	FirstName string        `json:"first_name,omitempty"`
	LastName  string        `json:"last_name,omitempty"`
	Role      string        `json:"role"`
	Status    domain.Status `json:"status"`
}

// UserLockedData is the payload of user.locked.
type UserLockedData struct {
	ID             string    `json:"id"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until"`
}

// Producer publishes user domain events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a user event producer.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, a *domain.Account) error {
	data := UserRegisteredData{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role.Name,
		Status:    a.Status,
	}
	return p.publish(ctx, TopicUserRegistered, a.ID, data)
}

// PublishUserLocked publishes a user.locked event.
func (p *Producer) PublishUserLocked(ctx context.Context, userID string, l domain.Lockout) error {
	if l.LockedUntil == nil {
		return fmt.Errorf("publish user.locked for %s: lockout has no unlock time", userID)
	}
	data := UserLockedData{ID: userID, FailedAttempts: l.FailedAttempts, LockedUntil: *l.LockedUntil}
	return p.publish(ctx, TopicUserLocked, userID, data)
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, userID, AggregateTypeUser, SourceUserService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}
