package consumerWorker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"eventhive/internal/dto"
	"eventhive/internal/mailer"
	"eventhive/internal/rabbit"
)

type Consumer interface {
	Consume(ctx context.Context, handler rabbit.Handler) error
}

// Reader turns notification messages into e-mails.
type Reader struct {
	consumer Consumer
	mail     mailer.Sender
	done     chan struct{}
	cancel   context.CancelFunc
	err      error
}

func NewReader(consumer Consumer, mail mailer.Sender) *Reader {
	return &Reader{
		consumer: consumer,
		mail:     mail,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)
		if err := r.consumer.Consume(cctx, r.Handle); err != nil {
			r.err = err
			zlog.Logger.Error().Err(err).Msg("notification reader stopped, notifications are not being delivered")
			return
		}
		zlog.Logger.Info().Msg("notification reader stopped")
	}()
}

// Done is closed once the reader has stopped consuming.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Err reports why the reader stopped. It is nil after a clean Stop and is
// only meaningful once Done is closed.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// Handle routes one message by its routing key. Malformed payloads and
// unknown keys are logged and acknowledged; only delivery failures are
// returned for a retry.
func (r *Reader) Handle(_ context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case dto.RoutingEventCreated:
		var msg dto.EventCreatedMessage
		if !decode(routingKey, body, &msg) || msg.OrganizerEmail == "" {
			return nil
		}
		return r.send(msg.OrganizerEmail, "Your event is live: "+msg.Title, "event_created", msg)

	case dto.RoutingEventDeleted:
		var msg dto.EventDeletedMessage
		if !decode(routingKey, body, &msg) {
			return nil
		}
		var failed int
		for _, a := range msg.Attendees {
			if a.Email == "" {
				continue
			}
			data := struct {
				dto.EventDeletedMessage
				Name string
			}{msg, a.Name}
			if err := r.send(a.Email, "Event cancelled: "+msg.Title, "event_deleted", data); err != nil {
				failed++
			}
		}
		if failed > 0 {
			zlog.Logger.Warn().
				Str("event_id", msg.EventID).
				Int("failed", failed).
				Int("attendees", len(msg.Attendees)).
				Msg("some cancellation emails were not sent")
		}
		return nil

	case dto.RoutingRegistrationCreated:
		var msg dto.RegistrationCreatedMessage
		if !decode(routingKey, body, &msg) || msg.AttendeeEmail == "" {
			return nil
		}
		return r.send(msg.AttendeeEmail, "You're registered: "+msg.EventTitle, "registration_created", msg)

	default:
		zlog.Logger.Warn().Str("routing_key", routingKey).Msg("unknown routing key, skipping")
		return nil
	}
}

func (r *Reader) send(to, subject, tmpl string, data any) error {
	body, err := mailer.Render(tmpl, data)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("template", tmpl).Msg("failed to render email")
		return nil
	}
	if err := r.mail.Send(to, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", tmpl, err)
	}
	return nil
}

func decode(routingKey string, body []byte, v any) bool {
	if err := json.Unmarshal(body, v); err != nil {
		zlog.Logger.Error().Err(err).Str("routing_key", routingKey).Msgf("failed to unmarshal message: %s", string(body))
		return false
	}
	return true
}
