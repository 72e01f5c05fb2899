package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventhive/internal/model"
)

const eventColumns = `
	id, title, description, slug, organizer_id, organizer_name, category, tags,
	start_date, end_date, timezone, location_type, venue, address, city, state, country,
	capacity, ticket_type, ticket_price, registration_count, cover_image, theme_color,
	created_at, updated_at`

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e                    model.Event
		tags                 string
		start, end           int64
		price                sql.NullFloat64
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Slug, &e.OrganizerID, &e.OrganizerName, &e.Category, &tags,
		&start, &end, &e.Timezone, &e.LocationType, &e.Venue, &e.Address, &e.City, &e.State, &e.Country,
		&e.Capacity, &e.TicketType, &price, &e.RegistrationCount, &e.CoverImage, &e.ThemeColor,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	list, err := decodeList(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	e.Tags = list
	if price.Valid {
		p := price.Float64
		e.TicketPrice = &p
	}
	e.StartDate = fromMillis(start)
	e.EndDate = fromMillis(end)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// CreateEventTx inserts e and, when meterFreeTier is set, increments the
// organizer's free-event counter in the same transaction. The increment is
// guarded by freeLimit so concurrent creations cannot overshoot the quota.
func (r *repository) CreateEventTx(ctx context.Context, e *model.Event, meterFreeTier bool, freeLimit int) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	tags, err := encodeList(e.Tags)
	if err != nil {
		return err
	}
	var price interface{}
	if e.TicketPrice != nil {
		price = *e.TicketPrice
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO events (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`),
			e.ID, e.Title, e.Description, e.Slug, e.OrganizerID, e.OrganizerName, e.Category, tags,
			toMillis(e.StartDate), toMillis(e.EndDate), e.Timezone, string(e.LocationType),
			e.Venue, e.Address, e.City, e.State, e.Country,
			e.Capacity, string(e.TicketType), price, e.RegistrationCount, e.CoverImage, e.ThemeColor,
			toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}

		if !meterFreeTier {
			return nil
		}
		res, err := tx.ExecContext(ctx, r.rebind(`
			UPDATE users
			SET free_events_created = free_events_created + 1, updated_at = ?
			WHERE id = ? AND free_events_created < ?
		`), toMillis(e.UpdatedAt), e.OrganizerID, freeLimit)
		if err != nil {
			return fmt.Errorf("failed to increment free event counter: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrQuotaExceeded
		}
		return nil
	})
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	return r.getEvent(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
}

func (r *repository) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return r.getEvent(ctx, `SELECT `+eventColumns+` FROM events WHERE slug = ?`, slug)
}

func (r *repository) getEvent(ctx context.Context, query string, arg string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, r.rebind(query), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *repository) ListEventsByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+eventColumns+`
		FROM events
		WHERE organizer_id = ?
		ORDER BY created_at DESC, id DESC
	`), organizerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get organizer events: %w", err)
	}
	return scanEvents(rows)
}

// ListUpcoming returns events starting at or after now, earliest first.
func (r *repository) ListUpcoming(ctx context.Context, now time.Time) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+eventColumns+`
		FROM events
		WHERE start_date >= ?
		ORDER BY start_date ASC, id ASC
	`), toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming events: %w", err)
	}
	return scanEvents(rows)
}

func (r *repository) ListUpcomingByCategory(ctx context.Context, category string, now time.Time) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+eventColumns+`
		FROM events
		WHERE category = ? AND start_date >= ?
		ORDER BY start_date ASC, id ASC
	`), category, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to get category events: %w", err)
	}
	return scanEvents(rows)
}

func (r *repository) CountUpcomingByCategory(ctx context.Context, now time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT category, COUNT(*)
		FROM events
		WHERE start_date >= ?
		GROUP BY category
	`), toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count events by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[category] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category counts: %w", err)
	}
	return counts, nil
}

// DeleteEventTx removes e together with its registrations and, for free
// events, returns one unit of the organizer's free quota. The removed
// registrations are returned so callers can notify attendees.
func (r *repository) DeleteEventTx(ctx context.Context, e model.Event, at time.Time) ([]model.Registration, error) {
	var removed []model.Registration
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, r.rebind(`
			SELECT `+registrationColumns+`
			FROM registrations
			WHERE event_id = ?
			ORDER BY created_at ASC, id ASC
		`), e.ID)
		if err != nil {
			return fmt.Errorf("failed to get registrations: %w", err)
		}
		removed, err = scanRegistrations(rows)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM registrations WHERE event_id = ?`), e.ID,
		); err != nil {
			return fmt.Errorf("failed to delete registrations: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM events WHERE id = ? AND organizer_id = ?`), e.ID, e.OrganizerID)
		if err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrEventNotFound
		}

		if e.TicketType != model.TicketFree {
			return nil
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`
			UPDATE users
			SET free_events_created = free_events_created - 1, updated_at = ?
			WHERE id = ? AND free_events_created > 0
		`), toMillis(at), e.OrganizerID); err != nil {
			return fmt.Errorf("failed to decrement free event counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
