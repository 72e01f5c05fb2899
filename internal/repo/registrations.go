package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"eventhive/internal/model"
)

const registrationColumns = `id, event_id, user_id, attendee_name, attendee_email, status, created_at`

func scanRegistrations(rows *sql.Rows) ([]model.Registration, error) {
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var (
			reg       model.Registration
			createdAt int64
		)
		if err := rows.Scan(
			&reg.ID, &reg.EventID, &reg.UserID, &reg.AttendeeName, &reg.AttendeeEmail, &reg.Status, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		reg.CreatedAt = fromMillis(createdAt)
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return regs, nil
}

// RegisterTx inserts reg and bumps the event's registration count, refusing
// full events and second registrations by the same user.
func (r *repository) RegisterTx(ctx context.Context, reg *model.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Status == "" {
		reg.Status = model.RegistrationConfirmed
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var capacity, count int
		err := tx.QueryRowContext(ctx,
			r.rebind(`SELECT capacity, registration_count FROM events WHERE id = ?`), reg.EventID,
		).Scan(&capacity, &count)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get event for registration: %w", err)
		}
		if count >= capacity {
			return ErrEventFull
		}

		var existing int
		if err := tx.QueryRowContext(ctx, r.rebind(`
			SELECT COUNT(*)
			FROM registrations
			WHERE event_id = ? AND user_id = ?
		`), reg.EventID, reg.UserID).Scan(&existing); err != nil {
			return fmt.Errorf("failed to check duplicate registration: %w", err)
		}
		if existing > 0 {
			return ErrDuplicateRegistration
		}

		if _, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO registrations (`+registrationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`),
			reg.ID, reg.EventID, reg.UserID, reg.AttendeeName, reg.AttendeeEmail, reg.Status, toMillis(reg.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to create registration: %w", err)
		}

		res, err := tx.ExecContext(ctx, r.rebind(`
			UPDATE events
			SET registration_count = registration_count + 1
			WHERE id = ? AND registration_count < capacity
		`), reg.EventID)
		if err != nil {
			return fmt.Errorf("failed to increment registration count: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrEventFull
		}
		return nil
	})
}

func (r *repository) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE event_id = ?
		ORDER BY created_at ASC, id ASC
	`), eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	return scanRegistrations(rows)
}
