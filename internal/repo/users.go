package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventhive/internal/model"
)

const userColumns = `
	id, token_identifier, name, email, image_url, has_completed_onboarding,
	free_events_created, location_city, location_state, location_country,
	interests, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                    model.User
		city, state, country sql.NullString
		interests            string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&u.ID, &u.TokenIdentifier, &u.Name, &u.Email, &u.ImageURL, &u.HasCompletedOnboarding,
		&u.FreeEventsCreated, &city, &state, &country,
		&interests, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if city.Valid {
		u.Location = &model.Location{City: city.String, State: state.String, Country: country.String}
	}
	list, err := decodeList(interests)
	if err != nil {
		return nil, fmt.Errorf("failed to decode interests: %w", err)
	}
	u.Interests = list
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

// UpsertUser returns the user stored under u.TokenIdentifier, creating it when
// absent and refreshing the display name when it changed.
func (r *repository) UpsertUser(ctx context.Context, u model.User) (*model.User, error) {
	existing, err := r.GetUserByToken(ctx, u.TokenIdentifier)
	switch {
	case err == nil:
		if u.Name == "" || existing.Name == u.Name {
			return existing, nil
		}
		if _, err := r.db.ExecContext(ctx,
			r.rebind(`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`),
			u.Name, toMillis(u.UpdatedAt), existing.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to update user name: %w", err)
		}
		existing.Name = u.Name
		existing.UpdatedAt = u.UpdatedAt.UTC()
		return existing, nil
	case !errors.Is(err, ErrUserNotFound):
		return nil, err
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	interests, err := encodeList(u.Interests)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO users (id, token_identifier, name, email, image_url, has_completed_onboarding,
		                   free_events_created, interests, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`),
		u.ID, u.TokenIdentifier, u.Name, u.Email, u.ImageURL, u.HasCompletedOnboarding,
		interests, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		// A concurrent first contact may have inserted the same token.
		if again, getErr := r.GetUserByToken(ctx, u.TokenIdentifier); getErr == nil {
			return again, nil
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return r.GetUserByID(ctx, u.ID)
}

func (r *repository) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT `+userColumns+` FROM users WHERE token_identifier = ?`), token)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *repository) CompleteOnboarding(ctx context.Context, userID string, loc model.Location, interests []string, at time.Time) error {
	list, err := encodeList(interests)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, r.rebind(`
		UPDATE users
		SET location_city = ?, location_state = ?, location_country = ?,
		    interests = ?, has_completed_onboarding = ?, updated_at = ?
		WHERE id = ?
	`), loc.City, loc.State, loc.Country, list, true, toMillis(at), userID)
	if err != nil {
		return fmt.Errorf("failed to complete onboarding: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}
