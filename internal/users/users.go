// Package users stores identity-provider users and their onboarding profile.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"eventhive/internal/apperr"
	"eventhive/internal/auth"
	"eventhive/internal/category"
	"eventhive/internal/model"
	"eventhive/internal/repo"
)

const anonymousName = "Anonymous"

type Store interface {
	UpsertUser(ctx context.Context, u model.User) (*model.User, error)
	GetUserByToken(ctx context.Context, token string) (*model.User, error)
	CompleteOnboarding(ctx context.Context, userID string, loc model.Location, interests []string, at time.Time) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func New(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Store records the caller on first authenticated contact. Repeated calls
// return the same user and only refresh the display name.
func (s *Service) Store(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if id == nil || id.TokenIdentifier == "" {
		return nil, apperr.ErrUnauthorized
	}
	name := id.Name
	if name == "" {
		u, err := s.store.GetUserByToken(ctx, id.TokenIdentifier)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repo.ErrUserNotFound) {
			return nil, err
		}
		name = anonymousName
	}

	now := s.now()
	return s.store.UpsertUser(ctx, model.User{
		TokenIdentifier: id.TokenIdentifier,
		Name:            name,
		Email:           id.Email,
		ImageURL:        id.PictureURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// Resolve returns the stored user behind id. A missing identity and an
// identity that was never stored both count as unauthenticated.
func (s *Service) Resolve(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if id == nil || id.TokenIdentifier == "" {
		return nil, apperr.ErrUnauthorized
	}
	u, err := s.store.GetUserByToken(ctx, id.TokenIdentifier)
	if errors.Is(err, repo.ErrUserNotFound) {
		return nil, apperr.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Current is Resolve for the "who am I" endpoint, where an unknown user is
// reported as not found rather than unauthenticated.
func (s *Service) Current(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if id == nil || id.TokenIdentifier == "" {
		return nil, apperr.ErrUnauthorized
	}
	u, err := s.store.GetUserByToken(ctx, id.TokenIdentifier)
	if errors.Is(err, repo.ErrUserNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return u, err
}

type OnboardingRequest struct {
	Location  model.Location
	Interests []string
}

func (s *Service) CompleteOnboarding(ctx context.Context, id *auth.Identity, req OnboardingRequest) (*model.User, error) {
	u, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	loc := model.Location{
		City:    strings.TrimSpace(req.Location.City),
		State:   strings.TrimSpace(req.Location.State),
		Country: strings.TrimSpace(req.Location.Country),
	}
	if loc.City == "" || loc.Country == "" {
		return nil, apperr.New(apperr.KindInvalid, "location city and country are required")
	}

	interests := make([]string, 0, len(req.Interests))
	seen := make(map[string]struct{}, len(req.Interests))
	for _, c := range req.Interests {
		if !category.Known(c) {
			return nil, apperr.New(apperr.KindInvalid, "unknown interest category: "+c)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		interests = append(interests, c)
	}

	now := s.now()
	if err := s.store.CompleteOnboarding(ctx, u.ID, loc, interests, now); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}

	u.Location = &loc
	u.Interests = interests
	u.HasCompletedOnboarding = true
	u.UpdatedAt = now
	return u, nil
}
