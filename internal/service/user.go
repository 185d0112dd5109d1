package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/smilecook/internal/access"
	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/mailer"
	"github.com/sakif/smilecook/internal/metrics"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository"
	"github.com/sakif/smilecook/internal/storage"
)

// RegisterInput is the body of POST /users.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=80,username"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Profile is a user as seen by one particular caller: the whole record for
// the user themself, the public subset for anyone else.
type Profile struct {
	User *model.User
	Full bool
}

// MarshalJSON writes the full record or the public subset. Email is only
// part of the full record.
func (p Profile) MarshalJSON() ([]byte, error) {
	if p.Full {
		return json.Marshal(p.User)
	}
	return json.Marshal(p.User.Public())
}

// ActivationURL builds the link mailed to a new user from their token.
type ActivationURL func(token string) string

// UserService handles accounts: registration, activation, profiles and
// avatars.
type UserService struct {
	users      repository.UserRepository
	passwords  *auth.PasswordService
	tokens     *auth.TokenService
	mail       mailer.Mailer
	files      storage.Storage
	images     *storage.Processor
	activation ActivationURL
	metrics    *metrics.Metrics
	logger     *slog.Logger
	validate   *validator.Validate
}

// NewUserService wires a UserService.
//
// activation turns an activation token into the link put in the email; the
// server builds it from PUBLIC_BASE_URL so the link points back at this
// deployment.
func NewUserService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	mail mailer.Mailer,
	files storage.Storage,
	images *storage.Processor,
	activation ActivationURL,
	m *metrics.Metrics,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:      users,
		passwords:  passwords,
		tokens:     tokens,
		mail:       mail,
		files:      files,
		images:     images,
		activation: activation,
		metrics:    m,
		logger:     logger,
		validate:   newValidator(),
	}
}

// Register creates an inactive account and emails its activation link.
// A mail failure is logged; the account still exists and the response is
// still 201.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validate(s.validate, in); err != nil {
		return nil, err
	}

	if err := s.ensureUnused(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}
	// The repository re-checks uniqueness with UNIQUE constraints in case
	// two registrations race past ensureUnused.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.Int64("id", user.ID),
		slog.String("username", user.Username),
	)

	s.sendActivation(ctx, user)
	return s.decorate(user), nil
}

func (s *UserService) ensureUnused(ctx context.Context, username, email string) error {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return apperror.Conflict("username already used")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("checking username: %w", err)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return apperror.Conflict("email already used")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("checking email: %w", err)
	}
	return nil
}

func (s *UserService) sendActivation(ctx context.Context, user *model.User) {
	token, err := s.tokens.GenerateActivation(user.Email)
	if err != nil {
		s.logger.Error("failed to create activation token", slog.Int64("user_id", user.ID), slog.String("error", err.Error()))
		s.metrics.EmailSent(false)
		return
	}

	msg, err := activationMessage(user.Email, user.Username, s.activation(token))
	if err != nil {
		s.logger.Error("failed to render activation email", slog.Int64("user_id", user.ID), slog.String("error", err.Error()))
		s.metrics.EmailSent(false)
		return
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send activation email", slog.Int64("user_id", user.ID), slog.String("error", err.Error()))
		s.metrics.EmailSent(false)
		return
	}
	s.metrics.EmailSent(true)
}

// Get returns a profile by username, full when actor is that user.
func (s *UserService) Get(ctx context.Context, actor access.Actor, username string) (*Profile, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return &Profile{User: s.decorate(user), Full: actor.Is(user.ID)}, nil
}

// Me returns the caller's own record.
func (s *UserService) Me(ctx context.Context, actor access.Actor) (*model.User, error) {
	id, ok := actor.ID()
	if !ok {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decorate(user), nil
}

// Activate marks the account named by an activation token as active.
func (s *UserService) Activate(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token, auth.TypeActivate)
	if err != nil {
		return apperror.ValidationFailed("token", "Invalid token or token expired")
	}

	user, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if user.IsActive {
		return apperror.ValidationFailed("token", "The user account is already activated")
	}

	user.IsActive = true
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("activating user %d: %w", user.ID, err)
	}

	s.logger.Info("user activated", slog.Int64("id", user.ID))
	return nil
}

// SetAvatar replaces the caller's avatar with the uploaded image.
func (s *UserService) SetAvatar(ctx context.Context, actor access.Actor, filename string, r io.Reader) (*model.User, error) {
	user, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}

	ref, err := saveImage(ctx, s.files, s.images, s.metrics, storage.FolderAvatars, "avatar", filename, r)
	if err != nil {
		return nil, err
	}

	old := user.AvatarImage
	user.AvatarImage = ref
	if err := s.users.Update(ctx, user); err != nil {
		removeImage(ctx, s.files, s.logger, ref)
		return nil, fmt.Errorf("updating avatar of user %d: %w", user.ID, err)
	}

	removeImage(ctx, s.files, s.logger, old)
	return s.decorate(user), nil
}

func (s *UserService) decorate(u *model.User) *model.User {
	u.AvatarURL = s.files.URL(u.AvatarImage)
	return u
}
