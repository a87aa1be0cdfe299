package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"zoomgo/internal/models"
	"zoomgo/internal/repositories/interfaces"
	"zoomgo/pkg/logger"
)

// DefaultProfilePolicy fills in a profile for display when the rider has no
// profile document or leaves fields empty.
type DefaultProfilePolicy struct {
	MissingName  string
	MissingEmail string
	EmptyName    string
	EmptyPhone   string
	// GreetingFallback is shown when the name cannot be read at all.
	GreetingFallback string
}

func StandardProfilePolicy() DefaultProfilePolicy {
	return DefaultProfilePolicy{
		MissingName:      "New User",
		MissingEmail:     "No email",
		EmptyName:        "Unnamed User",
		EmptyPhone:       "No phone number",
		GreetingFallback: "User",
	}
}

// EmailSource is implemented by authenticators that know the caller's
// sign-in email. Profiles fall back to it when they have no email of their own.
type EmailSource interface {
	CurrentEmail(ctx context.Context) (string, bool)
}

type ProfileService interface {
	CreateProfile(ctx context.Context, name, email string) (*models.Profile, error)
	UpdateContact(ctx context.Context, phone, pushToken string) error
	GetProfile(ctx context.Context) (*models.Profile, error)
	ProfileByUID(ctx context.Context, uid string) (*models.Profile, error)
	GreetingName(ctx context.Context) string
}

type profileService struct {
	store  interfaces.DocumentStore
	auth   Authenticator
	policy DefaultProfilePolicy
	logger *logger.Logger
	now    func() time.Time
}

func NewProfileService(store interfaces.DocumentStore, auth Authenticator, policy DefaultProfilePolicy, log *logger.Logger) ProfileService {
	if log == nil {
		log = logger.Discard()
	}
	return &profileService{
		store:  store,
		auth:   auth,
		policy: policy,
		logger: log,
		now:    time.Now,
	}
}

func (s *profileService) CreateProfile(ctx context.Context, name, email string) (*models.Profile, error) {
	uid, ok := s.auth.CurrentUserID(ctx)
	if !ok {
		return nil, newError(ErrUnauthenticated, "sign in to create a profile")
	}

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, newError(ErrInvalidInput, "name is required")
	}
	if email == "" {
		return nil, newError(ErrInvalidInput, "email is required")
	}

	createdAt := s.now().UTC()
	err := s.store.Set(ctx, models.UsersCollection, uid, interfaces.Fields{
		models.ProfileFieldName:      name,
		models.ProfileFieldEmail:     email,
		models.ProfileFieldCreatedAt: createdAt,
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to create profile")
		return nil, storeError("failed to create profile", err)
	}

	s.logger.WithContext(ctx).Info("Profile created")

	return &models.Profile{
		UID:       uid,
		Name:      name,
		Email:     email,
		Phone:     s.policy.EmptyPhone,
		CreatedAt: &createdAt,
	}, nil
}

func (s *profileService) UpdateContact(ctx context.Context, phone, pushToken string) error {
	uid, ok := s.auth.CurrentUserID(ctx)
	if !ok {
		return newError(ErrUnauthenticated, "sign in to update your profile")
	}

	fields := interfaces.Fields{}
	if phone = strings.TrimSpace(phone); phone != "" {
		fields[models.ProfileFieldPhone] = phone
	}
	if pushToken = strings.TrimSpace(pushToken); pushToken != "" {
		fields[models.ProfileFieldPushToken] = pushToken
	}
	if len(fields) == 0 {
		return newError(ErrInvalidInput, "phone or push token is required")
	}

	if err := s.store.Set(ctx, models.UsersCollection, uid, fields); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to update profile contact")
		return storeError("failed to update profile", err)
	}
	return nil
}

func (s *profileService) GetProfile(ctx context.Context) (*models.Profile, error) {
	uid, ok := s.auth.CurrentUserID(ctx)
	if !ok {
		return nil, newError(ErrUnauthenticated, "sign in to view your profile")
	}
	return s.profileByUID(ctx, uid, s.callerEmail(ctx))
}

// ProfileByUID reads any rider's profile. It does no caller check and is
// meant for server-side collaborators such as the notifier.
func (s *profileService) ProfileByUID(ctx context.Context, uid string) (*models.Profile, error) {
	return s.profileByUID(ctx, uid, "")
}

// profileByUID fills a missing email from signInEmail when one is known.
func (s *profileService) profileByUID(ctx context.Context, uid, signInEmail string) (*models.Profile, error) {
	if uid == "" {
		return nil, newError(ErrInvalidInput, "uid is required")
	}

	doc, err := s.store.Get(ctx, models.UsersCollection, uid)
	if err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			return s.missingProfile(uid, signInEmail), nil
		}
		s.logger.WithContext(ctx).WithError(err).Error("Failed to load profile")
		return nil, storeError("failed to load profile", err)
	}

	return s.decodeProfile(doc, signInEmail), nil
}

func (s *profileService) GreetingName(ctx context.Context) string {
	uid, ok := s.auth.CurrentUserID(ctx)
	if !ok {
		return s.policy.GreetingFallback
	}

	doc, err := s.store.Get(ctx, models.UsersCollection, uid)
	if err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			return s.policy.MissingName
		}
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to load profile for greeting")
		return s.policy.GreetingFallback
	}

	if name := stringField(doc.Fields, models.ProfileFieldName); name != "" {
		return name
	}
	return s.policy.GreetingFallback
}

func (s *profileService) callerEmail(ctx context.Context) string {
	source, ok := s.auth.(EmailSource)
	if !ok {
		return ""
	}
	email, _ := source.CurrentEmail(ctx)
	return email
}

func (s *profileService) missingProfile(uid, signInEmail string) *models.Profile {
	email := signInEmail
	if email == "" {
		email = s.policy.MissingEmail
	}
	return &models.Profile{
		UID:       uid,
		Name:      s.policy.MissingName,
		Email:     email,
		Phone:     s.policy.EmptyPhone,
		IsDefault: true,
	}
}

func (s *profileService) decodeProfile(doc interfaces.Document, signInEmail string) *models.Profile {
	profile := &models.Profile{
		UID:       doc.ID,
		Name:      stringField(doc.Fields, models.ProfileFieldName),
		Email:     stringField(doc.Fields, models.ProfileFieldEmail),
		Phone:     stringField(doc.Fields, models.ProfileFieldPhone),
		PushToken: stringField(doc.Fields, models.ProfileFieldPushToken),
	}
	if profile.Name == "" {
		profile.Name = s.policy.EmptyName
	}
	if profile.Email == "" {
		profile.Email = signInEmail
	}
	if profile.Phone == "" {
		profile.Phone = s.policy.EmptyPhone
	}

	switch v := doc.Fields[models.ProfileFieldCreatedAt].(type) {
	case time.Time:
		createdAt := v
		profile.CreatedAt = &createdAt
	case string:
		if createdAt, err := time.Parse(time.RFC3339Nano, v); err == nil {
			profile.CreatedAt = &createdAt
		}
	}
	return profile
}

// HasPhone reports whether the profile carries a real phone number rather
// than the policy placeholder.
func (p DefaultProfilePolicy) HasPhone(profile *models.Profile) bool {
	return profile != nil && profile.Phone != "" && profile.Phone != p.EmptyPhone
}
