package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parcel-dispatch/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// ServiceInterface defines the contract for the user service.
type ServiceInterface interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	GetProfile(ctx context.Context, userID string) (*models.User, error)
	EmailByUserID(ctx context.Context, userID string) (string, error)
}

// Service implements the ServiceInterface.
type Service struct {
	repo      RepositoryInterface
	jwtSecret []byte
	now       func() time.Time
}

// NewService creates a new user service.
func NewService(repo RepositoryInterface, jwtSecret string) *Service {
	return &Service{repo: repo, jwtSecret: []byte(jwtSecret), now: time.Now}
}

// Register creates an account. Couriers must supply vehicle details; the
// role/profile pairing is enforced by models.NewUser.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("service.Register: hash password: %w", err)
	}

	var profile *models.CourierProfile
	if req.Role == models.RoleCourier {
		profile = &models.CourierProfile{
			VehicleType: req.VehicleType,
			PlateNumber: req.PlateNumber,
		}
	}

	u, err := models.NewUser(req.Email, req.FullName, req.Phone, string(hash), req.Role, profile)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, u)
	if err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			return nil, models.ErrEmailTaken
		}
		return nil, fmt.Errorf("service.Register: %w", err)
	}
	return created, nil
}

// Login verifies credentials and issues a signed token carrying the user id
// and role.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	u, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service.Login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"role": string(u.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("service.Login: sign token: %w", err)
	}

	return &models.LoginResponse{Token: signed, User: u}, nil
}

// GetProfile returns the authenticated user's account.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return s.repo.FindByID(ctx, userID)
}

// EmailByUserID resolves a user id to an email address. It lets the service
// act as the notification directory.
func (s *Service) EmailByUserID(ctx context.Context, userID string) (string, error) {
	return s.repo.EmailByUserID(ctx, userID)
}
