package identities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const issuer = "investex"

// IdentityService defines user identity operations.
type IdentityService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	ValidateToken(token string) (models.Identity, error)
}

// Claims are the JWT claims issued at login
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Service implements IdentityService
type Service struct {
	logger             *zap.Logger
	db                 *gorm.DB
	jwtSecret          []byte
	jwtExpirationHours int
	timeout            time.Duration
}

// NewService creates a new IdentityService
func NewService(logger *zap.Logger, db *gorm.DB, jwtSecret string, jwtExpirationHours int, timeout time.Duration) *Service {
	if jwtExpirationHours <= 0 {
		jwtExpirationHours = 24
	}
	return &Service{
		logger:             logger.Named("identities"),
		db:                 db,
		jwtSecret:          []byte(jwtSecret),
		jwtExpirationHours: jwtExpirationHours,
		timeout:            timeout,
	}
}

// Register creates a user with the user role and logs them in.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	user, err := s.createUser(ctx, req.Name, req.Email, req.Password, models.RoleUser)
	if err != nil {
		return nil, err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	return &models.LoginResponse{User: user, Token: token, Role: user.Role}, nil
}

func (s *Service) createUser(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(fmt.Errorf("failed to hash password: %w", err))
	}

	user := &models.User{
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: string(hashedPassword),
		Role:         role,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		err = database.WrapError(err)
		if errors.Is(err, errors.Conflict) {
			return nil, errors.Conflict.Explain("email already registered")
		}
		return nil, err
	}
	return user, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Unauthorized
		}
		return nil, database.WrapError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.Unauthorized
	}

	token, err := s.generateToken(&user)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{User: &user, Token: token, Role: user.Role}, nil
}

// ValidateToken validates a JWT token and returns the acting identity.
func (s *Service) ValidateToken(tokenString string) (models.Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return models.Identity{}, errors.Unauthorized.Explain("invalid token").Wrap(err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Identity{}, errors.Unauthorized.Explain("invalid token subject")
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.Identity{}, errors.Unauthorized.Explain("invalid token role")
	}

	return models.Identity{UserID: userID, Email: claims.Email, Role: role}, nil
}

// EnsureAdmin creates an administrator, or promotes the existing user with
// that email after checking the password.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.createUser(ctx, name, email, password, models.RoleAdmin)
	}
	if err != nil {
		return nil, database.WrapError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Unauthorized
	}
	if user.Role != models.RoleAdmin {
		if err := s.db.WithContext(ctx).Model(&user).Update("role", models.RoleAdmin).Error; err != nil {
			return nil, database.WrapError(err)
		}
		user.Role = models.RoleAdmin
		s.logger.Info("User promoted to admin", zap.String("user_id", user.ID.String()))
	}
	return &user, nil
}

// generateToken generates a JWT token
func (s *Service) generateToken(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour * time.Duration(s.jwtExpirationHours))),
		},
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", errors.Wrap(fmt.Errorf("failed to sign token: %w", err))
	}
	return tokenString, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
