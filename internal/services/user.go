package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/microblog/microblog/internal/config"
	"github.com/microblog/microblog/internal/models"
	"github.com/microblog/microblog/internal/repository"
	"github.com/microblog/microblog/pkg/logger"
	"github.com/microblog/microblog/pkg/queue"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const resetPasswordClaim = "reset_password"

type UserService struct {
	db         *repository.Database
	userRepo   *repository.UserRepository
	followRepo *repository.FollowRepository
	postRepo   *repository.PostRepository
	counts     *CountCache
	producer   queue.Publisher
	jwtConfig  *config.JWTConfig
	logger     *logger.Logger

	passwordCost int
	now          func() time.Time
}

func NewUserService(
	db *repository.Database,
	userRepo *repository.UserRepository,
	followRepo *repository.FollowRepository,
	postRepo *repository.PostRepository,
	counts *CountCache,
	producer queue.Publisher,
	jwtConfig *config.JWTConfig,
	logger *logger.Logger,
) *UserService {
	return &UserService{
		db:           db,
		userRepo:     userRepo,
		followRepo:   followRepo,
		postRepo:     postRepo,
		counts:       counts,
		producer:     producer,
		jwtConfig:    jwtConfig,
		logger:       logger,
		passwordCost: bcrypt.DefaultCost,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email,max=120"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ResetPasswordTokenRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Username *string `json:"username" binding:"omitempty,min=1,max=64"`
	AboutMe  *string `json:"about_me" binding:"omitempty,max=140"`
}

// Register creates a user. Username and email are compared exactly as given.
// The password is hashed before the transaction opens so a hashing failure
// writes nothing.
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	hashedPassword, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		LastSeen:     now,
	}

	err = s.db.Transaction(ctx, func(tx *gorm.DB) error {
		users := s.userRepo.WithTx(tx)

		existing, err := users.GetByUsername(ctx, req.Username)
		if err != nil {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("username %q: %w", req.Username, ErrDuplicateIdentity)
		}

		existing, err = users.GetByEmail(ctx, req.Email)
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("email %q: %w", req.Email, ErrDuplicateIdentity)
		}

		// the unique indexes still catch a concurrent registration
		return users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.producer, s.logger, user.ID, queue.EventUserRegistered, now, queue.UserEventData{
		UserID:   user.ID,
		Username: user.Username,
	})

	s.logger.WithField("user_id", user.ID).Info("User registered successfully")
	return user, nil
}

// hashPassword reports bcrypt's 72-byte input limit as a constraint
// violation; any other failure is internal.
func (s *UserService) hashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, fmt.Errorf("password longer than 72 bytes: %w", ErrConstraintViolation)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hashed, nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// VerifyCredentials returns the user when username exists and password
// matches, and nil otherwise. A bcrypt comparison runs on both paths so the
// response time does not reveal whether the username exists.
func (s *UserService) VerifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user == nil {
		dummyHashOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), s.passwordCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}

	s.logger.WithField("user_id", user.ID).Info("User logged in successfully")
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return user, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint, req *UpdateProfileRequest) (*models.User, error) {
	if req.AboutMe != nil && utf8.RuneCountInString(*req.AboutMe) > models.MaxAboutMeLength {
		return nil, fmt.Errorf("about_me longer than %d characters: %w", models.MaxAboutMeLength, ErrConstraintViolation)
	}
	if req.Username != nil {
		n := utf8.RuneCountInString(*req.Username)
		if n == 0 || n > models.MaxUsernameLength {
			return nil, fmt.Errorf("username must be 1-%d characters: %w", models.MaxUsernameLength, ErrConstraintViolation)
		}
	}

	var user *models.User
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		users := s.userRepo.WithTx(tx)

		current, err := users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if current == nil {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}

		if req.Username != nil && *req.Username != current.Username {
			taken, err := users.GetByUsername(ctx, *req.Username)
			if err != nil {
				return fmt.Errorf("failed to check username: %w", err)
			}
			if taken != nil {
				return fmt.Errorf("username %q: %w", *req.Username, ErrDuplicateIdentity)
			}
			current.Username = *req.Username
		}
		if req.AboutMe != nil {
			current.AboutMe = *req.AboutMe
		}

		if err := users.UpdateProfile(ctx, userID, current.Username, current.AboutMe); err != nil {
			return err
		}
		user = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", userID).Info("User updated successfully")
	return user, nil
}

// TouchLastSeen records activity. Concurrent touches are last write wins.
func (s *UserService) TouchLastSeen(ctx context.Context, userID uint) error {
	return s.userRepo.TouchLastSeen(ctx, userID, s.now())
}

func (s *UserService) Search(ctx context.Context, query string, offset, limit int) ([]*models.User, error) {
	users, err := s.userRepo.Search(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the user together with their follow edges in both
// directions and their posts, in one transaction.
func (s *UserService) DeleteUser(ctx context.Context, userID uint) error {
	var (
		username  string
		neighbors []uint
	)
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		users := s.userRepo.WithTx(tx)
		follows := s.followRepo.WithTx(tx)

		user, err := users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if user == nil {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		username = user.Username

		if neighbors, err = follows.NeighborIDs(ctx, userID); err != nil {
			return err
		}
		if err := follows.DeleteAllFor(ctx, userID); err != nil {
			return err
		}
		if err := s.postRepo.WithTx(tx).DeleteByUserID(ctx, userID); err != nil {
			return err
		}
		return users.Delete(ctx, userID)
	})
	if err != nil {
		return err
	}

	s.counts.Invalidate(ctx, append(neighbors, userID)...)

	publish(ctx, s.producer, s.logger, userID, queue.EventUserDeleted, s.now(), queue.UserEventData{
		UserID:    userID,
		Username:  username,
		Neighbors: neighbors,
	})

	s.logger.WithField("user_id", userID).Info("User deleted successfully")
	return nil
}

// ResetPasswordToken issues an HS256 token naming the user, valid for the
// configured reset window.
func (s *UserService) ResetPasswordToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		resetPasswordClaim: user.ID,
		"exp":              s.now().Add(s.jwtConfig.ResetExpire).Unix(),
	})
	signed, err := token.SignedString([]byte(s.jwtConfig.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return signed, nil
}

// VerifyResetPasswordToken returns the user named by a valid token.
func (s *UserService) VerifyResetPasswordToken(ctx context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtConfig.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	id, ok := claims[resetPasswordClaim].(float64)
	if !ok || id < 1 {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, uint(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// RequestPasswordReset issues a reset token for the account registered with
// email and hands it to the event stream for delivery. Unknown addresses are
// not reported.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil
	}

	token, err := s.ResetPasswordToken(user)
	if err != nil {
		return err
	}

	publish(ctx, s.producer, s.logger, user.ID, queue.EventPasswordResetRequested, s.now(), queue.PasswordResetEventData{
		UserID: user.ID,
		Email:  user.Email,
		Token:  token,
	})
	return nil
}

func (s *UserService) ResetPassword(ctx context.Context, userID uint, password string) error {
	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, string(hashedPassword)); err != nil {
		return err
	}
	s.logger.WithField("user_id", userID).Info("Password reset successfully")
	return nil
}
