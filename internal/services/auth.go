package services

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/bettodiaz/webtop-launcher/internal/config"
	"github.com/bettodiaz/webtop-launcher/internal/database"
	"github.com/bettodiaz/webtop-launcher/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenNotFound      = errors.New("token not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrLastAdmin          = errors.New("cannot remove the last admin")
	ErrTOTPRequired       = errors.New("totp code required")
	ErrInvalidTOTP        = errors.New("invalid totp code")
)

// AuthService owns user records, credentials, and bearer tokens.
type AuthService struct {
	db     *database.DB
	cfg    *config.Config
	crypto *CryptoService
	log    *logrus.Logger
}

func NewAuthService(db *database.DB, cfg *config.Config, crypto *CryptoService, log *logrus.Logger) *AuthService {
	return &AuthService{db: db, cfg: cfg, crypto: crypto, log: log}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.Auth.BcryptCost)
	return string(bytes), err
}

func (s *AuthService) CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *AuthService) CreateUser(username, password string, isAdmin bool) (*models.User, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		"INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)",
		username, hash, isAdmin,
	)
	if err != nil {
		return nil, ErrUserExists
	}

	id, _ := result.LastInsertId()
	return s.GetUserByID(id)
}

const userColumns = "id, username, password_hash, is_admin, totp_secret, totp_enabled, must_change_password, created_at, updated_at"

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin,
		&user.TOTPSecret, &user.TOTPEnabled, &user.MustChangePassword,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) GetUserByID(id int64) (*models.User, error) {
	return scanUser(s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func (s *AuthService) GetUserByUsername(username string) (*models.User, error) {
	return scanUser(s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

// GetAllUsers returns all users ordered by username.
func (s *AuthService) GetAllUsers() ([]models.User, error) {
	rows, err := s.db.Query("SELECT " + userColumns + " FROM users ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin,
			&user.TOTPSecret, &user.TOTPEnabled, &user.MustChangePassword,
			&user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CountAdmins returns the number of admin accounts.
func (s *AuthService) CountAdmins() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE is_admin = TRUE").Scan(&count)
	return count, err
}

// DeleteUser removes a user. Deleting the last remaining admin is rejected
// so the system can never lock out all administrators.
func (s *AuthService) DeleteUser(id int64) error {
	user, err := s.GetUserByID(id)
	if err != nil {
		return err
	}

	if user.IsAdmin {
		count, err := s.CountAdmins()
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastAdmin
		}
	}

	_, err = s.db.Exec("DELETE FROM users WHERE id = ?", id)
	return err
}

// Login verifies credentials (and the TOTP code when the account has it
// enabled) and issues a fresh bearer token. Previous tokens for the user are
// invalidated.
func (s *AuthService) Login(username, password, totpCode string) (*models.Token, *models.User, error) {
	user, err := s.GetUserByUsername(username)
	if err != nil {
		// Burn a bcrypt comparison so missing and present usernames take
		// comparable time.
		_ = s.CheckPassword(password, "$2a$12$AAAAAAAAAAAAAAAAAAAAAOAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
		return nil, nil, ErrInvalidCredentials
	}

	if !s.CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	if user.TOTPEnabled {
		if totpCode == "" {
			return nil, nil, ErrTOTPRequired
		}
		secret, err := s.crypto.Decrypt(user.TOTPSecret)
		if err != nil {
			return nil, nil, err
		}
		if !totp.Validate(totpCode, secret) {
			return nil, nil, ErrInvalidTOTP
		}
	}

	if err := s.InvalidateUserTokens(user.ID); err != nil {
		return nil, nil, err
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return token, user, nil
}

// IssueToken creates a new bearer token for the user.
func (s *AuthService) IssueToken(userID int64) (*models.Token, error) {
	tokenID := uuid.New().String()
	now := time.Now()
	expiresAt := now.Add(s.cfg.Auth.GetTokenDuration())

	_, err := s.db.Exec(
		"INSERT INTO tokens (id, user_id, expires_at) VALUES (?, ?, ?)",
		tokenID, userID, expiresAt,
	)
	if err != nil {
		return nil, err
	}

	return &models.Token{
		ID:        tokenID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// ValidateToken resolves a bearer token to its user, rejecting expired or
// unknown tokens.
func (s *AuthService) ValidateToken(tokenID string) (*models.User, error) {
	var token models.Token
	err := s.db.QueryRow(
		"SELECT id, user_id, expires_at, created_at FROM tokens WHERE id = ?",
		tokenID,
	).Scan(&token.ID, &token.UserID, &token.ExpiresAt, &token.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(token.ExpiresAt) {
		_ = s.DeleteToken(tokenID)
		return nil, ErrTokenExpired
	}

	return s.GetUserByID(token.UserID)
}

func (s *AuthService) DeleteToken(tokenID string) error {
	_, err := s.db.Exec("DELETE FROM tokens WHERE id = ?", tokenID)
	return err
}

func (s *AuthService) InvalidateUserTokens(userID int64) error {
	_, err := s.db.Exec("DELETE FROM tokens WHERE user_id = ?", userID)
	return err
}

func (s *AuthService) CleanExpiredTokens() error {
	_, err := s.db.Exec("DELETE FROM tokens WHERE expires_at < ?", time.Now())
	return err
}

// ChangePassword verifies the current password and replaces it, clearing any
// pending forced-change flag.
func (s *AuthService) ChangePassword(userID int64, current, next string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}

	if !s.CheckPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.HashPassword(next)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		"UPDATE users SET password_hash = ?, must_change_password = FALSE, updated_at = ? WHERE id = ?",
		hash, time.Now(), userID,
	)
	return err
}

// ResetPassword issues a generated one-time credential for the user, flags
// the account for a forced password change, and invalidates existing tokens.
// The generated password is returned exactly once, to the calling admin.
func (s *AuthService) ResetPassword(userID int64) (string, error) {
	if _, err := s.GetUserByID(userID); err != nil {
		return "", err
	}

	generated, err := s.GenerateSecurePassword(16)
	if err != nil {
		return "", err
	}

	hash, err := s.HashPassword(generated)
	if err != nil {
		return "", err
	}

	_, err = s.db.Exec(
		"UPDATE users SET password_hash = ?, must_change_password = TRUE, updated_at = ? WHERE id = ?",
		hash, time.Now(), userID,
	)
	if err != nil {
		return "", err
	}

	if err := s.InvalidateUserTokens(userID); err != nil {
		return "", err
	}

	return generated, nil
}

// BeginTOTPEnrollment generates a TOTP secret for the user and stores it
// encrypted. TOTP stays disabled until ConfirmTOTPEnrollment verifies a code.
func (s *AuthService) BeginTOTPEnrollment(user *models.User, issuer string) (secret, otpauthURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: user.Username,
	})
	if err != nil {
		return "", "", err
	}

	encrypted, err := s.crypto.Encrypt(key.Secret())
	if err != nil {
		return "", "", err
	}

	_, err = s.db.Exec(
		"UPDATE users SET totp_secret = ?, totp_enabled = FALSE, updated_at = ? WHERE id = ?",
		encrypted, time.Now(), user.ID,
	)
	if err != nil {
		return "", "", err
	}

	return key.Secret(), key.URL(), nil
}

// ConfirmTOTPEnrollment validates a code against the pending secret and
// switches TOTP on.
func (s *AuthService) ConfirmTOTPEnrollment(userID int64, code string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}

	secret, err := s.crypto.Decrypt(user.TOTPSecret)
	if err != nil {
		return err
	}
	if secret == "" || !totp.Validate(code, secret) {
		return ErrInvalidTOTP
	}

	_, err = s.db.Exec(
		"UPDATE users SET totp_enabled = TRUE, updated_at = ? WHERE id = ?",
		time.Now(), userID,
	)
	return err
}

// DisableTOTP removes the second factor from an account.
func (s *AuthService) DisableTOTP(userID int64) error {
	_, err := s.db.Exec(
		"UPDATE users SET totp_secret = '', totp_enabled = FALSE, updated_at = ? WHERE id = ?",
		time.Now(), userID,
	)
	return err
}

// GenerateSecurePassword generates a random URL-safe password.
func (s *AuthService) GenerateSecurePassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

// EnsureAdminUser creates the bootstrap admin account on first start. If the
// configured password is still the placeholder, a random one is generated and
// logged once.
func (s *AuthService) EnsureAdminUser() error {
	_, err := s.GetUserByUsername(s.cfg.Admin.Username)
	if err == nil {
		return nil
	}
	if err != ErrUserNotFound {
		return err
	}

	password := s.cfg.Admin.Password
	if password == "changeme" {
		generated, err := s.GenerateSecurePassword(16)
		if err != nil {
			return err
		}
		password = generated
		s.log.WithField("username", s.cfg.Admin.Username).
			Warnf("default admin password detected; generated credential: %s (change it after first login)", password)
	}

	_, err = s.CreateUser(s.cfg.Admin.Username, password, true)
	return err
}
