package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cancersense/apperr"
)

// invalidCredentials is shared by unknown users and wrong passwords.
const invalidCredentials = "Invalid username or password"

var emailPattern = regexp.MustCompile(`^[\p{L}\p{N}_.-]+@[\p{L}\p{N}_.-]+\.[\p{L}\p{N}_]+$`)

type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePassword requires at least 8 characters with an upper case
// letter, a lower case letter and a digit.
func ValidatePassword(password string) bool {
	if utf8.RuneCountInString(password) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

// Register creates an account. Duplicate usernames or emails yield a
// conflict error.
func (s *Store) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case username == "":
		return apperr.Validation("Username is required")
	case !ValidateEmail(email):
		return apperr.Validation("Invalid email format")
	case !ValidatePassword(password):
		return apperr.Validation("Password must be at least 8 characters long and contain uppercase, lowercase, and numbers")
	}

	db, err := s.ensureConnected(ctx)
	if err != nil {
		return err
	}

	var exists int
	err = db.GetContext(ctx, &exists, db.Rebind(
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`), username, email)
	if err != nil {
		s.logger.Error("register lookup failed", zap.Error(err))
		return apperr.Storage("Registration failed", err)
	}
	if exists > 0 {
		return apperr.Conflict("Username or email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return apperr.Validation("Password is too long")
		}
		return apperr.Wrap(err, "failed to hash password")
	}

	var id int64
	err = db.QueryRowxContext(ctx, db.Rebind(
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		username, email, string(hash), s.now()).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("Username or email already exists")
		}
		s.logger.Error("register insert failed", zap.Error(err))
		return apperr.Storage("Registration failed", err)
	}
	s.userIDs.Add(username, id)
	s.logger.Info("user registered", zap.Int64("user_id", id))
	return nil
}

// Authenticate checks the credentials and returns the account.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	db, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	var user User
	err = db.GetContext(ctx, &user, db.Rebind(
		`SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`),
		strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Auth(invalidCredentials)
	}
	if err != nil {
		s.logger.Error("authenticate lookup failed", zap.Error(err))
		return nil, apperr.Storage("Login failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Auth(invalidCredentials)
	}
	s.userIDs.Add(user.Username, user.ID)
	return &user, nil
}

// ResolveUserID looks up the id for username. Accounts are never renamed
// or deleted, so once connected, hits are served from the cache.
func (s *Store) ResolveUserID(ctx context.Context, username string) (int64, bool, error) {
	db, err := s.ensureConnected(ctx)
	if err != nil {
		return 0, false, err
	}
	if id, ok := s.userIDs.Get(username); ok {
		return id, true, nil
	}
	var id int64
	err = db.GetContext(ctx, &id, db.Rebind(`SELECT id FROM users WHERE username = ?`), username)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperr.Storage("failed to resolve user", err)
	}
	s.userIDs.Add(username, id)
	return id, true, nil
}
