package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminSubject is the sub claim of tokens issued to the dashboard operator.
const AdminSubject = "admin"

// ErrInvalidCredentials is returned for a wrong admin password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Admin exchanges the operator password for an admin token.
type Admin struct {
	hash   string
	issuer *Issuer
}

// NewAdmin validates the configured bcrypt hash.
func NewAdmin(hash string, issuer *Issuer) (*Admin, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, errors.New("admin password hash is not configured")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.New("admin password hash is not a bcrypt hash")
	}
	if issuer == nil {
		return nil, ErrMissingSecret
	}
	return &Admin{hash: hash, issuer: issuer}, nil
}

// Login checks the password and returns a signed token with role admin.
func (a *Admin) Login(password string) (string, int64, error) {
	if err := VerifyPassword(a.hash, password); err != nil {
		return "", 0, ErrInvalidCredentials
	}
	token, _, err := a.issuer.GenerateToken(AdminSubject, []string{RoleAdmin})
	if err != nil {
		return "", 0, err
	}
	return token, int64(a.issuer.TTL().Seconds()), nil
}
