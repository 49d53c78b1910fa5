// Package auth implements registration, login and current-user lookup on
// top of the credential store and the token service.
package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"example.com/socialfeed/internal/apperr"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// Unknown email and wrong password share one message so login cannot be
// used to probe which emails are registered.
const msgInvalidCredentials = "Invalid credentials"

var logg = logger.New()

// Issuer signs identity tokens.
type Issuer interface {
	Issue(userID string) (string, error)
}

type Service struct {
	users  store.UserStore
	tokens Issuer
	cost   int
	now    func() time.Time
}

func NewService(users store.UserStore, tokens Issuer, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:  users,
		tokens: tokens,
		cost:   bcryptCost,
		now:    time.Now,
	}
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates the account and returns a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := ValidateRegister(in); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return "", apperr.Internal(err)
	}

	u := models.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Avatar:       AvatarURL(in.Email),
		Created:      s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return "", apperr.Conflict("User already exist")
		}
		return "", apperr.Internal(err)
	}

	logg.Info("auth", "Registered user_id="+u.ID)
	return s.issue(u.ID)
}

// Login checks the password and returns a fresh token.
func (s *Service) Login(ctx context.Context, in LoginInput) (string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := ValidateLogin(in); err != nil {
		return "", err
	}

	u, err := s.users.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		logg.Info("auth", "Login for unknown email "+in.Email)
		return "", invalidCredentials()
	}
	if err != nil {
		return "", apperr.Internal(err)
	}

	if !CompareSecret(in.Password, u.PasswordHash) {
		logg.Info("auth", "Bad password for user_id="+u.ID)
		return "", invalidCredentials()
	}
	return s.issue(u.ID)
}

// CurrentUser loads the profile of an authenticated user.
func (s *Service) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}
	return u, nil
}

func (s *Service) issue(userID string) (string, error) {
	tok, err := s.tokens.Issue(userID)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return tok, nil
}

func invalidCredentials() error {
	return apperr.Validation(apperr.FieldError{Msg: msgInvalidCredentials})
}

// CompareSecret reports whether plain matches the bcrypt hash. It returns
// only after the comparison has finished.
func CompareSecret(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// AvatarURL derives the gravatar URL for an email (200px, pg rating,
// mystery-man fallback).
func AvatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "//www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?s=200&r=pg&d=mm"
}

// ValidateRegister collects every field error at once.
func ValidateRegister(in RegisterInput) error {
	return check(in, registerMessages)
}

func ValidateLogin(in LoginInput) error {
	return check(in, loginMessages)
}

// fieldMessages maps "param" or "param.tag" to the message sent back to
// the client. The more specific key wins.
type fieldMessages map[string]string

var registerMessages = fieldMessages{
	"name":              "Name is required",
	"email":             "Please include a valid email",
	"password":          "Please enter a password with 6 or more characters",
	"password.maxbytes": "Please enter a password of at most 72 bytes",
}

var loginMessages = fieldMessages{
	"email":    "Please include a valid email",
	"password": "Password is required",
}

func (m fieldMessages) lookup(fe validator.FieldError) string {
	if msg, ok := m[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := m[fe.Field()]; ok {
		return msg
	}
	return "Invalid value"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}
	return v
}

// maxBytes limits the encoded length of a string; min/max count runes.
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

func check(in any, msgs fieldMessages) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal(err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Param: fe.Field(), Msg: msgs.lookup(fe)})
	}
	return apperr.Validation(fields...)
}
