package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/ehr-terminal/internal/api"
	"github.com/nhle/ehr-terminal/internal/credential"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/store"
	"github.com/nhle/ehr-terminal/internal/validate"
)

// State is the position in the sign-in state machine.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Source tells where an effective session was read from.
type Source int

const (
	SourceNone Source = iota
	SourceMemory
	SourceDurable
)

// Effective is the reconciled view of who is signed in.
type Effective struct {
	// Session is set when an identity is known.
	Session *model.Session

	// HasToken reports a usable bearer token, in memory or durable.
	HasToken bool

	Source Source
}

// Provisional reports a token without a known identity.
func (e Effective) Provisional() bool {
	return e.Session == nil && e.HasToken
}

// Authenticator is the backend side of sign-in. *api.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, email, password string, role model.Role) (*api.AuthResult, error)
	Register(ctx context.Context, f model.RegistrationForm) (*api.AuthResult, error)
	Logout(ctx context.Context) error
	ResetPassword(ctx context.Context, email, newPassword string) error
}

// Messages shown to the user.
const (
	msgInProgress   = "Sign-in already in progress"
	msgSaveFailed   = "Could not save your session. Please try again."
	msgUserNotFound = "User not found"
	msgExpired      = "Your session has expired. Please sign in again."
)

// Store owns the signed-in identity. It keeps the in-memory session and
// the durable token/user/welcome slots in step; every reader goes
// through Effective.
type Store struct {
	durable store.Durable
	auth    Authenticator
	log     logrus.FieldLogger
	now     func() time.Time

	mu      gosync.RWMutex
	state   State
	current *model.Session
	token   string
	errMsg  string
}

// New builds a Store and rehydrates it from durable storage. A corrupt
// user slot leaves the store anonymous.
func New(ctx context.Context, durable store.Durable, auth Authenticator, log logrus.FieldLogger) *Store {
	s := &Store{
		durable: durable,
		auth:    auth,
		log:     log,
		now:     time.Now,
	}
	s.rehydrate(ctx)
	return s
}

func (s *Store) rehydrate(ctx context.Context) {
	user, err := s.readDurableUser(ctx)
	if err != nil {
		s.log.WithError(err).Warn("ignoring stored session")
		return
	}
	if user == nil {
		return
	}
	s.current = user
	s.state = Authenticated
	if token, ok := s.readDurableToken(ctx); ok {
		s.token = token
	}
	s.log.WithFields(logrus.Fields{"user": user.UserID, "role": user.Role}).Debug("session restored")
}

// readDurableUser parses the user slot. A missing slot is (nil, nil).
func (s *Store) readDurableUser(ctx context.Context) (*model.Session, error) {
	raw, ok, err := s.durable.GetSlot(ctx, store.SlotUser)
	if err != nil {
		return nil, fmt.Errorf("reading user slot: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var user model.Session
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("parsing user slot: %w", err)
	}
	if user.IsZero() || !user.Role.Valid() {
		return nil, fmt.Errorf("user slot holds no usable identity")
	}
	return &user, nil
}

// readDurableToken returns the stored token unless it is known to be
// expired.
func (s *Store) readDurableToken(ctx context.Context) (string, bool) {
	token, ok, err := s.durable.GetSlot(ctx, store.SlotToken)
	if err != nil {
		s.log.WithError(err).Warn("reading token slot")
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	if credential.InspectToken(token).Expired(s.now()) {
		return "", false
	}
	return token, true
}

// State returns the current state machine position.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the last user-visible error, if any.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// ClearErr drops the error shown on the sign-in forms.
func (s *Store) ClearErr() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// Current returns the in-memory session, if any.
func (s *Store) Current() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Session{}, false
	}
	return *s.current, true
}

// Effective reconciles memory and durable storage. The memory session
// wins; otherwise the durable user is parsed best-effort and token
// presence is reported on its own.
func (s *Store) Effective(ctx context.Context) Effective {
	s.mu.RLock()
	current, token := s.current, s.token
	s.mu.RUnlock()

	if current != nil {
		sess := *current
		hasToken := token != "" && !credential.InspectToken(token).Expired(s.now())
		if !hasToken {
			_, hasToken = s.readDurableToken(ctx)
		}
		return Effective{Session: &sess, HasToken: hasToken, Source: SourceMemory}
	}

	eff := Effective{}
	if user, err := s.readDurableUser(ctx); err == nil && user != nil {
		eff.Session = user
		eff.Source = SourceDurable
	}
	_, eff.HasToken = s.readDurableToken(ctx)
	if eff.Session == nil && eff.HasToken {
		eff.Source = SourceDurable
	}
	return eff
}

// Token returns the bearer token for outgoing requests.
func (s *Store) Token(ctx context.Context) string {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token != "" {
		return token
	}
	token, _ = s.readDurableToken(ctx)
	return token
}

// begin moves to Authenticating. It fails when a sign-in is already
// running.
func (s *Store) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticating {
		s.errMsg = msgInProgress
		return false
	}
	s.state = Authenticating
	s.errMsg = ""
	return true
}

// fail returns to Anonymous, or to the previous session when one was
// held, with a user-visible message.
func (s *Store) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.state = Authenticated
	} else {
		s.state = Anonymous
	}
	s.errMsg = msg
}

// rejectInput records a validation problem without touching the state
// machine or the network.
func (s *Store) rejectInput(err error) bool {
	s.mu.Lock()
	s.errMsg = api.UserMessage(err)
	s.mu.Unlock()
	return false
}

// Login signs in and persists the session. It reports failure through
// the return value and Err, never through a panic or error.
func (s *Store) Login(ctx context.Context, email, password string, role model.Role) bool {
	if err := validate.Login(email, password, role); err != nil {
		return s.rejectInput(err)
	}
	if !s.begin() {
		return false
	}

	res, err := s.auth.Login(ctx, email, password, role)
	if err != nil {
		s.logAuthFailure("login", email, err)
		s.fail(api.UserMessage(err))
		return false
	}

	welcome := fmt.Sprintf("Welcome back, %s! You have successfully logged in.", res.Session.DisplayName)
	return s.establish(ctx, res, welcome)
}

// Register creates an account, then behaves like Login.
func (s *Store) Register(ctx context.Context, f model.RegistrationForm) bool {
	if err := validate.Registration(f); err != nil {
		return s.rejectInput(err)
	}
	if !s.begin() {
		return false
	}

	res, err := s.auth.Register(ctx, f)
	if err != nil {
		s.logAuthFailure("register", f.Email, err)
		s.fail(api.UserMessage(err))
		return false
	}

	welcome := fmt.Sprintf("Registration successful! Welcome to Arogya Mithra, %s!", res.Session.DisplayName)
	return s.establish(ctx, res, welcome)
}

func (s *Store) logAuthFailure(op, email string, err error) {
	entry := s.log.WithFields(logrus.Fields{"op": op, "email": email, "kind": api.KindOf(err).String()})
	if api.KindOf(err) == api.KindValidation || api.KindOf(err) == api.KindAuth {
		entry.Info("sign-in rejected")
		return
	}
	entry.WithError(err).Warn("sign-in failed")
}

// establish writes token, user and welcome together, then adopts the
// session in memory.
func (s *Store) establish(ctx context.Context, res *api.AuthResult, welcome string) bool {
	sess := res.Session
	userJSON, err := json.Marshal(sess)
	if err != nil {
		s.log.WithError(err).Error("encoding session")
		s.fail(msgSaveFailed)
		return false
	}

	err = s.durable.PutSlots(ctx, map[string]string{
		store.SlotToken:   res.Token,
		store.SlotUser:    string(userJSON),
		store.SlotWelcome: welcome,
	})
	if err != nil {
		s.log.WithError(err).Error("persisting session")
		s.fail(msgSaveFailed)
		return false
	}

	s.mu.Lock()
	s.current = &sess
	s.token = res.Token
	s.state = Authenticated
	s.errMsg = ""
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"user": sess.UserID, "role": sess.Role}).Info("signed in")
	return true
}

// Adopt records an identity discovered for a token-only session, e.g.
// by the first dashboard fetch after a restart.
func (s *Store) Adopt(ctx context.Context, sess model.Session) error {
	userJSON, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.durable.PutSlots(ctx, map[string]string{store.SlotUser: string(userJSON)}); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	token, _ := s.readDurableToken(ctx)

	s.mu.Lock()
	s.current = &sess
	if s.token == "" {
		s.token = token
	}
	s.state = Authenticated
	s.mu.Unlock()
	return nil
}

// Logout clears the memory session and exactly the three durable
// slots. The backend is told on a best-effort basis. Calling it without
// a session is a no-op apart from the slot delete.
func (s *Store) Logout(ctx context.Context) error {
	return s.end(ctx, "")
}

// Expire ends a session the backend rejected and leaves a message for
// the login view.
func (s *Store) Expire(ctx context.Context) error {
	return s.end(ctx, msgExpired)
}

func (s *Store) end(ctx context.Context, msg string) error {
	hadToken := s.Token(ctx) != ""

	if hadToken && msg == "" {
		if err := s.auth.Logout(ctx); err != nil {
			s.log.WithError(err).Info("backend logout failed")
		}
	}

	s.mu.Lock()
	s.current = nil
	s.token = ""
	s.state = Anonymous
	s.errMsg = msg
	s.mu.Unlock()

	if err := s.durable.DeleteSlots(ctx, store.SlotToken, store.SlotUser, store.SlotWelcome); err != nil {
		s.log.WithError(err).Error("clearing stored session")
		return fmt.Errorf("clearing stored session: %w", err)
	}
	s.log.Info("signed out")
	return nil
}

// TakeWelcome returns the pending welcome banner and removes it, so it
// is shown once.
func (s *Store) TakeWelcome(ctx context.Context) string {
	msg, ok, err := s.durable.GetSlot(ctx, store.SlotWelcome)
	if err != nil {
		s.log.WithError(err).Warn("reading welcome slot")
		return ""
	}
	if !ok {
		return ""
	}
	if err := s.durable.DeleteSlots(ctx, store.SlotWelcome); err != nil {
		s.log.WithError(err).Warn("clearing welcome slot")
	}
	return msg
}

// ResetPassword asks the backend to reset the account's password. The
// client never keeps password material.
func (s *Store) ResetPassword(ctx context.Context, email, newPassword string) bool {
	if err := validate.Email(email); err != nil {
		return s.rejectInput(err)
	}
	if newPassword != "" {
		if err := validate.Password(newPassword); err != nil {
			return s.rejectInput(err)
		}
	}

	err := s.auth.ResetPassword(ctx, email, newPassword)
	switch {
	case err == nil:
		s.ClearErr()
		return true
	case api.IsNotFound(err):
		s.setErr(msgUserNotFound)
	case errors.Is(err, context.Canceled):
		s.setErr(api.UserMessage(err))
	default:
		s.log.WithError(err).Warn("password reset failed")
		s.setErr(api.UserMessage(err))
	}
	return false
}

func (s *Store) setErr(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
}
