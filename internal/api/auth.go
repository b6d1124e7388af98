package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/ehr-terminal/internal/model"
)

// AuthResult is the outcome of a successful login or registration.
type AuthResult struct {
	Token   string
	Session model.Session
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"user_type"`
}

type registerBody struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Phone          string `json:"phone"`
	UserType       string `json:"user_type"`
	Specialization string `json:"specialization,omitempty"`
}

type resetBody struct {
	Email       string `json:"email"`
	NewPassword string `json:"new_password,omitempty"`
}

// Login exchanges credentials for a token and the user's profile.
func (c *Client) Login(ctx context.Context, email, password string, role model.Role) (*AuthResult, error) {
	const op = "login"
	var resp authResponse
	err := c.post(ctx, op, "/api/auth/login", loginBody{
		Email:    email,
		Password: password,
		UserType: string(role),
	}, &resp)
	if err != nil {
		// A rejected login is a credential problem, not an expired session.
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Kind == KindAuth && apiErr.Message == "" {
			apiErr.Message = "Invalid email or password"
		}
		return nil, err
	}
	return authResult(op, resp, role)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, f model.RegistrationForm) (*AuthResult, error) {
	const op = "register"
	body := registerBody{
		Name:     f.FullName,
		Email:    f.Email,
		Password: f.Password,
		Phone:    f.Phone,
		UserType: string(f.Role),
	}
	if f.Role == model.RoleDoctor {
		body.Specialization = f.Specialization
	}

	var resp authResponse
	if err := c.post(ctx, op, "/api/auth/register", body, &resp); err != nil {
		return nil, err
	}
	return authResult(op, resp, f.Role)
}

func authResult(op string, resp authResponse, requested model.Role) (*AuthResult, error) {
	if resp.Success != nil && !*resp.Success {
		return nil, &Error{Kind: KindAuth, Op: op, Message: resp.Message}
	}
	if resp.Token == "" || resp.User == nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: fmt.Errorf("response lacks token or user")}
	}
	s, err := resp.User.session(requested)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return &AuthResult{Token: resp.Token, Session: s}, nil
}

// Logout tells the backend to end the session behind the current token.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "logout", "/api/auth/logout", nil, nil)
}

// Verify returns the identity behind the current token.
func (c *Client) Verify(ctx context.Context) (model.Session, error) {
	const op = "verify"
	var resp authResponse
	if err := c.get(ctx, op, "/api/auth/verify", &resp); err != nil {
		return model.Session{}, err
	}
	if resp.User == nil {
		return model.Session{}, &Error{Kind: KindDecode, Op: op, Err: fmt.Errorf("response lacks user")}
	}
	s, err := resp.User.session("")
	if err != nil {
		return model.Session{}, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return s, nil
}

// ResetPassword asks the backend to reset the account's password. The
// backend owns all password material.
func (c *Client) ResetPassword(ctx context.Context, email, newPassword string) error {
	return c.post(ctx, "reset password", "/api/auth/reset-password", resetBody{
		Email:       email,
		NewPassword: newPassword,
	}, nil)
}
