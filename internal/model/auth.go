package model

import "time"

// AuthRequest - login / register body. DisplayName is only read on register.
type AuthRequest struct {
	ID          string `json:"id"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type AuthResponse struct {
	AccessToken string         `json:"accessToken"`
	ExpiresIn   int64          `json:"expiresIn"`
	User        AuthMeResponse `json:"user"`
}

type AuthConfigResponse struct {
	AllowSignup bool `json:"allowSignup"`
}

type AuthLogoutResponse struct {
	Status string `json:"status"`
}

type AuthMeResponse struct {
	UserID      int64  `json:"userId"`
	LoginID     string `json:"loginId"`
	DisplayName string `json:"displayName"`
}

// DisplayNameRequest - body of PATCH /api/v1/auth/me. Empty clears the name.
type DisplayNameRequest struct {
	DisplayName string `json:"displayName"`
}

// AuthUser - identity carried by an access token
type AuthUser struct {
	ID          int64
	LoginID     string
	DisplayName string
}

// Actor - name stamped on completed contracts and settings changes
func (u AuthUser) Actor() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.LoginID
}

// Me - public view of the identity
func (u AuthUser) Me() AuthMeResponse {
	return AuthMeResponse{UserID: u.ID, LoginID: u.LoginID, DisplayName: u.DisplayName}
}

type User struct {
	ID           int64
	LoginID      string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) AuthUser() AuthUser {
	return AuthUser{ID: u.ID, LoginID: u.LoginID, DisplayName: u.DisplayName}
}

type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
