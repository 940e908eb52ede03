package penpot

import (
	"context"
	"fmt"
)

// Team roles accepted by InviteToTeam.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResolveProfileID logs in and returns the profile id, the value the
// application stores on its billing customers. The session stays on the client.
func (c *Client) ResolveProfileID(ctx context.Context, email, password string) (string, error) {
	var p Profile
	err := c.Call(ctx, "login-with-password", map[string]string{
		"email":    email,
		"password": password,
	}, &p)
	if err != nil {
		return "", fmt.Errorf("failed to log in as %s: %w", email, err)
	}
	if p.ID == "" {
		return "", fmt.Errorf("login as %s returned no profile id", email)
	}
	return p.ID, nil
}

// GetProfile returns the logged-in profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.Call(ctx, "get-profile", nil, &p); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (c *Client) CreateTeam(ctx context.Context, name string) (*Team, error) {
	var t Team
	if err := c.Call(ctx, "create-team", map[string]string{"name": name}, &t); err != nil {
		return nil, fmt.Errorf("failed to create team %q: %w", name, err)
	}
	return &t, nil
}

// InviteToTeam sends invitation mail to emails.
func (c *Client) InviteToTeam(ctx context.Context, teamID string, emails []string, role string) error {
	err := c.Call(ctx, "create-team-invitations", map[string]any{
		"teamId": teamID,
		"emails": emails,
		"role":   role,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to invite %v to team %s: %w", emails, teamID, err)
	}
	return nil
}

// DeleteTeam removes a team created by a test.
func (c *Client) DeleteTeam(ctx context.Context, teamID string) error {
	if err := c.Call(ctx, "delete-team", map[string]string{"id": teamID}, nil); err != nil {
		return fmt.Errorf("failed to delete team %s: %w", teamID, err)
	}
	return nil
}
