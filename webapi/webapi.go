// Package webapi looks up the account behind an access token.
package webapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// Profile is the subset of the current user the daemon reports.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
	Country     string
	Product     string
	Images      []string
}

// Name returns the display name, falling back to the user id.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// Client calls the Web API on behalf of whoever owns a token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server.
// The URL must end with a slash.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the transport used underneath the token source.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(opts ...Option) *Client {
	c := &Client{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CurrentUser fetches the profile of the token's owner.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (Profile, error) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	var opts []spotify.ClientOption
	if c.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.baseURL))
	}
	api := spotify.New(oauth2.NewClient(ctx, src), opts...)

	user, err := api.CurrentUser(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch current user: %w", err)
	}

	p := Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Country:     user.Country,
		Product:     user.Product,
	}
	for _, img := range user.Images {
		p.Images = append(p.Images, img.URL)
	}
	return p, nil
}
