package mailbox

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Provider is read access to one mail account. Implementations must not modify messages.
type Provider interface {
	// List returns the ids of messages carrying label that were sent to recipient.
	List(ctx context.Context, label, recipient string) ([]string, error)

	// Get fetches a message with its body decoded.
	Get(ctx context.Context, id string) (*Message, error)
}

// GmailConfig selects how a GmailProvider reaches its account.
type GmailConfig struct {
	// User is the Gmail user id, usually "me".
	User string

	// OAuth2 refresh-token credentials for the real Gmail API.
	ClientID     string
	ClientSecret string
	RefreshToken string

	// Endpoint overrides the API base URL, e.g. a local mail stub. When set,
	// StaticToken (if any) is sent as a bearer token instead of OAuth2 credentials.
	Endpoint    string
	StaticToken string

	// RequestTimeout bounds each provider call. Defaults to 10 seconds.
	RequestTimeout time.Duration
}

// GmailProvider reads a mailbox through the Gmail REST API.
type GmailProvider struct {
	svc  *gmail.Service
	user string
}

var _ Provider = (*GmailProvider)(nil)

// NewGmailProvider creates a provider for cfg.
func NewGmailProvider(ctx context.Context, cfg GmailConfig) (*GmailProvider, error) {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	user := cfg.User
	if user == "" {
		user = "me"
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		hc := &http.Client{Timeout: timeout}
		if cfg.StaticToken != "" {
			hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.StaticToken}))
			hc.Timeout = timeout
		}
		opts = append(opts,
			option.WithEndpoint(strings.TrimRight(cfg.Endpoint, "/")+"/"),
			option.WithHTTPClient(hc),
		)
	} else {
		conf := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope},
		}
		hc := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		hc.Timeout = timeout
		opts = append(opts, option.WithHTTPClient(hc))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &GmailProvider{svc: svc, user: user}, nil
}

// List pages through every message id matching label and recipient.
func (p *GmailProvider) List(ctx context.Context, label, recipient string) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		call := p.svc.Users.Messages.List(p.user).
			Q("to:" + recipient).
			LabelIds(label).
			IncludeSpamTrash(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, &ProviderRequestError{Op: "list " + label, Err: err}
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// Get fetches message id in full format.
func (p *GmailProvider) Get(ctx context.Context, id string) (*Message, error) {
	gm, err := p.svc.Users.Messages.Get(p.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, &ProviderRequestError{Op: "get " + id, Err: err}
	}
	return messageFromGmail(gm)
}
