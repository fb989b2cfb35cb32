package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/simple-mail/internal/parser"
	"github.com/shineum/simple-mail/mail"
)

// GraphProviderConfig holds the configuration for creating a GraphProvider.
type GraphProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
}

// requestTimeout bounds a single sendMail request including token acquisition.
const requestTimeout = 30 * time.Second

// graphScope requests the application permissions granted to the client.
const graphScope = "https://graph.microsoft.com/.default"

// GraphProvider sends messages via the Microsoft Graph API using OAuth2
// client credentials authentication. Tokens are cached and refreshed by the
// oauth2 client.
type GraphProvider struct {
	sender     string
	graphURL   string
	httpClient *http.Client
}

// New creates a new GraphProvider with the given configuration.
func New(cfg GraphProviderConfig) *GraphProvider {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	graphURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)

	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: requestTimeout})
}

// newWithOverrides creates a GraphProvider with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg GraphProviderConfig, graphURL, tokenURL string, client *http.Client) *GraphProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	httpClient := cc.Client(ctx)
	httpClient.Timeout = requestTimeout

	return &GraphProvider{
		sender:     cfg.Sender,
		graphURL:   graphURL,
		httpClient: httpClient,
	}
}

// Send delivers env via the sendMail endpoint. The request is made once.
func (g *GraphProvider) Send(ctx context.Context, env *mail.Envelope) error {
	msg, err := parser.Parse(env.Bytes())
	if err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}

	bodyJSON, err := json.Marshal(buildSendMailRequest(msg, env.Bcc()))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	if err := g.doSendRequest(ctx, bodyJSON); err != nil {
		return err
	}

	slog.Debug("Graph API accepted message",
		"sender", g.sender,
		"recipients", len(env.Recipients()),
	)
	return nil
}

// Name returns the provider name.
func (g *GraphProvider) Name() string {
	return "msgraph"
}

// doSendRequest performs a single HTTP request to the Graph API sendMail endpoint.
func (g *GraphProvider) doSendRequest(ctx context.Context, bodyJSON []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return classifyError(resp.StatusCode, graphErrResp.Error.Code, graphErrResp.Error.Message)
	}

	return classifyError(resp.StatusCode, "", string(body))
}

// sendError is an error response from the Graph API.
type sendError struct {
	statusCode int
	code       string
	message    string
	transient  bool
}

func (e *sendError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// Temporary reports whether the same request may succeed if sent again later.
func (e *sendError) Temporary() bool {
	return e.transient
}

// classifyError builds the sendError for an unsuccessful response.
func classifyError(statusCode int, code, message string) *sendError {
	err := &sendError{
		statusCode: statusCode,
		code:       code,
		message:    message,
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		err.transient = true
	case statusCode == http.StatusTooManyRequests:
		err.transient = true
	case statusCode >= 500:
		err.transient = true
	}

	return err
}
