package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

const maxAuthResponseBytes = 1 << 20

// API names the auth endpoints relative to BaseURL.
type API struct {
	BaseURL     string
	LoginPath   string
	RefreshPath string
}

// Client performs the login and refresh exchanges. It implements
// ports.TokenRefresher.
type Client struct {
	API            API
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.TokenRefresher = (*Client)(nil)

// LoginResult is the raw credential payload a successful login delivers.
type LoginResult struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	SubjectID    domain.SubjectID `json:"userId"`
}

type refreshRequest struct {
	UserID       domain.SubjectID `json:"userId"`
	RefreshToken string           `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Refresh trades the refresh token for a fresh access token. The response
// may omit a rotated refresh token, in which case RefreshToken is empty and
// the caller keeps the old one.
func (c Client) Refresh(ctx context.Context, subjectID domain.SubjectID, refreshToken string) (ports.RefreshResult, error) {
	if subjectID == "" {
		return ports.RefreshResult{}, errors.New("subject id is required")
	}
	if refreshToken == "" {
		return ports.RefreshResult{}, errors.New("refresh token is required")
	}

	var payload refreshResponse
	err := c.postJSON(ctx, c.API.RefreshPath, refreshRequest{UserID: subjectID, RefreshToken: refreshToken}, &payload)
	if err != nil {
		return ports.RefreshResult{}, fmt.Errorf("refresh exchange: %w", err)
	}
	if payload.AccessToken == "" {
		return ports.RefreshResult{}, errors.New("refresh response missing access token")
	}

	return ports.RefreshResult{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}, nil
}

// Login exchanges user credentials for a full credential payload.
func (c Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if email == "" {
		return LoginResult{}, errors.New("email is required")
	}
	if password == "" {
		return LoginResult{}, errors.New("password is required")
	}

	var payload LoginResult
	err := c.postJSON(ctx, c.API.LoginPath, loginRequest{Email: email, Password: password}, &payload)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login exchange: %w", err)
	}
	if payload.AccessToken == "" || payload.SubjectID == "" {
		return LoginResult{}, errors.New("login response missing required fields")
	}

	return payload, nil
}

func (c Client) postJSON(ctx context.Context, path string, request any, response any) error {
	endpoint, err := buildAPIURL(c.API.BaseURL, path)
	if err != nil {
		return err
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.New(decodeAPIError(resp))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthResponseBytes)).Decode(response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func decodeAPIError(resp *http.Response) string {
	var apiErr apiErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthResponseBytes)).Decode(&apiErr); err != nil {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}

	message := apiErr.Error
	if apiErr.Message != "" {
		if message != "" {
			message += ": "
		}
		message += apiErr.Message
	}
	if message == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return message
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
