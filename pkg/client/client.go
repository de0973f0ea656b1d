// Package client is a Go consumer of the email change API: a thin typed
// REST client plus the wizard controller frontends hang their UI off of.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"grcadmin/account-api/internal/emailchange"
	"grcadmin/account-api/internal/model"
)

// Client talks to one account-api server on behalf of one session.
type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

func New(baseURL, authToken string) *Client {
	return &Client{
		BaseURL:   baseURL,
		AuthToken: authToken,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: c.AuthToken})

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorBody
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil {
			// Workflow rejections come back typed so callers can branch on
			// the sentinel instead of string matching
			if kindErr := emailchange.FromKind(e.Kind); kindErr != nil {
				return kindErr
			}
			if e.Error != "" {
				return fmt.Errorf("server rejected request: %v", e.Error)
			}
		}
		return fmt.Errorf("server returned status %v", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// RequestChange opens a new run and returns its request ID along with the
// status the server put it in.
func (c *Client) RequestChange(ctx context.Context, newEmail string) (string, model.RequestStatus, error) {
	var out struct {
		RequestID string              `json:"request_id"`
		Status    model.RequestStatus `json:"status"`
	}

	err := c.do(ctx, http.MethodPost, "/api/email-change/request",
		map[string]string{"new_email": newEmail}, &out)
	if err != nil {
		return "", "", err
	}

	return out.RequestID, out.Status, nil
}

func (c *Client) verify(ctx context.Context, path, requestID, code string) (model.RequestStatus, error) {
	var out struct {
		Status model.RequestStatus `json:"status"`
	}

	err := c.do(ctx, http.MethodPost, path, map[string]string{
		"request_id":        requestID,
		"verification_code": code,
	}, &out)
	if err != nil {
		return "", err
	}

	return out.Status, nil
}

// VerifyOldEmail submits the code delivered to the current address.
func (c *Client) VerifyOldEmail(ctx context.Context, requestID, code string) (model.RequestStatus, error) {
	return c.verify(ctx, "/api/email-change/verify-old", requestID, code)
}

// VerifyNewEmail submits the code delivered to the prospective address.
func (c *Client) VerifyNewEmail(ctx context.Context, requestID, code string) (model.RequestStatus, error) {
	return c.verify(ctx, "/api/email-change/verify-new", requestID, code)
}

// CompleteChange finalizes the swap and returns the new email of record.
func (c *Client) CompleteChange(ctx context.Context, requestID string) (string, error) {
	var out struct {
		Status model.RequestStatus `json:"status"`
		Email  string              `json:"email"`
	}

	err := c.do(ctx, http.MethodPost, "/api/email-change/complete",
		map[string]string{"request_id": requestID}, &out)
	if err != nil {
		return "", err
	}

	return out.Email, nil
}

// CancelChange abandons the run.
func (c *Client) CancelChange(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/api/email-change/cancel",
		map[string]string{"request_id": requestID}, nil)
}

// ResendCode asks for the pending side's code to be redelivered.
func (c *Client) ResendCode(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/api/email-change/resend",
		map[string]string{"request_id": requestID}, nil)
}

// GetStatus fetches the authoritative state of the caller's active request.
func (c *Client) GetStatus(ctx context.Context) (*emailchange.StatusProjection, error) {
	var out emailchange.StatusProjection

	err := c.do(ctx, http.MethodGet, "/api/email-change/status", nil, &out)
	if err != nil {
		return nil, err
	}

	return &out, nil
}
