// Package preview talks to the third-party image host that serves a
// renderable copy of each revision. The API is imgur-shaped: uploads
// return an opaque asset id plus a deletehash, and the deletehash is the
// only way to remove the asset again.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Asset identifies one hosted image.
type Asset struct {
	ID          string
	DeleteToken string
}

type Client struct {
	baseURL  string
	clientID string
	timeout  time.Duration
	client   *http.Client
}

func NewClient(baseURL, clientID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	Data struct {
		ID         string `json:"id"`
		DeleteHash string `json:"deletehash"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// Upload posts base64 image data and returns the hosted asset. The data
// must already have any data-URI prefix stripped.
func (c *Client) Upload(ctx context.Context, imageBase64 string) (Asset, error) {
	if strings.TrimSpace(c.clientID) == "" {
		return Asset{}, errors.New("preview host credential is not configured")
	}
	form := url.Values{}
	form.Set("image", imageBase64)
	form.Set("type", "base64")

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/3/image", strings.NewReader(form.Encode()))
	if err != nil {
		return Asset{}, fmt.Errorf("failed to build preview upload request")
	}
	req.Header.Set("Authorization", "Client-ID "+strings.TrimSpace(c.clientID))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to reach preview host")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to read preview host response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Asset{}, fmt.Errorf("preview upload failed (%d)", resp.StatusCode)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Asset{}, fmt.Errorf("failed to parse preview host response")
	}
	if !parsed.Success || parsed.Data.ID == "" || parsed.Data.DeleteHash == "" {
		return Asset{}, fmt.Errorf("preview upload rejected (%d)", parsed.Status)
	}
	return Asset{ID: parsed.Data.ID, DeleteToken: parsed.Data.DeleteHash}, nil
}

// Delete removes a previously uploaded asset by its delete token.
func (c *Client) Delete(ctx context.Context, deleteToken string) error {
	if deleteToken == "" {
		return errors.New("delete token is required")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodDelete, c.baseURL+"/3/image/"+url.PathEscape(deleteToken), nil)
	if err != nil {
		return fmt.Errorf("failed to build preview delete request")
	}
	req.Header.Set("Authorization", "Client-ID "+strings.TrimSpace(c.clientID))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach preview host")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("preview delete failed (%d)", resp.StatusCode)
	}
	return nil
}
