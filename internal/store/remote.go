package store

import (
	"bytes"
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

// ErrRemote is returned when the server rejects a request.
var ErrRemote = errors.New("drawing server error")

// Remote talks to the /api/drawings surface of an Inkroom server.
type Remote struct {
	BaseURL string
	Tier    string
	Client  *http.Client
}

func NewRemote(baseURL, tier string) *Remote {
	return &Remote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Tier:    tier,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *Remote) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	var msg struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&msg)
	return nil, fmt.Errorf("%w: %s %s: %d %s", ErrRemote, method, path, resp.StatusCode, msg.Error)
}

func (r *Remote) Save(ctx context.Context, d Drawing) (string, error) {
	req := struct {
		ID       string   `json:"id,omitempty"`
		UserID   string   `json:"userId"`
		Title    string   `json:"title"`
		Tags     []string `json:"tags,omitempty"`
		IsPublic bool     `json:"isPublic"`
		Tier     string   `json:"tier,omitempty"`
		Image    []byte   `json:"image"`
	}{d.ID, d.UserID, d.Title, d.Tags, d.IsPublic, r.Tier, d.Image}
	resp, err := r.do(ctx, http.MethodPost, "/api/drawings", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode save response: %w", err)
	}
	return out.ID, nil
}

func (r *Remote) Load(ctx context.Context, id string) ([]byte, error) {
	resp, err := r.do(ctx, http.MethodGet, "/api/drawings/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (r *Remote) List(ctx context.Context, userID string) ([]DrawingInfo, error) {
	resp, err := r.do(ctx, http.MethodGet, "/api/drawings?user="+url.QueryEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Drawings []DrawingInfo `json:"drawings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return out.Drawings, nil
}

func (r *Remote) Delete(ctx context.Context, id string) error {
	resp, err := r.do(ctx, http.MethodDelete, "/api/drawings/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
