// Package vision adapts external face-inference and barcode libraries to the
// collaborator interfaces used by the check-in flow.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultTimeout = 10 * time.Second

// Client calls a face-inference service over HTTP. Frames are sent as JPEG
// bodies to {baseURL}/detect and {baseURL}/embed.
type Client struct {
	baseURL string
	http    *http.Client
}

type region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type detectResponse struct {
	Faces []region `json:"faces"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	var resp detectResponse
	if err := c.post(ctx, "/detect", nil, img, &resp); err != nil {
		return nil, err
	}
	faces := make([]image.Rectangle, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		faces = append(faces, image.Rect(f.X, f.Y, f.X+f.Width, f.Y+f.Height))
	}
	return faces, nil
}

func (c *Client) ExtractEmbedding(ctx context.Context, img image.Image, r image.Rectangle) ([]float64, error) {
	query := url.Values{}
	query.Set("x", strconv.Itoa(r.Min.X))
	query.Set("y", strconv.Itoa(r.Min.Y))
	query.Set("width", strconv.Itoa(r.Dx()))
	query.Set("height", strconv.Itoa(r.Dy()))

	var resp embedResponse
	if err := c.post(ctx, "/embed", query, img, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("vision: empty embedding")
	}
	return resp.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, query url.Values, img image.Image, out interface{}) error {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("vision: encoding frame: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("Error calling vision service %s: %v", path, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vision: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Printf("Error decoding vision response from %s: %v", path, err)
		return err
	}
	return nil
}

// Ping checks that the service answers on {baseURL}/health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision: health returned %d", resp.StatusCode)
	}
	return nil
}
