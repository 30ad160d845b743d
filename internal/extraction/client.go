// Package extraction wraps the external receipt-analysis service. Given a
// presigned image URL it returns the detected drink items plus the
// availability and time-threshold flags the verification pipeline acts on.
//
// The service's payload is loosely typed (numbers arrive as strings or
// numbers depending on the model run), so everything is decoded through a
// tolerant intermediate representation and normalized here rather than
// trusted at the boundary.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rebottle/go-recycle-backend/internal/domain"
)

// ErrMalformedPayload indicates the service response could not be parsed
// into the expected shape. The state machine finalizes such submissions as
// rejected instead of retrying.
var ErrMalformedPayload = errors.New("extraction: malformed payload")

// Result is the normalized extraction output.
//
// IsAvailable and TimeThreshold keep the service's raw string values;
// Acceptable() applies the trim+lowercase comparison the pipeline requires.
type Result struct {
	Raw            string
	ReceiptTimeRaw string
	IsAvailable    string
	TimeThreshold  string
	Drinks         domain.DrinkList
	UserRef        string
}

// Acceptable reports whether a submission may earn points: the service must
// assert availability ("true") and must not have tripped the time threshold
// ("false"). Comparison is by trimmed lowercase string against the literals.
func (r *Result) Acceptable() bool {
	return normalizeFlag(r.IsAvailable) == "true" && normalizeFlag(r.TimeThreshold) == "false"
}

func normalizeFlag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Config holds the extraction service settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client calls the extraction service over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient constructs a Client with a bounded default timeout.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// wire types — the service's loosely-typed response shape.

type wireRequest struct {
	ImageURL string `json:"imageUrl"`
	UserID   string `json:"userId"`
}

type wireResponse struct {
	Data *wireData `json:"data"`
}

type wireData struct {
	IsAvailable   flexString  `json:"isAvailable"`
	TimeThreshold flexString  `json:"timeThreshold"`
	ReceiptTime   flexString  `json:"receiptTime"`
	UserID        flexString  `json:"userId"`
	Drinks        []wireDrink `json:"drinks"`
}

type wireDrink struct {
	Name     flexString `json:"drinkName"`
	Capacity flexString `json:"capacity"`
	Amount   flexString `json:"amount"`
}

// flexString accepts JSON strings, numbers, and booleans as a string value.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexString(strconv.FormatBool(v))
		return nil
	}
	return fmt.Errorf("extraction: cannot decode %s as string", string(b))
}

// Extract submits the image URL for analysis and returns the normalized
// result. Transport errors and non-2xx statuses are returned as-is;
// undecodable bodies return ErrMalformedPayload.
func (c *Client) Extract(ctx context.Context, imageURL, userRef string) (*Result, error) {
	body, err := json.Marshal(wireRequest{ImageURL: imageURL, UserID: userRef})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("extraction: service returned %d", resp.StatusCode)
	}

	return Parse(raw)
}

// Parse decodes a raw service response into a Result. It is exported so the
// verification pipeline's tests can exercise the tolerance rules directly.
func Parse(raw []byte) (*Result, error) {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil || wire.Data == nil {
		return nil, ErrMalformedPayload
	}
	d := wire.Data

	drinks := make(domain.DrinkList, 0, len(d.Drinks))
	for _, w := range d.Drinks {
		drinks = append(drinks, domain.DrinkItem{
			Name:     string(w.Name),
			Capacity: string(w.Capacity),
			Amount:   string(w.Amount),
		})
	}

	return &Result{
		Raw:            string(raw),
		ReceiptTimeRaw: string(d.ReceiptTime),
		IsAvailable:    string(d.IsAvailable),
		TimeThreshold:  string(d.TimeThreshold),
		Drinks:         drinks,
		UserRef:        string(d.UserID),
	}, nil
}
