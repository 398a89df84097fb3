package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"

	"github.com/neonslash/neonvault/internal/domain"
)

// Attestation is one burn message as reported by the attestation service.
type Attestation struct {
	Message     []byte
	Attestation []byte
	Complete    bool
	Status      string
}

// IrisClient polls Circle's attestation API.
type IrisClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewIrisClient creates an attestation client. perSec throttles requests;
// a non-positive value disables throttling.
func NewIrisClient(baseURL string, perSec float64) *IrisClient {
	c := &IrisClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	if perSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
	return c
}

type irisMessages struct {
	Messages []struct {
		Message     string `json:"message"`
		Attestation string `json:"attestation"`
		Status      string `json:"status"`
	} `json:"messages"`
}

// Lookup returns the attestation for the burn in txHash on sourceDomain.
// A burn the service has not seen yet returns a pending Attestation.
func (c *IrisClient) Lookup(ctx context.Context, sourceDomain uint32, txHash string) (Attestation, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Attestation{}, err
		}
	}
	params := url.Values{}
	params.Set("transactionHash", txHash)
	u := fmt.Sprintf("%s/v2/messages/%d?%s", c.baseURL, sourceDomain, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Attestation{}, fmt.Errorf("bridge/iris: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Attestation{}, fmt.Errorf("bridge/iris: http request: %w: %w", domain.ErrExternal, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Attestation{}, fmt.Errorf("bridge/iris: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Attestation{Status: "not_found"}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return Attestation{}, fmt.Errorf("bridge/iris: %w", domain.ErrRateLimited)
	case resp.StatusCode >= 400:
		return Attestation{}, fmt.Errorf("bridge/iris: status %d: %s: %w", resp.StatusCode, truncate(body, 200), domain.ErrExternal)
	}

	var msgs irisMessages
	if err := json.Unmarshal(body, &msgs); err != nil {
		return Attestation{}, fmt.Errorf("bridge/iris: decode messages: %w", err)
	}
	if len(msgs.Messages) == 0 {
		return Attestation{Status: "not_found"}, nil
	}
	m := msgs.Messages[0]
	out := Attestation{Status: m.Status}
	if m.Status != "complete" {
		return out, nil
	}
	if out.Message, err = hexutil.Decode(m.Message); err != nil {
		return Attestation{}, fmt.Errorf("bridge/iris: decode message: %w", err)
	}
	if out.Attestation, err = hexutil.Decode(m.Attestation); err != nil {
		return Attestation{}, fmt.Errorf("bridge/iris: decode attestation: %w", err)
	}
	out.Complete = true
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
