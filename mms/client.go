package mms

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

	"go.uber.org/zap"
)

// ErrTransport is wrapped by any network failure or non 2xx response from
// the MMS api. It aborts the whole fetch.
var ErrTransport = errors.New("mms transport error")

const backstageOrigin = "https://oneclub.backstage.oneclass.com.tw"

type Client struct {
	APIKey     string
	BaseURL    string
	PageSize   int
	HTTPClient *http.Client

	log *zap.SugaredLogger
	now func() time.Time
}

func NewClient(
	baseURL string,
	apiKey string,
	timeout time.Duration,
	pageSize int,
	logger *zap.SugaredLogger,
) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		PageSize:   pageSize,
		HTTPClient: &http.Client{Timeout: timeout},
		log:        logger,
		now:        time.Now,
	}
}

// envelope every MMS proxy response is wrapped in
type StandardResp struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.8")
	req.Header.Set("Origin", backstageOrigin)
	req.Header.Set("Referer", backstageOrigin+"/")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36")
}

// POST body as json to the proxied endpoint. The endpoint path is sent as a
// single escaped segment, the proxy expects its slashes encoded.
// Returns the raw response body of a 2xx response.
func (c *Client) postJSON(ctx context.Context, endpoint string, body any) ([]byte, error) {
	marshalled, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body, %v", err)
	}

	fullURL := c.BaseURL + "/" + url.PathEscape(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(marshalled))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request, %v", err)
	}
	c.headers(req)

	c.log.Debugf("mms : sending request to %s", fullURL)
	c.log.Debugf("mms : request body %s", marshalled)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.log.Errorf("mms : api request failed, %v", err)
		return nil, fmt.Errorf("%w: failed to place request, %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body, %v", ErrTransport, err)
	}

	c.log.Debugf("mms : response status %d", resp.StatusCode)
	c.log.Debugf("mms : response body %s", bodyBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Errorf("mms : api request failed, status %d, body: %s", resp.StatusCode, bodyBytes)
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrTransport, resp.StatusCode, bodyBytes)
	}

	return bodyBytes, nil
}
