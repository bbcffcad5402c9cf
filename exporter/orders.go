package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTokenExpired is returned when the orders api still rejects the
	// token after signing in again.
	ErrTokenExpired = errors.New("orders api rejected the token after re-authenticating")

	// ErrAPI is returned for a non 200 response or a json error envelope.
	ErrAPI = errors.New("orders api error")
)

const (
	backstageOrigin  = "https://oneclub.backstage.oneclass.com.tw"
	invalidTokenBody = "Token not valid"
)

type OrdersClient struct {
	URL        string
	PageLimit  int
	HTTPClient *http.Client

	tokens TokenSource
	log    *zap.SugaredLogger
}

func NewOrdersClient(
	ordersURL string,
	pageLimit int,
	tokens TokenSource,
	logger *zap.SugaredLogger,
) *OrdersClient {
	return &OrdersClient{
		URL:        ordersURL,
		PageLimit:  pageLimit,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		tokens:     tokens,
		log:        logger,
	}
}

type ordersResp struct {
	status int
	header http.Header
	body   []byte
}

// 401, or a 200 whose body says the token is invalid
func (r ordersResp) authFailed() bool {
	return r.status == http.StatusUnauthorized ||
		(r.status == http.StatusOK && strings.Contains(string(r.body), invalidTokenBody))
}

// Fetch downloads the orders paid between start and end as a spreadsheet.
// If the api rejects the token, Fetch signs in once more and retries; a
// second rejection is ErrTokenExpired.
func (c *OrdersClient) Fetch(ctx context.Context, start time.Time, end time.Time) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	c.log.Infof("orders : got token %s", tokenPrefix(token, 20))

	c.log.Infof("orders : fetching orders paid between %s and %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	resp, err := c.get(ctx, token, start, end)
	if err != nil {
		return nil, err
	}

	if resp.authFailed() {
		c.log.Warnf("orders : token expired or invalid, signing in again")
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		c.log.Infof("orders : got new token %s", tokenPrefix(token, 20))

		resp, err = c.get(ctx, token, start, end)
		if err != nil {
			return nil, err
		}
		if resp.authFailed() {
			c.log.Errorf("orders : token rejected again, status %d", resp.status)
			return nil, fmt.Errorf("%w, status %d", ErrTokenExpired, resp.status)
		}
	}

	if resp.status != http.StatusOK {
		c.log.Errorf("orders : api request failed, status %d, body: %s", resp.status, resp.body)
		return nil, fmt.Errorf("%w: status %d", ErrAPI, resp.status)
	}

	// any json body is an error envelope, the export itself is binary
	var envelope struct {
		Status string `json:"status"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.body, &envelope); err == nil {
		msg := "unexpected json response"
		if envelope.Error != nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		} else if envelope.Status != "" {
			msg = fmt.Sprintf("unexpected json response with status %q", envelope.Status)
		}
		c.log.Errorf("orders : api responded with an error, %s", msg)
		return nil, fmt.Errorf("%w: %s", ErrAPI, msg)
	}

	c.log.Infof(
		"orders : got export, %d bytes, content type %s",
		len(resp.body), resp.header.Get("Content-Type"),
	)
	return resp.body, nil
}

func (c *OrdersClient) get(ctx context.Context, token string, start time.Time, end time.Time) (ordersResp, error) {
	query := url.Values{}
	query.Set("skip", "0")
	query.Set("limit", strconv.Itoa(c.PageLimit))
	query.Set("startAt", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("endAt", strconv.FormatInt(end.UnixMilli(), 10))
	query.Set("dateType", "pay")

	fullURL := c.URL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return ordersResp{}, fmt.Errorf("failed to create http request, %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.7")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Safari/605.1.15")
	req.Header.Set("Origin", backstageOrigin)
	req.Header.Set("Referer", backstageOrigin+"/")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Sec-GPC", "1")

	c.log.Debugf("orders : requesting %s", fullURL)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ordersResp{}, fmt.Errorf("failed to place request, %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ordersResp{}, fmt.Errorf("failed to read body, %w", err)
	}

	c.log.Debugf("orders : response status %d, headers %v", resp.StatusCode, resp.Header)
	return ordersResp{status: resp.StatusCode, header: resp.Header, body: body}, nil
}
