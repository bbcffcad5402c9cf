// Package notify renders the expiring institutions notice and posts it to
// the configured chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	cls "github.com/mms-notify/app/classes"
	"go.uber.org/zap"
)

type Notifier struct {
	WebhookURL    string
	DetailURLBase string

	// upper bound of the notice tier, only used for labels
	NoticeMaxDays int

	HTTPClient *http.Client

	log *zap.SugaredLogger
	now func() time.Time
}

func NewNotifier(
	webhookURL string,
	timeout time.Duration,
	detailURLBase string,
	noticeMaxDays int,
	logger *zap.SugaredLogger,
) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		WebhookURL:    webhookURL,
		DetailURLBase: detailURLBase,
		NoticeMaxDays: noticeMaxDays,
		HTTPClient:    &http.Client{Timeout: timeout},
		log:           logger,
		now:           time.Now,
	}
}

// SendExpiringNotification posts the expiry notice for insts. An empty list
// is a success without any request. Every failure is logged and reported
// as false, never returned.
func (n *Notifier) SendExpiringNotification(ctx context.Context, insts []cls.Institution) bool {
	if len(insts) == 0 {
		n.log.Warnf("notify : no institutions to notify about")
		return true
	}

	if isDiscordWebhook(n.WebhookURL) {
		return n.sendDiscord(ctx, insts)
	}

	payload, err := json.Marshal(Payload{Blocks: n.BuildBlocks(insts, n.now())})
	if err != nil {
		n.log.Errorf("notify : failed to marshal notification, %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		n.log.Errorf("notify : failed to create webhook request, %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			n.log.Errorf("notify : webhook request timed out, %v", err)
		} else {
			n.log.Errorf("notify : network error sending webhook, %v", err)
		}
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		n.log.Errorf("notify : failed to send notification, status %d, body: %s", resp.StatusCode, body)
		return false
	}

	n.log.Infof("notify : successfully sent notification for %d institutions", len(insts))
	return true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDiscordWebhook(url string) bool {
	return strings.Contains(url, "discord.com/api/webhooks") ||
		strings.Contains(url, "discordapp.com/api/webhooks")
}
