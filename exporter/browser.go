package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// sign in was submitted but the page stayed on the login screen
var errLoginRejected = errors.New("page did not leave the login screen")

const (
	usernameSel = `input[type='text']`
	passwordSel = `input[type='password']`
	loginBtnSel = `button[type='button']`
)

// BrowserTokenSource signs in to backstage with a headless chrome and reads
// the bearer token the web app stores.
type BrowserTokenSource struct {
	LoginURL string
	Username string
	Password string

	// bound on each wait during sign in
	Timeout time.Duration

	// where diagnostic screenshots are written
	ScreenshotDir string

	log *zap.SugaredLogger
}

func NewBrowserTokenSource(
	loginURL string,
	username string,
	password string,
	timeout time.Duration,
	screenshotDir string,
	logger *zap.SugaredLogger,
) *BrowserTokenSource {
	return &BrowserTokenSource{
		LoginURL:      loginURL,
		Username:      username,
		Password:      password,
		Timeout:       timeout,
		ScreenshotDir: screenshotDir,
		log:           logger,
	}
}

// Token starts a browser, signs in and discovers the token. The browser is
// closed before Token returns.
func (b *BrowserTokenSource) Token(ctx context.Context) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := b.login(browserCtx); err != nil {
		b.log.Errorf("browser : sign in failed, %v", err)
		if errors.Is(err, errLoginRejected) {
			b.screenshot(browserCtx, "login_failed.png")
			return "", fmt.Errorf("%w: %v, check the username and password", ErrAuth, err)
		}
		b.screenshot(browserCtx, "login_error.png")
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}

	token, source, ok := DiscoverToken(browserCtx, chromePage{}, b.log)
	if !ok {
		b.screenshot(browserCtx, "token_error.png")
		return "", fmt.Errorf("%w: no valid token found after sign in", ErrAuth)
	}

	if exp := tokenExpiry(token); !exp.IsZero() {
		b.log.Infof("browser : got token from %s, expires %s", source, exp.Format(time.RFC3339))
	} else {
		b.log.Infof("browser : got token from %s", source)
	}
	return token, nil
}

func (b *BrowserTokenSource) login(ctx context.Context) error {
	b.log.Infof("browser : signing in to %s", b.LoginURL)

	// the first Run starts the browser, it must not carry a timeout
	if err := chromedp.Run(ctx, chromedp.Navigate(b.LoginURL)); err != nil {
		return fmt.Errorf("failed to open login page, %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	err := chromedp.Run(waitCtx, chromedp.WaitVisible(usernameSel, chromedp.ByQuery))
	cancel()
	if err != nil {
		return fmt.Errorf("login form did not load, %v", err)
	}

	err = chromedp.Run(ctx,
		chromedp.Clear(usernameSel, chromedp.ByQuery),
		chromedp.SendKeys(usernameSel, b.Username, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.Clear(passwordSel, chromedp.ByQuery),
		chromedp.SendKeys(passwordSel, b.Password, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.Click(loginBtnSel, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to submit login form, %v", err)
	}

	err = b.waitUntil(ctx, func(ctx context.Context) (bool, error) {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return false, err
		}
		return !strings.Contains(location, "login"), nil
	})
	if err != nil {
		return fmt.Errorf("%w, %v", errLoginRejected, err)
	}

	var location string
	err = chromedp.Run(ctx, chromedp.Location(&location))
	b.logSignedIn(location, err)

	err = b.waitUntil(ctx, func(ctx context.Context) (bool, error) {
		var state string
		if err := chromedp.Run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return false, err
		}
		return state == "complete", nil
	})
	if err != nil {
		return fmt.Errorf("page did not finish loading, %v", err)
	}

	return nil
}

func (b *BrowserTokenSource) logSignedIn(location string, err error) {
	if err != nil || location == "" {
		b.log.Warnf("browser : signed in, failed to read current location, %v", err)
		return
	}
	b.log.Infof("browser : signed in, now on %s", location)
}

// poll cond until it holds or b.Timeout passes
func (b *BrowserTokenSource) waitUntil(ctx context.Context, cond func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(b.Timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s", b.Timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *BrowserTokenSource) screenshot(ctx context.Context, name string) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		b.log.Warnf("browser : failed to take screenshot %s, %v", name, err)
		return
	}

	path := filepath.Join(b.ScreenshotDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		b.log.Warnf("browser : failed to save screenshot %s, %v", path, err)
		return
	}
	b.log.Infof("browser : saved screenshot %s", path)
}

// Page over the current chromedp tab. The tab is carried in ctx.
type chromePage struct{}

func (chromePage) StorageItem(ctx context.Context, storage string, key string) (string, error) {
	var value string
	js := fmt.Sprintf(`%s.getItem(%q) || ""`, storage, key)
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &value)); err != nil {
		return "", err
	}
	return value, nil
}

func (chromePage) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		got, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range got {
			cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
		}
		return nil
	}))
	return cookies, err
}

func (chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}
