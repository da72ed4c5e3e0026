// Package cdp drives remote Chromium browsers over the DevTools protocol.
//
// Browsers are started per environment through a local profile-manager API
// (start/stop endpoints keyed by profile ID) that returns a DevTools
// websocket URL; chromedp attaches to that URL.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-resty/resty/v2"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/logger"
)

// Default profile API settings
const (
	DefaultBaseURL   = "http://local.adspower.net:50325"
	DefaultStartPath = "/api/v1/browser/start"
	DefaultStopPath  = "/api/v1/browser/stop"
	DefaultTimeout   = 60 * time.Second
)

// Config configures the profile API client.
type Config struct {
	BaseURL   string
	StartPath string
	StopPath  string
	APIKey    string
	Timeout   time.Duration
	Headless  bool
}

// apiResponse is the profile API envelope. A non-zero code carries the
// failure reason in msg.
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		WS struct {
			Puppeteer string `json:"puppeteer"`
		} `json:"ws"`
	} `json:"data"`
}

// Provider implements core.SessionProvider against the profile API.
type Provider struct {
	cfg    Config
	client *resty.Client

	mu     sync.Mutex
	active map[*Session]struct{}
}

// NewProvider creates a provider with defaults applied.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.StartPath == "" {
		cfg.StartPath = DefaultStartPath
	}
	if cfg.StopPath == "" {
		cfg.StopPath = DefaultStopPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Provider{
		cfg:    cfg,
		client: client,
		active: make(map[*Session]struct{}),
	}
}

// Acquire starts the environment's browser and attaches to it.
func (p *Provider) Acquire(ctx context.Context, environmentID string) (core.BrowserSession, error) {
	wsURL, err := p.startBrowser(ctx, environmentID)
	if err != nil {
		return nil, err
	}

	// The allocator outlives the acquiring context; Release tears it down
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), wsURL, chromedp.NoModifyURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	connectCtx, cancel := bounded(ctx, tabCtx)
	defer cancel()
	if err := chromedp.Run(connectCtx); err != nil {
		tabCancel()
		allocCancel()
		_ = p.stopBrowser(context.WithoutCancel(ctx), environmentID)
		return nil, fmt.Errorf("attach to %s: %w", wsURL, err)
	}

	s := newSession(environmentID, tabCtx, tabCancel, allocCancel)
	p.mu.Lock()
	p.active[s] = struct{}{}
	p.mu.Unlock()

	logger.L().Debug().Str("env", environmentID).Str("ws", wsURL).Msg("browser attached")
	return s, nil
}

// Release detaches from the browser and stops it through the profile API.
func (p *Provider) Release(ctx context.Context, session core.BrowserSession) error {
	s, ok := session.(*Session)
	if !ok {
		return errors.New("cdp: foreign session")
	}

	p.mu.Lock()
	delete(p.active, s)
	p.mu.Unlock()

	s.detach()
	return p.stopBrowser(ctx, s.environmentID)
}

// Close releases every session still attached.
func (p *Provider) Close(ctx context.Context) {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.active))
	for s := range p.active {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		if err := p.Release(ctx, s); err != nil {
			logger.Warn("release %s: %v", s.environmentID, err)
		}
	}
}

// startBrowser asks the profile API to launch envID and returns its
// DevTools websocket URL.
func (p *Provider) startBrowser(ctx context.Context, envID string) (string, error) {
	headless := "0"
	if p.cfg.Headless {
		headless = "1"
	}

	var out apiResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"user_id": envID, "headless": headless}).
		ForceContentType("application/json").
		SetResult(&out).
		Get(p.cfg.StartPath)
	if err != nil {
		return "", fmt.Errorf("profile api: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("profile api: HTTP %d", resp.StatusCode())
	}
	if out.Code != 0 {
		return "", errors.New(out.Msg)
	}
	if out.Data.WS.Puppeteer == "" {
		return "", errors.New("profile api: response has no devtools url")
	}
	return out.Data.WS.Puppeteer, nil
}

func (p *Provider) stopBrowser(ctx context.Context, envID string) error {
	var out apiResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("user_id", envID).
		ForceContentType("application/json").
		SetResult(&out).
		Get(p.cfg.StopPath)
	if err != nil {
		return fmt.Errorf("profile api: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("profile api: HTTP %d", resp.StatusCode())
	}
	if out.Code != 0 {
		return errors.New(out.Msg)
	}
	return nil
}
