package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"chatbridge/pkg/constants"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// Config holds the settings for the shared browser session.
type Config struct {
	ProfileDir    string
	Headless      bool
	UserAgent     string
	NavTimeoutSec int
}

// Session owns one Chrome instance and the named tabs opened in it. The
// messaging surface and every UI provider get their own tab, all backed
// by the same profile so logins persist across restarts. Interactions
// are serialized across tabs: UI automation assumes a single interaction
// is in focus at a time.
type Session struct {
	mu sync.Mutex

	cfg    Config
	logger *logrus.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	pages map[string]*Page
}

// Page is a handle to one named tab.
type Page struct {
	name    string
	url     string
	ctx     context.Context
	cancel  context.CancelFunc
	session *Session
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Injected before any page script runs. The overrides match what stock
// webdriver fingerprint checks look for.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
`

func NewSession(cfg Config, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if cfg.NavTimeoutSec <= 0 {
		cfg.NavTimeoutSec = constants.DefaultBrowserNavigateSec
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Session{
		cfg:    cfg,
		logger: logger,
		pages:  make(map[string]*Page),
	}
}

// start launches the browser process. The given context pins the browser
// lifetime, so callers pass the process root context, not a per-request
// one.
func (s *Session) start(ctx context.Context) error {
	if s.browserCtx != nil {
		return nil
	}

	if s.cfg.ProfileDir != "" {
		if err := os.MkdirAll(s.cfg.ProfileDir, constants.DefaultDirectoryPermissions); err != nil {
			return fmt.Errorf("failed to create profile directory: %w", err)
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(s.cfg.UserAgent),
	)
	if s.cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.cfg.ProfileDir))
	}
	if s.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)

	// Start the browser now so a missing Chrome binary fails here
	// instead of on the first page action.
	if err := chromedp.Run(s.browserCtx); err != nil {
		s.stopLocked()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"profile":  s.cfg.ProfileDir,
		"headless": s.cfg.Headless,
	}).Info("Browser session started")

	return nil
}

// OpenPage opens a named tab and navigates it to url, starting the
// browser on first use. The first page reuses the browser's initial tab.
func (s *Session) OpenPage(ctx context.Context, name, url string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pages[name]; exists {
		return nil, fmt.Errorf("page %q is already open", name)
	}

	if err := s.start(ctx); err != nil {
		return nil, err
	}

	var pageCtx context.Context
	var pageCancel context.CancelFunc
	if len(s.pages) == 0 {
		pageCtx, pageCancel = s.browserCtx, func() {}
	} else {
		pageCtx, pageCancel = chromedp.NewContext(s.browserCtx)
	}

	navCtx, cancel := context.WithTimeout(pageCtx, time.Duration(s.cfg.NavTimeoutSec)*time.Second)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		pageCancel()
		return nil, fmt.Errorf("failed to open page %s: %w", name, err)
	}

	pg := &Page{
		name:    name,
		url:     url,
		ctx:     pageCtx,
		cancel:  pageCancel,
		session: s,
	}
	s.pages[name] = pg

	s.logger.WithFields(logrus.Fields{
		"page": name,
		"url":  url,
	}).Info("Opened page")

	return pg, nil
}

// Page returns the handle for a previously opened tab.
func (s *Session) Page(name string) (*Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg, ok := s.pages[name]
	return pg, ok
}

// Close shuts the browser down. Open page handles become unusable.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browserCtx == nil {
		return nil
	}

	for _, pg := range s.pages {
		pg.cancel()
	}
	s.pages = make(map[string]*Page)

	err := chromedp.Cancel(s.browserCtx)
	s.stopLocked()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}

	s.logger.Info("Browser session closed")
	return nil
}

func (s *Session) stopLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.browserCancel = nil
	s.allocCtx = nil
	s.allocCancel = nil
}

func (p *Page) Name() string { return p.name }

func (p *Page) URL() string { return p.url }

// Run executes actions against this tab, bringing it to the foreground
// first. Runs are serialized across all tabs of the session. A canceled
// context is honored before the run starts, never in the middle of one,
// so an in-flight interaction always completes or times out.
func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	return p.run(ctx, time.Duration(constants.DefaultBrowserActionSec)*time.Second, actions...)
}

// Refresh reloads the tab and waits for the document to become ready
// again.
func (p *Page) Refresh(ctx context.Context) error {
	err := p.run(ctx, time.Duration(p.session.cfg.NavTimeoutSec)*time.Second,
		chromedp.Reload(),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return err
	}

	p.session.logger.WithField("page", p.name).Info("Refreshed page")
	return nil
}

func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.session.mu.Lock()
	defer p.session.mu.Unlock()

	if p.session.browserCtx == nil {
		return fmt.Errorf("browser session is closed")
	}

	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	all := make([]chromedp.Action, 0, len(actions)+1)
	all = append(all, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
	all = append(all, actions...)

	if err := chromedp.Run(runCtx, all...); err != nil {
		return fmt.Errorf("page %s action failed: %w", p.name, err)
	}
	return nil
}
