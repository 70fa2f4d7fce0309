package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatbridge/internal/errors"
	"chatbridge/internal/features"
	"chatbridge/internal/models"
	"chatbridge/pkg/constants"
	"chatbridge/pkg/provider"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"
)

// Matches the file input most chat surfaces keep hidden behind their
// attach button.
const defaultFileInputSelector = `input[type="file"]`

// Fallbacks when the delay config leaves a field unset; the config
// loader normally fills these before the adapter is built.
const (
	fallbackPollInterval  = 2 * time.Second
	fallbackImageInterval = 5 * time.Second
	fallbackUploadSettle  = 2 * time.Second
)

// pageRunner is the slice of the browser page the adapter drives.
type pageRunner interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
	Refresh(ctx context.Context) error
}

// Adapter drives one provider tab on the shared browser session: paste
// the prompt, submit, poll the response region until the answer settles,
// then optionally clean it and refresh the page.
type Adapter struct {
	name          string
	page          pageRunner
	selectors     map[string]string
	pollInterval  time.Duration
	imageInterval time.Duration
	uploadSettle  time.Duration
	reader        textReader
	logger        *logrus.Logger
}

// New builds a UI adapter bound to one provider tab. The input and
// response selectors are required; submit falls back to pressing Enter
// on the focused input and file_input to the standard file selector.
func New(name string, cfg models.ProviderConfig, page pageRunner, delays models.DelayConfig, logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	for _, key := range []string{"input", "response"} {
		sel := cfg.Selectors[key]
		if sel == "" {
			return nil, errors.New(errors.ErrCodeConfiguration,
				fmt.Sprintf("UI provider %s is missing the %q selector", name, key))
		}
		if len(sel) > constants.MaxSelectorLength {
			return nil, errors.New(errors.ErrCodeConfiguration,
				fmt.Sprintf("UI provider %s selector %q is too long", name, key))
		}
	}

	a := &Adapter{
		name:          name,
		page:          page,
		selectors:     cfg.Selectors,
		pollInterval:  secondsOr(delays.ResponsePollSec, fallbackPollInterval),
		imageInterval: secondsOr(delays.ImagePollSec, fallbackImageInterval),
		uploadSettle:  secondsOr(delays.UploadSettleSec, fallbackUploadSettle),
		logger:        logger,
	}
	a.reader = newPageReader(page, cfg.Selectors["response"])
	return a, nil
}

func secondsOr(sec int, fallback time.Duration) time.Duration {
	if sec <= 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) Kind() models.TransportKind {
	return models.TransportUI
}

// Probe reports whether the provider tab is signed in by checking for
// the authenticated-state element. A page that cannot be evaluated at
// all has lost its session entirely, not just its login.
func (a *Adapter) Probe(ctx context.Context) (models.SessionState, string) {
	sel := a.selectors["logged_in"]
	if sel == "" {
		sel = a.selectors["input"]
	}
	quoted, _ := json.Marshal(sel)

	var present bool
	script := fmt.Sprintf("document.querySelector(%s) !== null", quoted)
	if err := a.page.Run(ctx, chromedp.Evaluate(script, &present)); err != nil {
		return models.SessionExpired, err.Error()
	}
	if !present {
		return models.SessionAwaitingLogin, "login required"
	}
	return models.SessionReady, ""
}

// Ask submits the prompt on the provider tab and waits for the response
// to settle. The whole interaction is bounded by req.Timeout plus one
// poll interval.
func (a *Adapter) Ask(ctx context.Context, req provider.Request) (string, error) {
	if req.Timeout <= 0 {
		return "", errors.NewValidationError("timeout", "ask timeout must be positive")
	}

	prompt := provider.TruncatePrompt(req.Prompt, a.logger)

	// The response region accumulates conversation history. Capturing
	// its current text lets the stabilizer reject the previous answer.
	baseline := a.captureBaseline(ctx)

	if err := a.submit(ctx, prompt, req.ImagePath); err != nil {
		return "", err
	}

	pollInterval := req.PollInterval
	if pollInterval <= 0 {
		pollInterval = a.pollInterval
	}
	firstInterval := pollInterval
	if req.ImagePath != "" {
		firstInterval = a.imageInterval
	}

	text, state, err := waitForStableText(ctx, a.reader, stabilizeConfig{
		timeout:       req.Timeout,
		pollInterval:  pollInterval,
		firstInterval: firstInterval,
		baseline:      baseline,
	})
	if err != nil {
		return "", err
	}
	if state != stateStable {
		return "", errors.NewExtractionTimeoutError(a.name, req.Timeout.String())
	}

	if features.IsEnabled(features.FlagResponseCleaning) {
		text = provider.CleanResponse(text)
	}

	a.logger.WithFields(logrus.Fields{
		"provider": a.name,
		"length":   len(text),
	}).Debug("Response extracted")

	if features.IsEnabled(features.FlagPageRefresh) {
		if err := a.page.Refresh(ctx); err != nil {
			a.logger.WithError(err).WithField("provider", a.name).
				Warn("Failed to refresh provider page after extraction")
		}
	}

	return text, nil
}

func (a *Adapter) captureBaseline(ctx context.Context) string {
	text, err := a.reader(ctx)
	if err != nil {
		return ""
	}
	return text
}

// submit uploads the image first when present, then pastes the prompt
// into the input and triggers submission. Insertion goes through CDP
// Input.insertText rather than simulated keystrokes, which stays
// reliable for long or non-ASCII prompts.
func (a *Adapter) submit(ctx context.Context, prompt, imagePath string) error {
	if imagePath != "" {
		if err := a.uploadImage(ctx, imagePath); err != nil {
			return err
		}
	}

	actions := []chromedp.Action{
		chromedp.WaitVisible(a.selectors["input"], chromedp.ByQuery),
		chromedp.Click(a.selectors["input"], chromedp.ByQuery),
		input.InsertText(prompt),
		chromedp.Sleep(constants.DefaultClipboardSettleMs * time.Millisecond),
	}
	if submitSel := a.selectors["submit"]; submitSel != "" {
		actions = append(actions, chromedp.Click(submitSel, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.KeyEvent(kb.Enter))
	}
	actions = append(actions, chromedp.Sleep(constants.DefaultSubmitSettleMs*time.Millisecond))

	if err := a.page.Run(ctx, actions...); err != nil {
		return errors.NewBrowserError("submit", err)
	}

	a.logger.WithFields(logrus.Fields{
		"provider": a.name,
		"image":    imagePath != "",
	}).Debug("Prompt submitted")

	return nil
}

// uploadImage attaches the file to the provider's file input and waits
// for the upload to settle before the prompt is typed.
func (a *Adapter) uploadImage(ctx context.Context, path string) error {
	sel := a.selectors["file_input"]
	if sel == "" {
		sel = defaultFileInputSelector
	}

	err := a.page.Run(ctx,
		chromedp.SetUploadFiles(sel, []string{path}, chromedp.ByQuery),
		chromedp.Sleep(a.uploadSettle),
	)
	if err != nil {
		return errors.NewBrowserError("upload", err)
	}
	return nil
}

// newPageReader builds the reader that isolates the most recent response
// block; earlier blocks belong to answers already delivered.
func newPageReader(page pageRunner, responseSelector string) textReader {
	quoted, _ := json.Marshal(responseSelector)
	script := fmt.Sprintf(`(() => {
	const nodes = document.querySelectorAll(%s);
	if (!nodes.length) return "";
	return nodes[nodes.length - 1].innerText || "";
})()`, quoted)

	return func(ctx context.Context) (string, error) {
		var text string
		if err := page.Run(ctx, chromedp.Evaluate(script, &text)); err != nil {
			return "", err
		}
		return text, nil
	}
}
