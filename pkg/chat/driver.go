package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatbridge/internal/errors"
	"chatbridge/pkg/constants"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

type pageRunner interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
}

// pageDriver executes the surface interactions against a browser tab.
type pageDriver struct {
	page      pageRunner
	selectors map[string]string
}

func newPageDriver(page pageRunner, selectors map[string]string) *pageDriver {
	return &pageDriver{page: page, selectors: selectors}
}

func (d *pageDriver) selectChat(ctx context.Context, conversation string) (bool, error) {
	found := false
	script := selectChatScript(d.selectors[selChatList], d.selectors[selChatTitle], conversation)
	err := d.page.Run(ctx,
		chromedp.Evaluate(script, &found),
		chromedp.Sleep(constants.DefaultSubmitSettleMs*time.Millisecond),
	)
	if err != nil {
		return false, errors.NewBrowserError("select conversation", err)
	}
	return found, nil
}

func (d *pageDriver) readWindow(ctx context.Context) ([]domEntry, error) {
	entries := []domEntry{}
	script := readWindowScript(d.selectors, constants.MessageWindowSize)
	if err := d.page.Run(ctx, chromedp.Evaluate(script, &entries)); err != nil {
		return nil, errors.NewBrowserError("read messages", err)
	}
	return entries, nil
}

// exportBlob fetches a blob URL inside the page and returns its content
// as a data URL. Blob URLs only resolve in the document that created
// them, so the fetch cannot happen from this process.
func (d *pageDriver) exportBlob(ctx context.Context, src string) (string, error) {
	var dataURL string
	script := exportBlobScript(src)
	err := d.page.Run(ctx, chromedp.Evaluate(script, &dataURL, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return "", errors.NewBrowserError("export image", err)
	}
	return dataURL, nil
}

// postReply types text into the conversation input and submits it with
// an Enter key event. Insertion goes through CDP Input.insertText rather
// than simulated keystrokes, which stays reliable for long or non-ASCII
// replies.
func (d *pageDriver) postReply(ctx context.Context, text string) error {
	inputSel := d.selectors[selInput]
	err := d.page.Run(ctx,
		chromedp.WaitVisible(inputSel, chromedp.ByQuery),
		chromedp.Click(inputSel, chromedp.ByQuery),
		input.InsertText(text),
		chromedp.Sleep(constants.DefaultClipboardSettleMs*time.Millisecond),
		chromedp.KeyEvent(kb.Enter),
		chromedp.Sleep(constants.DefaultSubmitSettleMs*time.Millisecond),
	)
	if err != nil {
		return errors.NewBrowserError("reply", err)
	}
	return nil
}

func (d *pageDriver) loggedIn(ctx context.Context) (bool, error) {
	present := false
	script := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(d.selectors[selLoggedIn]))
	if err := d.page.Run(ctx, chromedp.Evaluate(script, &present)); err != nil {
		return false, errors.NewBrowserError("login probe", err)
	}
	return present, nil
}

func jsString(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted)
}

func selectChatScript(listSel, titleSel, name string) string {
	return fmt.Sprintf(`(() => {
	const items = document.querySelectorAll(%s);
	for (const item of items) {
		const title = item.querySelector(%s);
		if (title && title.getAttribute('title') === %s) {
			item.click();
			return true;
		}
	}
	return false;
})()`, jsString(listSel), jsString(titleSel), jsString(name))
}

func readWindowScript(selectors map[string]string, window int) string {
	return fmt.Sprintf(`(() => {
	const rows = document.querySelectorAll(%s);
	return Array.from(rows).slice(-%d).map((row) => {
		const keyed = row.closest('[data-id]');
		const textEl = row.querySelector(%s);
		const img = row.querySelector(%s) || row.querySelector(%s);
		return {
			key: keyed ? keyed.getAttribute('data-id') : '',
			outbound: row.matches(%s),
			text: textEl ? textEl.innerText : '',
			imageSrc: img ? img.getAttribute('src') : ''
		};
	});
})()`,
		jsString(selectors[selMessageIn]+", "+selectors[selMessageOut]),
		window,
		jsString(selectors[selMessageText]),
		jsString(selectors[selImageBlob]),
		jsString(selectors[selImageInline]),
		jsString(selectors[selMessageOut]),
	)
}

func exportBlobScript(src string) string {
	return fmt.Sprintf(`(async () => {
	try {
		const resp = await fetch(%s);
		const blob = await resp.blob();
		return await new Promise((resolve) => {
			const reader = new FileReader();
			reader.onloadend = () => resolve(reader.result);
			reader.readAsDataURL(blob);
		});
	} catch (e) {
		return '';
	}
})()`, jsString(src))
}
