package tcgplayer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"lastsold-monitor/utils"
)

// ErrChartNotFound is returned by CaptureChart when no chart element matched.
var ErrChartNotFound = errors.New("price chart element not found")

// blockedResources are not needed to read the sales table.
var blockedResources = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.woff", "*.woff2"}

// FetcherConfig controls the headless browser.
type FetcherConfig struct {
	Headless  bool
	ChromeBin string
	UserAgent string
	// Settle is how long to wait after navigation for client-side rendering.
	Settle    time.Duration
	Selectors Selectors
}

// Fetcher renders product pages in a shared headless Chrome instance.
type Fetcher struct {
	cfg    FetcherConfig
	logger *utils.Logger

	// launch starts the browser process and returns its context.
	launch func() (browserCtx context.Context, cancelAlloc, cancelBrow context.CancelFunc, err error)

	mu          sync.Mutex
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelBrow  context.CancelFunc
}

// NewFetcher creates a Fetcher; the browser starts lazily on first use.
func NewFetcher(cfg FetcherConfig, logger *utils.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 3 * time.Second
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()
	f := &Fetcher{cfg: cfg, logger: logger}
	f.launch = f.launchChrome
	return f
}

// browser returns the shared browser context, starting Chrome on first use
// and again whenever the previous instance has exited.
func (f *Fetcher) browser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browserCtx != nil {
		if f.browserCtx.Err() == nil {
			return f.browserCtx, nil
		}
		f.logger.Warn("[tcgplayer] Browser exited (%v), restarting", context.Cause(f.browserCtx))
		f.cancelBrow()
		f.cancelAlloc()
		f.browserCtx, f.cancelBrow, f.cancelAlloc = nil, nil, nil
	}

	browserCtx, cancelAlloc, cancelBrow, err := f.launch()
	if err != nil {
		return nil, err
	}
	f.browserCtx, f.cancelAlloc, f.cancelBrow = browserCtx, cancelAlloc, cancelBrow
	return browserCtx, nil
}

func (f *Fetcher) launchChrome() (context.Context, context.CancelFunc, context.CancelFunc, error) {
	chromeBin := f.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	f.logger.Info("[tcgplayer] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(f.cfg.UserAgent),
		chromedp.WindowSize(1366, 900),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	// Suppress chromedp log noise
	browserCtx, cancelBrow := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrow()
		cancelAlloc()
		return nil, nil, nil, fmt.Errorf("tcgplayer: start browser: %w", err)
	}
	return browserCtx, cancelAlloc, cancelBrow, nil
}

// tab opens a new tab bound to ctx: the tab closes when ctx is cancelled or
// its deadline passes.
func (f *Fetcher) tab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	browserCtx, err := f.browser()
	if err != nil {
		return nil, nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		prev := cancelTab
		cancelTab = func() { cancelDeadline(); prev() }
	}
	stop := context.AfterFunc(ctx, cancelTab)
	return tabCtx, func() { stop(); cancelTab() }, nil
}

// Fetch navigates to pageURL and returns the rendered document markup.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	tabCtx, cancel, err := f.tab(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	start := time.Now()
	var markup string
	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetBlockedURLS(blockedResources),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Settle),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := tabCtx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("tcgplayer: fetch %s: %w", pageURL, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("tcgplayer: fetch %s: %w", pageURL, err)
	}

	f.logger.Debug("[tcgplayer] Rendered %s in %s (%d bytes)", pageURL, utils.Elapsed(start), len(markup))
	return markup, nil
}

// CaptureChart takes a PNG screenshot of the price history chart.
func (f *Fetcher) CaptureChart(ctx context.Context, pageURL string) ([]byte, error) {
	tabCtx, cancel, err := f.tab(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Settle),
	); err != nil {
		return nil, fmt.Errorf("tcgplayer: load %s: %w", pageURL, err)
	}

	for _, sel := range strings.Split(f.cfg.Selectors.Chart, ",") {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}

		var found bool
		if err := chromedp.Run(tabCtx,
			chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%q) !== null`, sel), &found),
		); err != nil {
			return nil, fmt.Errorf("tcgplayer: check chart selector %q: %w", sel, err)
		}
		if !found {
			f.logger.Debug("[tcgplayer] Chart selector %q matched nothing", sel)
			continue
		}

		var png []byte
		if err := chromedp.Run(tabCtx,
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Screenshot(sel, &png, chromedp.NodeVisible, chromedp.ByQuery),
		); err != nil {
			return nil, fmt.Errorf("tcgplayer: screenshot %q: %w", sel, err)
		}
		f.logger.Info("[tcgplayer] Captured chart from %s using %q", pageURL, sel)
		return png, nil
	}
	return nil, ErrChartNotFound
}

// Close shuts down the browser if it was started.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelBrow != nil {
		f.cancelBrow()
		f.cancelAlloc()
		f.browserCtx, f.cancelBrow, f.cancelAlloc = nil, nil, nil
	}
}

// CardNameFromURL derives a readable card name from the product URL slug,
// e.g. /product/649586/pokemon-sv-151-booster-pack -> "Pokemon Sv 151 Booster Pack".
func CardNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "Unknown Card"
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "product" && i+2 < len(parts) {
			words := strings.Split(parts[i+2], "-")
			for j, w := range words {
				r := []rune(w)
				if len(r) > 0 {
					r[0] = unicode.ToUpper(r[0])
				}
				words[j] = string(r)
			}
			return strings.Join(words, " ")
		}
	}
	return "Unknown Card"
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
