package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lastsold-monitor/scraper/tcgplayer"
	"lastsold-monitor/utils"
)

// ChartCapturer screenshots the price history chart of a product page.
type ChartCapturer interface {
	CaptureChart(ctx context.Context, pageURL string) ([]byte, error)
}

// ImageSender posts a PNG with a caption, e.g. to a Discord webhook.
type ImageSender interface {
	SendImage(ctx context.Context, content, filename string, png []byte) error
}

// GraphJob periodically saves and posts price chart screenshots.
type GraphJob struct {
	capturer ChartCapturer
	sender   ImageSender
	dir      string
	targets  []string
	logger   *utils.Logger
	now      func() time.Time
}

// NewGraphJob creates a GraphJob. sender may be nil to only save files.
func NewGraphJob(capturer ChartCapturer, sender ImageSender, dir string, targets []string, logger *utils.Logger) *GraphJob {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if dir == "" {
		dir = "captures"
	}
	return &GraphJob{
		capturer: capturer,
		sender:   sender,
		dir:      dir,
		targets:  append([]string(nil), targets...),
		logger:   logger,
		now:      time.Now,
	}
}

func (g *GraphJob) Name() string { return "capture-price-graphs" }

// Run captures every target in turn. One failing chart does not stop the rest.
func (g *GraphJob) Run(ctx context.Context) error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("graph: create %s: %w", g.dir, err)
	}

	var errs []error
	captured := 0
	for _, target := range g.targets {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := g.captureOne(ctx, target); err != nil {
			g.logger.Warn("[graph] %s: %v", target, err)
			errs = append(errs, err)
			continue
		}
		captured++
	}
	g.logger.Info("[graph] Captured %d/%d price charts", captured, len(g.targets))
	return errors.Join(errs...)
}

func (g *GraphJob) captureOne(ctx context.Context, target string) error {
	png, err := g.capturer.CaptureChart(ctx, target)
	if err != nil {
		return fmt.Errorf("graph: capture %s: %w", target, err)
	}

	name := tcgplayer.CardNameFromURL(target)
	ts := g.now()
	filename := fmt.Sprintf("%s_%s.png", fileSlug(name), ts.Format("20060102_150405"))
	path := filepath.Join(g.dir, filename)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("graph: write %s: %w", path, err)
	}
	g.logger.Debug("[graph] Saved %s (%d bytes)", path, len(png))

	if g.sender == nil {
		return nil
	}
	caption := fmt.Sprintf("📈 **%s** price history (%s)\n%s", name, ts.Format("2006-01-02 15:04"), target)
	if err := g.sender.SendImage(ctx, caption, filename, png); err != nil {
		return fmt.Errorf("graph: post %s: %w", filename, err)
	}
	return nil
}

func fileSlug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}
