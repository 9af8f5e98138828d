package form

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/log"
	"github.com/jakopako/formwalk/internal/utils"
)

const excerptLength = 1000

// Diagnostic is a snapshot of the page taken when something went wrong.
type Diagnostic struct {
	URL            string
	Title          string
	Forms          int
	Elements       int
	Choices        int
	Buttons        int
	Excerpt        string
	ScreenshotPath string
}

func (d *Diagnostic) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", d.URL),
		slog.String("title", d.Title),
		slog.Int("forms", d.Forms),
		slog.Int("elements", d.Elements),
		slog.Int("choices", d.Choices),
		slog.Int("buttons", d.Buttons),
		slog.String("screenshot", d.ScreenshotPath),
	)
}

// Diagnostician captures diagnostic snapshots. Capturing is best effort:
// every failure is logged and the partial snapshot is returned.
type Diagnostician struct {
	page         browser.Page
	dir          string
	choiceSelect string
}

func NewDiagnostician(page browser.Page, dir, choiceSelector string) *Diagnostician {
	return &Diagnostician{page: page, dir: dir, choiceSelect: choiceSelector}
}

func (d *Diagnostician) Capture(ctx context.Context, stage string) *Diagnostic {
	logger := log.LoggerFromContext(ctx).With(slog.String("stage", stage))
	diag := &Diagnostic{}

	if url, err := d.page.Location(ctx); err != nil {
		logger.Debug(fmt.Sprintf("could not read address: %v", err))
	} else {
		diag.URL = url
	}
	if title, err := d.page.Title(ctx); err != nil {
		logger.Debug(fmt.Sprintf("could not read title: %v", err))
	} else {
		diag.Title = title
	}

	if html, err := d.page.HTML(ctx); err != nil {
		logger.Debug(fmt.Sprintf("could not read html: %v", err))
	} else {
		d.summarize(diag, html, logger)
	}

	if path, err := d.screenshot(ctx, stage); err != nil {
		logger.Warn(fmt.Sprintf("could not save screenshot: %v", err))
	} else {
		diag.ScreenshotPath = path
	}

	logger.Info("captured page diagnostic", slog.Any("diagnostic", diag))
	logger.Debug(fmt.Sprintf("page excerpt: %s", diag.Excerpt))
	return diag
}

func (d *Diagnostician) summarize(diag *Diagnostic, html string, logger *slog.Logger) {
	diag.Excerpt = utils.ShortenString(html, excerptLength)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger.Debug(fmt.Sprintf("could not parse html: %v", err))
		return
	}
	if diag.Title == "" {
		diag.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	diag.Forms = doc.Find("form").Length()
	diag.Elements = doc.Find("body *").Length()
	diag.Buttons = doc.Find("button, div[role='button']").Length()
	if d.choiceSelect != "" {
		diag.Choices = doc.Find(d.choiceSelect).Length()
	}
}

func (d *Diagnostician) screenshot(ctx context.Context, stage string) (string, error) {
	buf, err := d.page.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	dir := d.dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.png", stage, uuid.New().String()))
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("writing screenshot to file %s", filename))
	if err := os.WriteFile(filename, buf, 0644); err != nil {
		return "", err
	}
	return filename, nil
}
