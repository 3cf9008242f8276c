package render

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// waitForImages resolves once every <img> has loaded or failed.
const waitForImages = `() => Promise.all(Array.from(document.images).map(img =>
	img.complete ? true : new Promise(resolve => { img.onload = img.onerror = () => resolve(true); })))`

// RodSurface renders with a headless Chrome launched for each capture.
// Nothing is shared between calls.
type RodSurface struct {
	// BrowserBin is the Chrome/Chromium binary. Empty lets the launcher find
	// or download one.
	BrowserBin string
}

// Capture launches a browser, loads html at width x height and returns a PNG
// screenshot. The page, browser and process are torn down on every path.
func (s *RodSurface) Capture(ctx context.Context, html string, width, height int) ([]byte, error) {
	l := launcher.New().Context(ctx).Headless(true)
	if s.BrowserBin != "" {
		l = l.Bin(s.BrowserBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, &creative.RenderError{Stage: "launch", Err: err}
	}
	defer func() {
		l.Kill()
		l.Cleanup()
	}()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, &creative.RenderError{Stage: "connect", Err: err}
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, &creative.RenderError{Stage: "page", Err: err}
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}); err != nil {
		return nil, &creative.RenderError{Stage: "viewport", Err: err}
	}

	if err := page.SetDocumentContent(html); err != nil {
		return nil, &creative.RenderError{Stage: "load", Err: err}
	}
	if err := page.WaitLoad(); err != nil {
		return nil, &creative.RenderError{Stage: "load", Err: err}
	}
	if _, err := page.Eval(waitForImages); err != nil {
		return nil, &creative.RenderError{Stage: "load", Err: err}
	}

	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, &creative.RenderError{Stage: "capture", Err: err}
	}
	return shot, nil
}
