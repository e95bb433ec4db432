package game

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

const screenshotTimeout = 5 * time.Second

// Screenshot captures the visible viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := p.page.Context(ctx).Timeout(screenshotTimeout).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", wrapNavigation(err))
	}
	return img, nil
}
