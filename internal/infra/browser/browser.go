// Package browser opens URLs in the platform browser for OAuth flows.
package browser

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"

	"gratia/internal/domain/service"
	"gratia/internal/errors"

	"go.uber.org/fx"
)

// systemBrowser launches the default browser via the platform opener. It can
// only report that the hand-off succeeded; flow cancellation is detected by
// the deep-link callback never arriving, or by an embedding shell (mobile
// webview, test harness) providing its own BrowserOpener that returns the
// Cancelled error kind.
type systemBrowser struct {
	logger *slog.Logger
}

// Params holds dependencies for the system browser, injected by Fx.
type Params struct {
	fx.In

	Logger *slog.Logger
}

// NewSystemBrowser is the constructor for the platform browser opener.
func NewSystemBrowser(params Params) service.BrowserOpener {
	return &systemBrowser{logger: params.Logger}
}

func (b *systemBrowser) Open(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}

	b.logger.Debug("Opening browser for authorization", slog.String("url", url))

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to launch browser")
	}

	return nil
}
