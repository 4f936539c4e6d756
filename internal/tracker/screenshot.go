package tracker

import (
	"path/filepath"
	"strings"
	"time"
)

const maxScreenshotURLLen = 50

// ScreenshotName builds "<YYYYMMDD_HHMMSS>_<url without scheme, slashes as underscores>.png",
// with the URL part cut to 50 bytes.
func ScreenshotName(url string, at time.Time) string {
	safe := strings.TrimPrefix(url, "https://")
	safe = strings.TrimPrefix(safe, "http://")
	safe = strings.ReplaceAll(safe, "/", "_")
	if len(safe) > maxScreenshotURLLen {
		safe = safe[:maxScreenshotURLLen]
	}
	return at.Format("20060102_150405") + "_" + safe + ".png"
}

func screenshotPath(dir, url string, at time.Time) string {
	return filepath.Join(dir, ScreenshotName(url, at))
}
