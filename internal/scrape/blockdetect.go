package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockForbidden  BlockType = "forbidden"
)

// interstitialMaxBytes bounds the size of a challenge or captcha page on a
// 2xx response.
const interstitialMaxBytes = 16 << 10

// DetectBlock inspects a response for anti-bot protection or an outright
// refusal to serve the page.
func DetectBlock(status int, header http.Header, body []byte) (bool, BlockType) {
	if header == nil {
		header = http.Header{}
	}

	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	// A served page with data may still embed a captcha widget or mention
	// the CDN; only interstitials are judged by their markers.
	interstitial := status < 200 || status >= 300 ||
		(len(body) < interstitialMaxBytes && !strings.Contains(lower, "<table"))

	if interstitial {
		if strings.Contains(lower, "checking your browser") ||
			strings.Contains(lower, "cf-browser-verification") ||
			strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
			return true, BlockCloudflare
		}

		if strings.Contains(lower, "captcha") {
			return true, BlockCaptcha
		}
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	if status == http.StatusForbidden || status == http.StatusUnavailableForLegalReasons {
		return true, BlockForbidden
	}

	return false, BlockNone
}
