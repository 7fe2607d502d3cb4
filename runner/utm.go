package runner

import (
	"net/url"
	"strings"

	"github.com/mbolis/lead-scorer/log"
)

const utmPrefix = "utm_"

// CaptureUTM extracts the utm_* parameters of a raw query string. When a key
// repeats, the first value wins. A malformed query yields an empty map.
func CaptureUTM(rawQuery string) map[string]string {
	params := map[string]string{}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		log.Debugf("runner.capture_utm: %v", err)
		return params
	}

	for key, vs := range values {
		if !strings.HasPrefix(key, utmPrefix) || len(vs) == 0 {
			continue
		}
		params[key] = vs[0]
	}
	return params
}

// FilterUTM keeps only the utm_* entries of params.
func FilterUTM(params map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range params {
		if strings.HasPrefix(k, utmPrefix) {
			out[k] = v
		}
	}
	return out
}
