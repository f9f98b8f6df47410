package sauce

import (
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/log"
)

// Capability names written by MergeCapabilities.
const (
	SeleniumVersionKey = "selenium-version"
	BrowserVersionKey  = "version"
	PlatformKey        = "platform"
)

// MergeCapabilities returns a copy of base with the Selenium version, browser
// version and platform set. base is never modified and the result shares no
// maps or slices with it, so base can be reused for further sessions.
//
// osName is parsed with ParsePlatform. Any empty argument, or an osName that
// names no platform, yields a *ConfigurationError.
func MergeCapabilities(base selenium.Capabilities, seleniumVersion, browserVersion, osName string) (selenium.Capabilities, error) {
	if seleniumVersion == "" {
		return nil, missing(SeleniumVersionEnv)
	}
	if browserVersion == "" {
		return nil, missing(BrowserVersionEnv)
	}
	if osName == "" {
		return nil, missing(OSEnv)
	}
	p, err := ParsePlatform(osName)
	if err != nil {
		return nil, &ConfigurationError{Var: OSEnv, Err: err}
	}

	caps := cloneCapabilities(base)
	caps[SeleniumVersionKey] = seleniumVersion
	caps[BrowserVersionKey] = browserVersion
	caps[PlatformKey] = p
	return caps, nil
}

// Merge is MergeCapabilities with the values taken from c.
func (c Config) Merge(base selenium.Capabilities) (selenium.Capabilities, error) {
	return MergeCapabilities(base, c.SeleniumVersion, c.BrowserVersion, c.OS)
}

func cloneCapabilities(c selenium.Capabilities) selenium.Capabilities {
	out := make(selenium.Capabilities, len(c)+3)
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the container types that end up in capabilities.
// Other values, including structs behind pointers, are shared.
func cloneValue(v interface{}) interface{} {
	switch v := v.(type) {
	case selenium.Capabilities:
		return cloneCapabilities(v)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, e := range v {
			m[k] = cloneValue(e)
		}
		return m
	case log.Capabilities:
		m := make(log.Capabilities, len(v))
		for k, e := range v {
			m[k] = e
		}
		return m
	case map[string]string:
		m := make(map[string]string, len(v))
		for k, e := range v {
			m[k] = e
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(v))
		for i, e := range v {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		return append([]string(nil), v...)
	}
	return v
}
