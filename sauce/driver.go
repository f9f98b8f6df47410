package sauce

import (
	"fmt"
	"net/url"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/log"
)

// RemoteFunc opens a WebDriver session at executor with the given
// capabilities. selenium.NewRemote is the default.
type RemoteFunc func(caps selenium.Capabilities, executor string) (selenium.WebDriver, error)

// Option configures how New builds a session.
type Option func(*settings) error

type settings struct {
	remote    RemoteFunc
	job       *JobOptions
	logLevels log.Capabilities
}

// WithRemote replaces the function used to open the session.
func WithRemote(f RemoteFunc) Option {
	return func(s *settings) error {
		if f == nil {
			return fmt.Errorf("sauce: nil RemoteFunc")
		}
		s.remote = f
		return nil
	}
}

// WithJob adds Sauce job options to the capabilities. They are applied after
// the caller's capabilities and so override entries of the same name, but
// never the Selenium version, browser version or platform.
func WithJob(o JobOptions) Option {
	return func(s *settings) error {
		s.job = &o
		return nil
	}
}

// WithLogLevel sets the logging level of a component of the remote session.
func WithLogLevel(typ log.Type, level log.Level) Option {
	return func(s *settings) error {
		if s.logLevels == nil {
			s.logLevels = make(log.Capabilities)
		}
		s.logLevels[typ] = level
		return nil
	}
}

// Request is a fully resolved session request: where to connect, and with
// what capabilities.
type Request struct {
	Endpoint     *url.URL
	Capabilities selenium.Capabilities
}

// Resolve validates cfg and builds the endpoint and merged capabilities New
// would use, without opening a session. base is not modified.
func Resolve(base selenium.Capabilities, cfg Config, opts ...Option) (*Request, error) {
	_, req, err := resolve(base, cfg, opts)
	return req, err
}

func resolve(base selenium.Capabilities, cfg Config, opts []Option) (*settings, *Request, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	s := &settings{remote: selenium.NewRemote}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, nil, err
		}
	}

	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, nil, err
	}
	caps, err := cfg.Merge(base)
	if err != nil {
		return nil, nil, err
	}

	if s.job != nil {
		m, err := s.job.ToMap()
		if err != nil {
			return nil, nil, fmt.Errorf("sauce: encoding job options: %v", err)
		}
		for k, v := range m {
			switch k {
			case SeleniumVersionKey, BrowserVersionKey, PlatformKey:
				continue
			}
			caps[k] = v
		}
	}
	if len(s.logLevels) > 0 {
		if err := normalizeLogPrefs(caps); err != nil {
			return nil, nil, err
		}
		for typ, level := range s.logLevels {
			caps.SetLogLevel(typ, level)
		}
	}
	return s, &Request{Endpoint: endpoint, Capabilities: caps}, nil
}

// normalizeLogPrefs converts logging preferences decoded from JSON into the
// log.Capabilities type that selenium.Capabilities.SetLogLevel expects. Entries
// that are not level names are an error rather than being dropped.
func normalizeLogPrefs(caps selenium.Capabilities) error {
	prefs := make(log.Capabilities)
	switch v := caps[log.CapabilitiesKey].(type) {
	case nil:
	case log.Capabilities:
		return nil
	case map[string]interface{}:
		for k, e := range v {
			level, ok := e.(string)
			if !ok {
				return fmt.Errorf("sauce: %s[%q] is a %T, not a log level", log.CapabilitiesKey, k, e)
			}
			prefs[log.Type(k)] = log.Level(level)
		}
	case map[string]string:
		for k, e := range v {
			prefs[log.Type(k)] = log.Level(e)
		}
	default:
		return fmt.Errorf("sauce: %s is a %T, not a map of log levels", log.CapabilitiesKey, v)
	}
	caps[log.CapabilitiesKey] = prefs
	return nil
}

// New opens a WebDriver session on Sauce Labs.
//
// cfg is validated and merged into a copy of base before anything else
// happens; a *ConfigurationError means no connection was attempted. Errors
// from the WebDriver client are returned unchanged.
func New(base selenium.Capabilities, cfg Config, opts ...Option) (selenium.WebDriver, error) {
	s, req, err := resolve(base, cfg, opts)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("sauce: opening session at %s with capabilities %v", req.Endpoint.Redacted(), req.Capabilities)
	return s.remote(req.Capabilities, req.Endpoint.String())
}

// NewFromEnv is New with the configuration read by LoadConfig.
func NewFromEnv(base selenium.Capabilities, opts ...Option) (selenium.WebDriver, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(base, cfg, opts...)
}
