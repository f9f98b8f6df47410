package sauce

import (
	"fmt"
	"net/url"

	"github.com/kelseyhightower/envconfig"
)

// Names of the environment variables read by LoadConfig.
const (
	UserNameEnv        = "SAUCE_USERNAME"
	AccessKeyEnv       = "SAUCE_APIKEY"
	SeleniumVersionEnv = "SAUCE_SELENIUM_VERSION"
	BrowserVersionEnv  = "SAUCE_BROWSER_VERSION"
	// OSEnv should hold a Platform name or an OS name such as "xp", "win7"
	// or "linux". See ParsePlatform.
	OSEnv = "SAUCE_OS"
)

// The fixed location of the Sauce Labs WebDriver endpoint.
const (
	endpointScheme = "http"
	endpointHost   = "ondemand.saucelabs.com:80"
	endpointPath   = "/wd/hub"
)

// Config holds everything needed to open a session on Sauce Labs. All fields
// are required.
type Config struct {
	// UserName and AccessKey are the Sauce Labs account credentials. They are
	// embedded in the endpoint URL.
	UserName  string `envconfig:"SAUCE_USERNAME" desc:"Sauce Labs account name"`
	AccessKey string `envconfig:"SAUCE_APIKEY" desc:"Sauce Labs access key"`
	// SeleniumVersion is written to the "selenium-version" capability.
	SeleniumVersion string `envconfig:"SAUCE_SELENIUM_VERSION" desc:"Selenium server version to run"`
	// BrowserVersion is written to the "version" capability.
	BrowserVersion string `envconfig:"SAUCE_BROWSER_VERSION" desc:"browser version to run"`
	// OS is parsed with ParsePlatform and written to the "platform"
	// capability.
	OS string `envconfig:"SAUCE_OS" desc:"platform to run on, e.g. WIN8, xp, linux"`
}

// LoadConfig reads a Config from the environment. It fails with a
// *ConfigurationError if any of the variables is unset or empty.
//
// The environment is read on every call; nothing is cached.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, &ConfigurationError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadCredentials reads a Config from the environment but requires only
// SAUCE_USERNAME and SAUCE_APIKEY. It suits callers that authenticate with
// Sauce Labs without opening a session, such as a Sauce Connect tunnel. The
// other fields are filled in if set.
func LoadCredentials() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, &ConfigurationError{Err: err}
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateCredentials is Validate restricted to UserName and AccessKey.
func (c Config) ValidateCredentials() error {
	if c.UserName == "" {
		return missing(UserNameEnv)
	}
	if c.AccessKey == "" {
		return missing(AccessKeyEnv)
	}
	return nil
}

// Validate reports the first empty field as a *ConfigurationError wrapping
// ErrMissingVariable. Values are not otherwise checked.
func (c Config) Validate() error {
	if err := c.ValidateCredentials(); err != nil {
		return err
	}
	for _, f := range []struct{ name, value string }{
		{SeleniumVersionEnv, c.SeleniumVersion},
		{BrowserVersionEnv, c.BrowserVersion},
		{OSEnv, c.OS},
	} {
		if f.value == "" {
			return missing(f.name)
		}
	}
	return nil
}

// Endpoint returns the Sauce Labs WebDriver URL for the configured account.
func (c Config) Endpoint() (*url.URL, error) {
	return Endpoint(c.UserName, c.AccessKey)
}

// String describes the configuration with the access key redacted.
func (c Config) String() string {
	key := ""
	if c.AccessKey != "" {
		key = "xxxxx"
	}
	return fmt.Sprintf("sauce.Config{UserName: %q, AccessKey: %q, SeleniumVersion: %q, BrowserVersion: %q, OS: %q}",
		c.UserName, key, c.SeleniumVersion, c.BrowserVersion, c.OS)
}

// Usage prints a table of the environment variables read by LoadConfig.
func Usage() error {
	return envconfig.Usage("", &Config{})
}

// Endpoint returns the URL to use for driving a remote web browser on Sauce
// Labs, of the form http://<userName>:<accessKey>@ondemand.saucelabs.com:80/wd/hub.
//
// The credentials are escaped as URL userinfo. Empty credentials, or a URL
// that does not parse back, yield a *ConfigurationError.
func Endpoint(userName, accessKey string) (*url.URL, error) {
	if userName == "" {
		return nil, missing(UserNameEnv)
	}
	if accessKey == "" {
		return nil, missing(AccessKeyEnv)
	}
	raw := fmt.Sprintf("%s://%s@%s%s", endpointScheme,
		url.UserPassword(userName, accessKey).String(), endpointHost, endpointPath)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)}
	}
	if u.Host != endpointHost || u.Path != endpointPath {
		return nil, &ConfigurationError{Err: fmt.Errorf("%w: %s", ErrMalformedEndpoint, u.Redacted())}
	}
	return u, nil
}
