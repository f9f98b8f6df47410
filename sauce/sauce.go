// Package sauce opens remote browser sessions on the Sauce Labs hosted
// browser testing environment.
//
// The account, Selenium version, browser version and platform come from the
// environment (see LoadConfig). New merges them into caller-supplied
// capabilities and hands the result to the WebDriver client:
//
//	cfg, err := sauce.LoadConfig()
//	if err != nil {
//		// A *sauce.ConfigurationError; nothing has touched the network.
//	}
//	wd, err := sauce.New(selenium.Capabilities{"browserName": "firefox"}, cfg)
package sauce

import (
	"encoding/json"
)

// JobOptions are per-job settings understood by the Sauce infrastructure, on
// top of the standard WebDriver capabilities. Add them to a session with
// WithJob.
//
// See the following URL for details of each option:
// https://wiki.saucelabs.com/display/DOCS/Test+Configuration+Options
type JobOptions struct {
	// When testing Chrome, the version of ChromeDriver to use.
	ChromeDriverVersion string `json:"chromedriverVersion,omitempty"`
	// When testing IE, the version of IE Driver to use.
	IEDriverVersion string `json:"iedriverVersion,omitempty"`

	// Automatically accept unexpected browser alerts.
	AutoAcceptAlerts *bool `json:"autoAcceptAlerts,omitempty"`

	// Used to record test names for jobs.
	TestName string `json:"name,omitempty"`
	// Used to associate jobs with a build number or app version.
	BuildNumber string `json:"build,omitempty"`
	// User-defined tags for grouping and filtering jobs.
	Tags []string `json:"tags,omitempty"`
	// User-defined custom data, limited to 64KB in size.
	CustomData json.RawMessage `json:"customData,omitempty"`

	// Maximum test duration in seconds. Sauce defaults to 1800 and caps it at
	// 10800.
	MaximumDuration int `json:"maxDuration,omitempty"`
	// Maximum time a single browser command may run, in seconds. Sauce
	// defaults to 300 and caps it at 600.
	CommandTimeout int `json:"commandTimeout,omitempty"`
	// Maximum time to wait for a new command, in seconds. Sauce defaults to 90
	// and caps it at 1000.
	IdleTimeout int `json:"idleTimeout,omitempty"`

	// Run an executable before the test.
	PreRun *PreRun `json:"prerun,omitempty"`

	ScreenResolution string `json:"screenResolution,omitempty"`
	TimeZone         string `json:"timeZone,omitempty"`

	// Disable use of the Selenium HTTP proxy server.
	AvoidProxy bool `json:"avoidProxy,omitempty"`

	Visibility Visibility `json:"public,omitempty"`

	// Sauce records video, screenshots, logs and page source by default. Set
	// these to false to turn recording off.
	RecordVideo       *bool `json:"recordVideo,omitempty"`
	UploadVideoOnPass *bool `json:"videoUploadOnPass,omitempty"`
	RecordScreenshots *bool `json:"recordScreenshots,omitempty"`
	RecordLogs        *bool `json:"recordLogs,omitempty"`
	CaptureHTML       *bool `json:"captureHtml,omitempty"`

	// Smaller numbers run first across sub-accounts.
	Priority int `json:"priority,omitempty"`

	// Re-enable automatic screenshots on server-side failures, which Sauce
	// disables by default.
	WebDriverScreenshot *bool `json:"webdriverRemoteQuietExceptions,omitempty"`
}

// Visibility is a visibility level for a job's results.
type Visibility string

const (
	// Public results are accessible to everyone.
	Public Visibility = "public"
	// PublicRestricted results expose the result page and video, but not the
	// logs, to anonymous users.
	PublicRestricted Visibility = "public restricted"
	// Team results are only accessible under the executor's root account.
	Team Visibility = "team"
	// Private results are only visible to the job's owner.
	Private Visibility = "private"
)

// PreRun configures an executable that is downloaded and run to configure the
// VM before the test starts.
type PreRun struct {
	Executable string   `json:"executable,omitempty"`
	Args       []string `json:"args,omitempty"`
	// Do not wait for the executable to finish before starting the session.
	Background bool `json:"background,omitempty"`
	// Seconds to wait for the executable to finish.
	Timeout int `json:"timeout,omitempty"`
}

// ToMap returns the options in a key/value structure, keyed by their Sauce
// names. Unset options are omitted.
func (o *JobOptions) ToMap() (map[string]interface{}, error) {
	buf, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	return m, nil
}
