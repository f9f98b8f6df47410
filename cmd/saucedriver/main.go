// Binary saucedriver opens a browser session on Sauce Labs using the SAUCE_*
// environment variables, and manages the Sauce Connect Proxy.
//
// Usage:
//
//	saucedriver [-env_file .env] [-caps '{"browserName":"chrome"}'] [-dry_run]
//	saucedriver -fetch_connect third_party
//	saucedriver -fetch_connect third_party -connect_url gs://mirror/sc-4.5.3-linux.tar.gz
//	saucedriver -tunnel third_party/sauce-connect/bin/sc -port 4445
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/blang/semver"
	"github.com/dmitris/selenium/internal/download"
	"github.com/dmitris/selenium/sauce"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/tebeka/selenium"
)

var (
	envFile      = flag.String("env_file", ".env", "File of SAUCE_* variables to load before reading the environment. A missing file is ignored.")
	capsJSON     = flag.String("caps", "", "Base capabilities as a JSON object.")
	browser      = flag.String("browser", "firefox", "Browser to request, unless -caps sets browserName.")
	testName     = flag.String("name", "", "Sauce job name.")
	build        = flag.String("build", "", "Sauce build identifier.")
	tags         = flag.String("tags", "", "Comma-separated Sauce job tags.")
	dryRun       = flag.Bool("dry_run", false, "Print the endpoint and capabilities instead of opening a session.")
	debug        = flag.Bool("debug", false, "Log WebDriver wire traffic.")
	tunnelPath   = flag.String("tunnel", "", "Path to the Sauce Connect binary. If set, run a tunnel until interrupted.")
	tunnelPort   = flag.Int("port", 4445, "Port on which the tunnel accepts WebDriver connections.")
	fetchConnect = flag.String("fetch_connect", "", "If set, download the Sauce Connect Proxy into this directory and exit.")
	connectOS    = flag.String("connect_os", runtime.GOOS, "Comma-separated operating systems to download the Sauce Connect Proxy for. With more than one, each is unpacked into sauce-connect-<os>.")
	connectURL   = flag.String("connect_url", "", "Download the Sauce Connect Proxy from this https:// or gs://bucket/object mirror instead. Requires a single -connect_os.")
	connectHash  = flag.String("connect_sha256", "", "Expected SHA-256 of the Sauce Connect Proxy archive, for builds without a pinned digest. Requires a single -connect_os.")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		var ce *sauce.ConfigurationError
		if errors.As(err, &ce) {
			sauce.Usage() // ignore error.
		}
		glog.Exit(err)
	}
}

func run(ctx context.Context, out io.Writer) error {
	if *fetchConnect != "" {
		return fetch(ctx, *fetchConnect)
	}

	if err := loadDotEnv(*envFile); err != nil {
		return fmt.Errorf("loading %s: %v", *envFile, err)
	}
	if *tunnelPath != "" {
		cfg, err := sauce.LoadCredentials()
		if err != nil {
			return err
		}
		return tunnel(ctx, *tunnelPath, cfg)
	}

	cfg, err := sauce.LoadConfig()
	if err != nil {
		return err
	}
	checkSeleniumVersion(cfg.SeleniumVersion)

	base, err := baseCapabilities(*capsJSON, *browser)
	if err != nil {
		return err
	}
	var opts []sauce.Option
	if job := jobOptions(*testName, *build, *tags); job != nil {
		opts = append(opts, sauce.WithJob(*job))
	}

	if *dryRun {
		req, err := sauce.Resolve(base, cfg, opts...)
		if err != nil {
			return err
		}
		return printRequest(out, req)
	}

	selenium.SetDebug(*debug)
	wd, err := sauce.New(base, cfg, opts...)
	if err != nil {
		return err
	}
	glog.Infof("Opened Sauce Labs session %s", wd.SessionID())
	return wd.Quit()
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// checkSeleniumVersion warns about versions Sauce is unlikely to recognize.
// The value is passed on regardless.
func checkSeleniumVersion(v string) bool {
	if _, err := semver.ParseTolerant(v); err != nil {
		glog.Warningf("%s=%q does not look like a Selenium version: %v", sauce.SeleniumVersionEnv, v, err)
		return false
	}
	return true
}

func baseCapabilities(capsJSON, browser string) (selenium.Capabilities, error) {
	caps := selenium.Capabilities{}
	if capsJSON != "" {
		if err := json.Unmarshal([]byte(capsJSON), &caps); err != nil {
			return nil, fmt.Errorf("parsing -caps: %v", err)
		}
	}
	if _, ok := caps["browserName"]; !ok && browser != "" {
		caps["browserName"] = browser
	}
	return caps, nil
}

func jobOptions(name, build, tags string) *sauce.JobOptions {
	if name == "" && build == "" && tags == "" {
		return nil
	}
	job := &sauce.JobOptions{TestName: name, BuildNumber: build}
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			job.Tags = append(job.Tags, tag)
		}
	}
	return job
}

func printRequest(w io.Writer, req *sauce.Request) error {
	buf, err := json.MarshalIndent(struct {
		Endpoint     string                `json:"endpoint"`
		Capabilities selenium.Capabilities `json:"capabilities"`
	}{req.Endpoint.Redacted(), req.Capabilities}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", buf)
	return err
}

func tunnel(ctx context.Context, path string, cfg sauce.Config) error {
	sc, err := sauce.ConnectFromConfig(path, cfg)
	if err != nil {
		return err
	}
	sc.SeleniumPort = *tunnelPort
	sc.Verbose = bool(glog.V(1))
	if err := sc.Start(ctx); err != nil {
		return err
	}
	glog.Infof("Tunnel running on port %d; interrupt to stop.", *tunnelPort)
	<-ctx.Done()
	return sc.Stop()
}

func fetch(ctx context.Context, dir string) error {
	files, err := connectFiles(strings.Split(*connectOS, ","), *connectURL, *connectHash)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	d := download.Downloader{RequireHash: true}
	return d.DownloadAll(ctx, dir, files...)
}

// connectFiles describes the Sauce Connect Proxy archives for oses. mirror
// and sha256, if set, replace the source and expected digest; they only make
// sense for a single archive.
func connectFiles(oses []string, mirror, sha256 string) ([]download.File, error) {
	var goos []string
	for _, s := range oses {
		if s = strings.TrimSpace(s); s != "" {
			goos = append(goos, s)
		}
	}
	if len(goos) == 0 {
		return nil, fmt.Errorf("-connect_os names no operating system")
	}
	if len(goos) > 1 && (mirror != "" || sha256 != "") {
		return nil, fmt.Errorf("-connect_url and -connect_sha256 need a single -connect_os, got %q", goos)
	}

	var files []download.File
	for _, s := range goos {
		f, err := download.SauceConnectFile(s)
		if err != nil {
			return nil, err
		}
		if mirror != "" {
			// A mirror's content is checked against sha256 if given, and
			// otherwise, for gs:// objects, against their stored MD5.
			f.URL, f.Hash, f.HashType = mirror, "", ""
		}
		if sha256 != "" {
			f.Hash, f.HashType = strings.ToLower(sha256), "sha256"
		}
		if len(goos) > 1 {
			ext := strings.TrimPrefix(f.Name, "sauce-connect")
			f.Name = "sauce-connect-" + s + ext
			f.Rename = []string{f.Rename[0], "sauce-connect-" + s}
		}
		files = append(files, f)
	}
	return files, nil
}
