// Package download fetches the Sauce Connect Proxy and similar binary
// dependencies, verifying and unpacking them.
package download

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// SauceConnectVersion is the Sauce Connect Proxy release fetched by
// SauceConnectFile.
const SauceConnectVersion = "4.5.3"

// sauceConnectSHA256 holds the published SHA-256 digests of the
// SauceConnectVersion archives, by distribution.
var sauceConnectSHA256 = map[string]string{
	"linux": "0de7fcbcb03ad400e886f2c4b34661eda55808e69c7bc4db6aa6aff85e4edb15",
}

// File describes how to download a file from the Web or from Google Cloud
// Storage.
type File struct {
	// URL is an http(s):// URL or a gs://bucket/object path.
	URL string
	// Name is the local file name.
	Name string
	// Hash is the expected hex-encoded digest. If empty, the download is not
	// verified, except for gs:// objects, which are checked against their
	// stored MD5.
	Hash string
	// HashType is "md5", "sha1" or "sha256" (the default).
	HashType string
	// Rename, if set, is a [from, to] pair applied after unpacking.
	Rename []string
}

// SauceConnectFile describes the Sauce Connect Proxy archive for the given
// operating system. Unpacking it yields a "sauce-connect" directory whose
// bin/sc is the proxy binary. Hash is empty for distributions without a pinned
// digest; callers that need a verified download must supply one.
func SauceConnectFile(goos string) (File, error) {
	var dist, ext string
	switch goos {
	case "linux":
		dist, ext = "linux", ".tar.gz"
	case "darwin":
		dist, ext = "osx", ".zip"
	case "windows":
		dist, ext = "win32", ".zip"
	default:
		return File{}, fmt.Errorf("no Sauce Connect Proxy build for %q", goos)
	}
	base := fmt.Sprintf("sc-%s-%s", SauceConnectVersion, dist)
	return File{
		URL:    "https://saucelabs.com/downloads/" + base + ext,
		Name:   "sauce-connect" + ext,
		Hash:   sauceConnectSHA256[dist],
		Rename: []string{base, "sauce-connect"},
	}, nil
}

// Downloader fetches Files.
type Downloader struct {
	// HTTPClient is used for http(s) URLs. http.DefaultClient if nil.
	HTTPClient *http.Client
	// StorageOptions configure the Cloud Storage client used for gs:// URLs.
	// Without options, public objects are read anonymously.
	StorageOptions []option.ClientOption
	// RequireHash makes Download fail, before writing anything, for files it
	// cannot verify: those with no Hash that are not Cloud Storage objects with
	// a stored MD5.
	RequireHash bool
}

func (d *Downloader) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

// Download fetches file into directory unless a copy with the expected hash
// is already there, then unpacks and renames it. If directory is the empty
// string, the current directory is used.
func (d *Downloader) Download(ctx context.Context, file File, directory string) error {
	p := filepath.Join(directory, file.Name)
	if file.Hash != "" && fileSameHash(p, file) {
		glog.Infof("Skipping file %q which has already been downloaded.", file.Name)
	} else {
		glog.Infof("Downloading %q from %q", file.Name, file.URL)
		if err := d.downloadFile(ctx, p, file); err != nil {
			return err
		}
	}

	if err := unpack(p, directory); err != nil {
		return err
	}

	if rename := file.Rename; len(rename) == 2 {
		from := filepath.Join(directory, rename[0])
		to := filepath.Join(directory, rename[1])
		glog.Infof("Renaming %q to %q", from, to)
		os.RemoveAll(to) // Ignore error.
		if err := os.Rename(from, to); err != nil {
			glog.Warningf("Error renaming %q to %q: %v", from, to, err)
		}
	}
	return nil
}

// DownloadAll downloads files into directory in parallel.
func (d *Downloader) DownloadAll(ctx context.Context, directory string, files ...File) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := d.Download(ctx, file, directory); err != nil {
				return fmt.Errorf("error handling %s: %v", file.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Downloader) downloadFile(ctx context.Context, p string, file File) (err error) {
	body, storedMD5, err := d.open(ctx, file.URL)
	if err != nil {
		return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.URL, err)
	}
	defer body.Close()

	want, hashType := file.Hash, file.HashType
	if want == "" && storedMD5 != nil {
		want, hashType = hex.EncodeToString(storedMD5), "md5"
	}
	if want == "" && d.RequireHash {
		return fmt.Errorf("%s: no hash to verify %q against", file.Name, file.URL)
	}

	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("error creating %q: %v", p, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("error closing %q: %v", p, closeErr)
		}
	}()

	if want == "" {
		if _, err := io.Copy(f, body); err != nil {
			return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.URL, err)
		}
		return nil
	}

	h := newHash(hashType)
	if _, err := io.Copy(io.MultiWriter(f, h), body); err != nil {
		return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.URL, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return fmt.Errorf("%s: got %s hash %q, want %q", file.Name, hashName(hashType), got, want)
	}
	return nil
}

// open returns the content at u, and for Cloud Storage objects their stored
// MD5 digest.
func (d *Downloader) open(ctx context.Context, u string) (io.ReadCloser, []byte, error) {
	if strings.HasPrefix(u, "gs://") {
		return d.openGCS(ctx, u)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := d.httpClient().Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil, nil
}

func (d *Downloader) openGCS(ctx context.Context, u string) (io.ReadCloser, []byte, error) {
	bucket, object, err := parseGCSURL(u)
	if err != nil {
		return nil, nil, err
	}
	opts := d.StorageOptions
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithHTTPClient(d.httpClient())}
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create a storage client: %v", err)
	}
	obj := client.Bucket(bucket).Object(object)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("cannot get the attrs of %s: %v", u, err)
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("cannot create a reader for %s: %v", u, err)
	}
	return &gcsReader{Reader: r, client: client}, attrs.MD5, nil
}

type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// parseGCSURL splits gs://bucket/path/to/object into its bucket and object.
func parseGCSURL(u string) (bucket, object string, err error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", "", err
	}
	if parsed.Scheme != "gs" || parsed.Host == "" {
		return "", "", fmt.Errorf("%q is not a gs://bucket/object URL", u)
	}
	object = strings.TrimPrefix(parsed.Path, "/")
	if object == "" {
		return "", "", fmt.Errorf("%q names no object", u)
	}
	return parsed.Host, object, nil
}

func newHash(hashType string) hash.Hash {
	switch strings.ToLower(hashType) {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	default:
		return sha256.New()
	}
}

func hashName(hashType string) string {
	if hashType == "" {
		return "sha256"
	}
	return strings.ToLower(hashType)
}

func fileSameHash(p string, file File) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()

	h := newHash(file.HashType)
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if sum != file.Hash {
		glog.Warningf("File %q: got hash %q, expect hash %q", file.Name, sum, file.Hash)
		return false
	}
	return true
}

// unpackCommand returns the command that extracts archive p into dir, or nil
// if p is not an archive.
func unpackCommand(p, dir string) []string {
	switch {
	case strings.HasSuffix(p, ".tar.gz"), strings.HasSuffix(p, ".tgz"):
		return []string{"tar", "-xzf", p, "-C", dir}
	case strings.HasSuffix(p, ".tar.bz2"):
		return []string{"tar", "-xjf", p, "-C", dir}
	case path.Ext(p) == ".zip":
		return []string{"unzip", "-o", "-d", dir, p}
	}
	return nil
}

func unpack(p, dir string) error {
	if dir == "" {
		dir = "."
	}
	cmd := unpackCommand(p, dir)
	if cmd == nil {
		return nil
	}
	glog.Infof("Unpacking %q", p)
	if out, err := exec.Command(cmd[0], cmd[1:]...).CombinedOutput(); err != nil {
		return fmt.Errorf("error unpacking %q: %v: %s", p, err, out)
	}
	return nil
}
