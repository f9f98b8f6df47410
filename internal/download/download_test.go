package download

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func serve(t *testing.T, files map[string][]byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s, &hits
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestDownloadVerifiesHash(t *testing.T) {
	content := []byte("sauce connect binary")
	s, _ := serve(t, map[string][]byte{"/sc.bin": content})
	dir := t.TempDir()

	var d Downloader
	file := File{URL: s.URL + "/sc.bin", Name: "sc.bin", Hash: sha256Hex(content)}
	if err := d.Download(context.Background(), file, dir); err != nil {
		t.Fatalf("d.Download() returned error: %v", err)
	}
	got, err := ioutil.ReadFile(filepath.Join(dir, "sc.bin"))
	if err != nil {
		t.Fatalf("ioutil.ReadFile() returned error: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("downloaded %q, want %q", got, content)
	}
}

func TestDownloadHashMismatch(t *testing.T) {
	content := []byte("tampered")
	s, _ := serve(t, map[string][]byte{"/sc.bin": content})

	var d Downloader
	file := File{URL: s.URL + "/sc.bin", Name: "sc.bin", Hash: sha256Hex([]byte("original"))}
	err := d.Download(context.Background(), file, t.TempDir())
	if err == nil {
		t.Fatal("d.Download() with a wrong hash returned nil error")
	}
	if !strings.Contains(err.Error(), "sha256") {
		t.Errorf("d.Download() error = %q, want it to name the hash type", err)
	}
}

func TestDownloadMD5(t *testing.T) {
	content := []byte("md5 verified")
	sum := md5.Sum(content)
	s, _ := serve(t, map[string][]byte{"/f": content})

	var d Downloader
	file := File{URL: s.URL + "/f", Name: "f", Hash: hex.EncodeToString(sum[:]), HashType: "MD5"}
	if err := d.Download(context.Background(), file, t.TempDir()); err != nil {
		t.Fatalf("d.Download() returned error: %v", err)
	}
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	content := []byte("already here")
	s, hits := serve(t, map[string][]byte{"/sc.bin": content})
	dir := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(dir, "sc.bin"), content, 0644); err != nil {
		t.Fatalf("ioutil.WriteFile() returned error: %v", err)
	}

	var d Downloader
	file := File{URL: s.URL + "/sc.bin", Name: "sc.bin", Hash: sha256Hex(content)}
	if err := d.Download(context.Background(), file, dir); err != nil {
		t.Fatalf("d.Download() returned error: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Fatalf("server was hit %d times, want 0", n)
	}
}

func TestDownloadNotFound(t *testing.T) {
	s, _ := serve(t, nil)
	var d Downloader
	if err := d.Download(context.Background(), File{URL: s.URL + "/missing", Name: "missing"}, t.TempDir()); err == nil {
		t.Fatal("d.Download() of a missing file returned nil error")
	}
}

func TestDownloadAll(t *testing.T) {
	s, hits := serve(t, map[string][]byte{"/a": []byte("a"), "/b": []byte("b")})
	dir := t.TempDir()

	var d Downloader
	err := d.DownloadAll(context.Background(), dir,
		File{URL: s.URL + "/a", Name: "a"},
		File{URL: s.URL + "/b", Name: "b"})
	if err != nil {
		t.Fatalf("d.DownloadAll() returned error: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 2 {
		t.Errorf("server was hit %d times, want 2", n)
	}
	for _, name := range []string{"a", "b"} {
		got, err := ioutil.ReadFile(filepath.Join(dir, name))
		if err != nil || string(got) != name {
			t.Errorf("file %q = %q, %v; want %q", name, got, err, name)
		}
	}
}

func TestDownloadRequireHash(t *testing.T) {
	s, _ := serve(t, map[string][]byte{"/sc.bin": []byte("unverified")})
	dir := t.TempDir()

	d := Downloader{RequireHash: true}
	err := d.Download(context.Background(), File{URL: s.URL + "/sc.bin", Name: "sc.bin"}, dir)
	if err == nil {
		t.Fatal("d.Download() of a file with no hash returned nil error")
	}
	if _, err := os.Stat(filepath.Join(dir, "sc.bin")); !os.IsNotExist(err) {
		t.Errorf("d.Download() wrote an unverified file: %v", err)
	}
}

// fakeGCS serves Cloud Storage object metadata and media for one bucket.
type fakeGCS struct {
	bucket  string
	objects map[string][]byte
	// md5 overrides the stored digest reported for an object.
	md5 map[string][]byte
}

func (f *fakeGCS) RoundTrip(req *http.Request) (*http.Response, error) {
	var name string
	var media bool
	switch {
	case req.URL.Host == "www.googleapis.com" && strings.HasPrefix(req.URL.Path, "/storage/v1/b/"+f.bucket+"/o/"):
		name = strings.TrimPrefix(req.URL.Path, "/storage/v1/b/"+f.bucket+"/o/")
	case req.URL.Host == "storage.googleapis.com" && strings.HasPrefix(req.URL.Path, "/"+f.bucket+"/"):
		name, media = strings.TrimPrefix(req.URL.Path, "/"+f.bucket+"/"), true
	}
	body, ok := f.objects[name]
	if !ok {
		return response(req, http.StatusNotFound, []byte(`{"error":{"code":404,"message":"Not Found"}}`)), nil
	}
	if media {
		return response(req, http.StatusOK, body), nil
	}
	sum, ok := f.md5[name]
	if !ok {
		s := md5.Sum(body)
		sum = s[:]
	}
	attrs := fmt.Sprintf(`{"bucket":%q,"name":%q,"size":"%d","md5Hash":%q}`,
		f.bucket, name, len(body), base64.StdEncoding.EncodeToString(sum))
	return response(req, http.StatusOK, []byte(attrs)), nil
}

func response(req *http.Request, code int, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    code,
		Status:        http.StatusText(code),
		Header:        http.Header{"Content-Type": {"application/json"}},
		Body:          ioutil.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func TestDownloadGCS(t *testing.T) {
	content := []byte("mirrored sauce connect")
	gcs := &fakeGCS{bucket: "mirror", objects: map[string][]byte{"sc.bin": content}}
	dir := t.TempDir()

	d := Downloader{HTTPClient: &http.Client{Transport: gcs}, RequireHash: true}
	if err := d.Download(context.Background(), File{URL: "gs://mirror/sc.bin", Name: "sc.bin"}, dir); err != nil {
		t.Fatalf("d.Download() returned error: %v", err)
	}
	got, err := ioutil.ReadFile(filepath.Join(dir, "sc.bin"))
	if err != nil {
		t.Fatalf("ioutil.ReadFile() returned error: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("downloaded %q, want %q", got, content)
	}
}

func TestDownloadGCSStoredMD5Mismatch(t *testing.T) {
	other := md5.Sum([]byte("the real archive"))
	gcs := &fakeGCS{
		bucket:  "mirror",
		objects: map[string][]byte{"sc.bin": []byte("tampered")},
		md5:     map[string][]byte{"sc.bin": other[:]},
	}

	d := Downloader{HTTPClient: &http.Client{Transport: gcs}}
	err := d.Download(context.Background(), File{URL: "gs://mirror/sc.bin", Name: "sc.bin"}, t.TempDir())
	if err == nil {
		t.Fatal("d.Download() of an object not matching its stored MD5 returned nil error")
	}
	if !strings.Contains(err.Error(), "md5") {
		t.Errorf("d.Download() error = %q, want it to name the hash type", err)
	}
}

func TestDownloadGCSNotFound(t *testing.T) {
	gcs := &fakeGCS{bucket: "mirror"}
	d := Downloader{HTTPClient: &http.Client{Transport: gcs}}
	if err := d.Download(context.Background(), File{URL: "gs://mirror/missing", Name: "missing"}, t.TempDir()); err == nil {
		t.Fatal("d.Download() of a missing object returned nil error")
	}
}

func TestDownloadAllGCSAndHTTP(t *testing.T) {
	s, _ := serve(t, map[string][]byte{"/a": []byte("a")})
	gcs := &fakeGCS{bucket: "mirror", objects: map[string][]byte{"b": []byte("b")}}
	// Requests for the test server go through the default transport.
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Host, "googleapis.com") {
			return gcs.RoundTrip(req)
		}
		return http.DefaultTransport.RoundTrip(req)
	})
	dir := t.TempDir()

	d := Downloader{HTTPClient: &http.Client{Transport: transport}}
	err := d.DownloadAll(context.Background(), dir,
		File{URL: s.URL + "/a", Name: "a", Hash: sha256Hex([]byte("a"))},
		File{URL: "gs://mirror/b", Name: "b"})
	if err != nil {
		t.Fatalf("d.DownloadAll() returned error: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		got, err := ioutil.ReadFile(filepath.Join(dir, name))
		if err != nil || string(got) != name {
			t.Errorf("file %q = %q, %v; want %q", name, got, err, name)
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0755, Size: int64(len(body))}); err != nil {
			t.Fatalf("tw.WriteHeader() returned error: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tw.Write() returned error: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tw.Close() returned error: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gz.Close() returned error: %v", err)
	}
	return buf.Bytes()
}

func TestDownloadUnpacksAndRenames(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar is not installed")
	}
	archive := tarGz(t, map[string]string{"sc-9.9.9-linux/bin/sc": "#!/bin/sh\n"})
	s, _ := serve(t, map[string][]byte{"/sc.tar.gz": archive})
	dir := t.TempDir()

	var d Downloader
	file := File{
		URL:    s.URL + "/sc.tar.gz",
		Name:   "sauce-connect.tar.gz",
		Rename: []string{"sc-9.9.9-linux", "sauce-connect"},
	}
	if err := d.Download(context.Background(), file, dir); err != nil {
		t.Fatalf("d.Download() returned error: %v", err)
	}
	got, err := ioutil.ReadFile(filepath.Join(dir, "sauce-connect", "bin", "sc"))
	if err != nil {
		t.Fatalf("unpacked binary missing: %v", err)
	}
	if string(got) != "#!/bin/sh\n" {
		t.Fatalf("unpacked binary = %q", got)
	}
}

func TestSauceConnectFile(t *testing.T) {
	f, err := SauceConnectFile("linux")
	if err != nil {
		t.Fatalf("SauceConnectFile(linux) returned error: %v", err)
	}
	want := File{
		URL:    "https://saucelabs.com/downloads/sc-" + SauceConnectVersion + "-linux.tar.gz",
		Name:   "sauce-connect.tar.gz",
		Hash:   "0de7fcbcb03ad400e886f2c4b34661eda55808e69c7bc4db6aa6aff85e4edb15",
		Rename: []string{"sc-" + SauceConnectVersion + "-linux", "sauce-connect"},
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Fatalf("SauceConnectFile(linux) returned diff (-want/+got):\n%s", diff)
	}

	if f, err := SauceConnectFile("darwin"); err != nil || !strings.HasSuffix(f.URL, "-osx.zip") {
		t.Errorf("SauceConnectFile(darwin) = %+v, %v; want an osx zip", f, err)
	}
	if _, err := SauceConnectFile("plan9"); err == nil {
		t.Error("SauceConnectFile(plan9) returned nil error")
	}
}

func TestParseGCSURL(t *testing.T) {
	bucket, object, err := parseGCSURL("gs://mirror-bucket/sauce/sc-4.5.3-linux.tar.gz")
	if err != nil {
		t.Fatalf("parseGCSURL() returned error: %v", err)
	}
	if bucket != "mirror-bucket" || object != "sauce/sc-4.5.3-linux.tar.gz" {
		t.Fatalf("parseGCSURL() = %q, %q", bucket, object)
	}
	for _, bad := range []string{"https://example.com/a", "gs://bucket-only", "gs:///object"} {
		if _, _, err := parseGCSURL(bad); err == nil {
			t.Errorf("parseGCSURL(%q) returned nil error", bad)
		}
	}
}

func TestUnpackCommand(t *testing.T) {
	for _, tc := range []struct {
		path string
		want []string
	}{
		{"d/sc.tar.gz", []string{"tar", "-xzf", "d/sc.tar.gz", "-C", "d"}},
		{"d/ff.tar.bz2", []string{"tar", "-xjf", "d/ff.tar.bz2", "-C", "d"}},
		{"d/sc.zip", []string{"unzip", "-o", "-d", "d", "d/sc.zip"}},
		{"d/sc.bin", nil},
	} {
		if diff := cmp.Diff(tc.want, unpackCommand(tc.path, "d")); diff != "" {
			t.Errorf("unpackCommand(%q) returned diff (-want/+got):\n%s", tc.path, diff)
		}
	}
}
