// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"blitznote.com/src/sendfile/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			ShutdownTimeout: 5 * time.Second,
		},
		Upload: config.UploadConfig{
			Dir:               filepath.Join(t.TempDir(), "send-file"),
			MaxRequestSize:    1 << 20,
			MaxNameCollisions: 10,
			FilenamesForm:     "NFC",
		},
	}
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	var banner bytes.Buffer
	app := New(cfg, &banner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- app.Run(ctx) }()

	select {
	case <-app.Ready():
	case err := <-errc:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("the server did not come up")
	}

	port, err := app.Port()
	if err != nil || port == 0 {
		t.Fatalf("Port() = %d, %v", port, err)
	}
	base := "http://127.0.0.1:" + strconv.Itoa(int(port))

	resp, err := http.Get(base + "/")
	if err != nil {
		t.Fatal(err)
	}
	greeting, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(greeting) != "Hello, World!" {
		t.Errorf("GET / = %q", greeting)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, _ := mw.CreateFormFile("file", "report.pdf")
	fw.Write([]byte("hello"))
	mw.Close()
	resp, err = http.Post(base+"/upload", mw.FormDataContentType(), body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST /upload = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if files, n := app.Received(); files != 1 || n != 5 {
		t.Errorf("Received() = %d files, %d bytes; want 1, 5", files, n)
	}
	got, err := os.ReadFile(filepath.Join(cfg.Upload.Dir, "report.pdf"))
	if err != nil || string(got) != "hello" {
		t.Errorf("stored file = %q, %v", got, err)
	}
	if !strings.Contains(banner.String(), "POST http://") || !strings.Contains(banner.String(), cfg.Upload.Dir) {
		t.Errorf("banner is missing the upload URL or destination:\n%s", banner.String())
	}
}

func TestRunFailsOnTakenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.Port = uint16(ln.Addr().(*net.TCPAddr).Port)
	app := New(cfg, io.Discard)

	if err := app.Run(context.Background()); err == nil {
		t.Fatal("Run() on a taken port succeeded")
	}
	select {
	case <-app.Ready():
		t.Error("Ready must not be signalled if binding failed")
	default:
	}
}

func TestRunReleasesPortIfDestinationIsUnusable(t *testing.T) {
	cfg := testConfig(t)
	notADir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(notADir, nil, 0600); err != nil {
		t.Fatal(err)
	}
	cfg.Upload.Dir = notADir
	app := New(cfg, io.Discard)
	port, err := app.Port()
	if err != nil {
		t.Fatal(err)
	}

	if err := app.Run(context.Background()); err == nil {
		t.Fatal("Run() with a file as destination succeeded")
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("port %d is still taken: %v", port, err)
	}
	ln.Close()
}

func TestPortIsStable(t *testing.T) {
	app := New(testConfig(t), io.Discard)
	first, err := app.Port()
	if err != nil {
		t.Fatal(err)
	}
	second, _ := app.Port()
	if first == 0 || first != second {
		t.Errorf("Port() = %d, then %d", first, second)
	}

	cfg := testConfig(t)
	cfg.Server.Port = 4711
	if port, _ := New(cfg, io.Discard).Port(); port != 4711 {
		t.Errorf("configured port not honoured, got %d", port)
	}
}

func TestAdvertisedHost(t *testing.T) {
	if got := advertisedHost("192.168.1.2"); got != "192.168.1.2" {
		t.Errorf("advertisedHost(192.168.1.2) = %q", got)
	}
	for _, wildcard := range []string{"", "0.0.0.0", "::"} {
		if got := advertisedHost(wildcard); net.ParseIP(got) == nil || net.ParseIP(got).IsUnspecified() {
			t.Errorf("advertisedHost(%q) = %q, want a reachable address", wildcard, got)
		}
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		host string
		port uint16
		want string
	}{
		{"192.168.1.2", 41234, "http://192.168.1.2:41234/"},
		{"::1", 80, "http://[::1]:80/"},
		{"localhost", 8080, "http://localhost:8080/"},
	}
	for _, tt := range tests {
		if got := baseURL(tt.host, tt.port); got != tt.want {
			t.Errorf("baseURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestWriteBanner(t *testing.T) {
	var b bytes.Buffer
	if err := writeBanner(&b, "http://localhost:1234/", "http://192.168.1.2:1234/", "/home/u/Downloads/send-file"); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	for _, want := range []string{
		"Local:    http://localhost:1234/",
		"Network:  http://192.168.1.2:1234/",
		"POST http://192.168.1.2:1234/upload",
		"/home/u/Downloads/send-file",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("banner lacks %q:\n%s", want, out)
		}
	}
	if !strings.ContainsAny(out, "█▀▄") {
		t.Error("banner lacks the QR code")
	}
}
