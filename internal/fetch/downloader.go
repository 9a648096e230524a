package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/flowbot/media-migrator/pkg/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize = 32 * 1024
	progressInterval = 10 * time.Second
)

// Downloader streams remote assets into staging files.
type Downloader struct {
	client    *http.Client
	chunkSize int
	timeout   time.Duration
}

func NewDownloader(client *http.Client, chunkSize int, timeout time.Duration) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Downloader{client: client, chunkSize: chunkSize, timeout: timeout}
}

// Download appends the body of url to dst chunk by chunk and returns the
// number of bytes written. dst must be exclusive to the caller: the file is
// never truncated.
func (d *Downloader) Download(ctx context.Context, url string, dst string) (int64, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid url %q", url)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to download %q, status code: %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, errors.Wrap(err, "failed to create staging folder")
	}

	f, err := os.OpenFile(dst, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open staging file %q", dst)
	}
	defer f.Close()

	totalSize := int64(0)
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		totalSize = n
	}

	progressCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := newWrapper(progressCtx, f, url, totalSize)

	written, err := copyChunks(w, resp.Body, d.chunkSize)
	metrics.AddDownloadedBytesMetric(written)
	if err != nil {
		return written, errors.Wrapf(err, "failed to stage %q", url)
	}

	if totalSize > 0 && written != totalSize {
		return written, fmt.Errorf("failed to download the entire asset. expected bytes %d received %d", totalSize, written)
	}

	return written, nil
}

func copyChunks(dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// wrapper counts the bytes written to the staging file and logs progress.
type wrapper struct {
	downloadedBytes int64
	total           int64
	url             string
	w               io.Writer
	progress        chan int64
}

func newWrapper(ctx context.Context, w io.Writer, url string, total int64) *wrapper {
	mw := &wrapper{w: w, url: url, total: total, progress: make(chan int64, 1)}
	go mw.start(ctx)

	return mw
}

func (m *wrapper) start(ctx context.Context) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var downloaded int64
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-m.progress:
			downloaded = n
		case <-ticker.C:
			if m.total == 0 {
				zap.S().Named("downloader").Debugw("downloading", "url", m.url, "progress", fmt.Sprintf("%.2f Mb", float32(downloaded)/(1024*1024)))
				continue
			}
			zap.S().Named("downloader").Debugw("downloading", "url", m.url, "progress", fmt.Sprintf("%.2f%%", 100*(float32(downloaded)/float32(m.total))))
		}
	}
}

func (m *wrapper) Write(p []byte) (n int, err error) {
	n, err = m.w.Write(p)
	if err == nil {
		m.downloadedBytes += int64(n)
		// drop the previous value if the logger has not picked it up yet
		select {
		case <-m.progress:
		default:
		}
		m.progress <- m.downloadedBytes
	}
	return
}
