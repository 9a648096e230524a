package fetch_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"sync/atomic"
	"time"

	"github.com/flowbot/media-migrator/internal/fetch"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("validator", func() {
	It("reports 200 for a reachable asset without reading the body", func() {
		var methods []string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			methods = append(methods, r.Method)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		result, err := fetch.NewValidator(ts.Client(), time.Second).Check(context.TODO(), ts.URL+"/cat.jpg")
		Expect(err).To(BeNil())
		Expect(result.OK()).To(BeTrue())
		Expect(result.URL).To(Equal(ts.URL + "/cat.jpg"))
		Expect(methods).To(Equal([]string{http.MethodHead}))
	})

	It("reports the status of a missing asset", func() {
		ts := httptest.NewServer(http.NotFoundHandler())
		defer ts.Close()

		result, err := fetch.NewValidator(ts.Client(), time.Second).Check(context.TODO(), ts.URL+"/missing.jpg")
		Expect(err).To(BeNil())
		Expect(result.OK()).To(BeFalse())
		Expect(result.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("fails on a slow server once the timeout elapses", func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}))
		defer ts.Close()

		_, err := fetch.NewValidator(ts.Client(), 50*time.Millisecond).Check(context.TODO(), ts.URL)
		Expect(err).ToNot(BeNil())
	})
})

var _ = Describe("downloader", func() {
	var (
		payload []byte
		hits    atomic.Int32
		ts      *httptest.Server
	)

	BeforeEach(func() {
		payload = make([]byte, 100*1024+7)
		_, _ = rand.Read(payload)
		hits.Store(0)

		ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if r.URL.Path == "/broken" {
				http.Error(w, "error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
			_, _ = w.Write(payload)
		}))
	})

	AfterEach(func() {
		ts.Close()
	})

	It("streams the body to the staging file", func() {
		dst := path.Join(GinkgoT().TempDir(), "nested", "cat.jpg")

		n, err := fetch.NewDownloader(ts.Client(), 1024, time.Second).Download(context.TODO(), ts.URL+"/cat.jpg", dst)
		Expect(err).To(BeNil())
		Expect(n).To(Equal(int64(len(payload))))

		content, err := os.ReadFile(dst)
		Expect(err).To(BeNil())
		Expect(content).To(Equal(payload))
	})

	It("appends instead of truncating", func() {
		dst := path.Join(GinkgoT().TempDir(), "cat.jpg")
		Expect(os.WriteFile(dst, []byte("partial"), 0o644)).To(Succeed())

		_, err := fetch.NewDownloader(ts.Client(), 0, time.Second).Download(context.TODO(), ts.URL+"/cat.jpg", dst)
		Expect(err).To(BeNil())

		content, err := os.ReadFile(dst)
		Expect(err).To(BeNil())
		Expect(content).To(HaveLen(len("partial") + len(payload)))
		Expect(content[:7]).To(Equal([]byte("partial")))
	})

	It("fails on a non-200 response and writes nothing", func() {
		dst := path.Join(GinkgoT().TempDir(), "broken.jpg")

		_, err := fetch.NewDownloader(ts.Client(), 1024, time.Second).Download(context.TODO(), ts.URL+"/broken", dst)
		Expect(err).ToNot(BeNil())
		_, statErr := os.Stat(dst)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	It("fails when the context is already canceled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := fetch.NewDownloader(ts.Client(), 1024, time.Second).Download(ctx, ts.URL+"/cat.jpg", path.Join(GinkgoT().TempDir(), "cat.jpg"))
		Expect(err).ToNot(BeNil())
		Expect(hits.Load()).To(BeZero())
	})
})
