package apiserver_test

import (
	"context"
	"io"
	"net"
	"net/http"

	apiserver "github.com/flowbot/media-migrator/internal/api_server"
	"github.com/flowbot/media-migrator/pkg/metrics"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("metrics server", func() {
	It("serves the migration metrics until the context is canceled", func() {
		listener, err := net.Listen("tcp", "localhost:0")
		Expect(err).To(BeNil())

		metrics.IncreaseItemsTotalMetric("Recorded")

		ctx, cancel := context.WithCancel(context.Background())
		server := apiserver.NewMetricServer(listener.Addr().String(), listener, "info")
		done := make(chan error, 1)
		go func() { done <- server.Run(ctx) }()

		resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
		Expect(err).To(BeNil())
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring(`media_migration_items_total{state="Recorded"}`))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
