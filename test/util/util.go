// Package util holds helpers for the integration tests: a disposable
// Mosquitto broker, free ports and metric polling.
package util

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	brokerStartTimeout = 30 * time.Second
	metricTimeout      = 5 * time.Second
)

// mosquittoConf opens the default listener to anonymous clients; the image
// refuses remote connections otherwise.
const mosquittoConf = "listener 1883\nallow_anonymous true\n"

// FreeAddr returns a loopback address whose port was free when the call
// returned.
func FreeAddr(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// StartMosquitto runs an eclipse-mosquitto container for the duration of
// the test and returns its broker URL. The test is skipped when no container
// runtime is reachable.
func StartMosquitto(t testing.TB) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), brokerStartTimeout)
	defer cancel()

	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			Files: []tc.ContainerFile{{
				Reader:            strings.NewReader(mosquittoConf),
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("1883/tcp"),
				wait.ForLog("running"),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mosquitto unavailable: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })

	endpoint, err := cont.PortEndpoint(ctx, "1883/tcp", "tcp")
	require.NoError(t, err)
	return endpoint
}

// WaitForMetric polls a Prometheus endpoint until its exposition contains
// substr.
func WaitForMetric(t testing.TB, metricsURL, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		body, err := scrape(metricsURL)
		return err == nil && strings.Contains(body, substr)
	}, metricTimeout, 50*time.Millisecond, "metric %q never exposed at %s", substr, metricsURL)
}

func scrape(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scrape %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	return string(body), err
}
