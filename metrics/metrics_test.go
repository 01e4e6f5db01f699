package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt(true)
	m.ObserveFollowUp(false)
	m.SetWallets(3)
	m.WalletDone()
	m.Waiting("wallet", time.Second)()
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveAttempt(true)
	m.ObserveAttempt(true)
	m.ObserveAttempt(false)
	m.ObserveFollowUp(true)
	m.SetWallets(2)
	m.WalletDone()

	require.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.followUps.WithLabelValues("sent")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.walletsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.walletsDone))

	done := m.Waiting("deploy", 6*time.Hour)
	require.Equal(t, 21600.0, testutil.ToFloat64(m.waitSeconds.WithLabelValues("deploy")))
	done()
	require.Zero(t, testutil.ToFloat64(m.waitSeconds.WithLabelValues("deploy")))
}

func TestServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m := New()
	m.ObserveAttempt(true)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(ctx, addr, log.NewLogger(log.NewTerminalHandler(io.Discard, false))) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	require.True(t, strings.Contains(body, `deploybot_deploy_attempts_total{result="success"} 1`))

	cancel()
	require.NoError(t, <-errCh)
}
