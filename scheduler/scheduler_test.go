package scheduler

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/okx/deploy-bot/utils"
)

func defaultSchedule() (utils.ScheduleConfig, utils.GasConfig) {
	return utils.ScheduleConfig{
			DeployCountMin:      2,
			DeployCountMax:      4,
			IntervalHours:       []int{6, 12, 24},
			JitterSeconds:       600,
			WalletDelayMin:      5,
			WalletDelayMax:      30,
			PreUpdateDelayMin:   2,
			PreUpdateDelayMax:   5,
			FollowUpProbability: 0.7,
			Messages:            utils.DefaultMessages,
		}, utils.GasConfig{
			DeployMin: 2_500_000,
			DeployMax: 3_000_000,
			UpdateMin: 80_000,
			UpdateMax: 120_000,
		}
}

func newScheduler(seed uint64) *Scheduler {
	cfg, gas := defaultSchedule()
	return New(cfg, gas, NewSource(seed))
}

// fixedSource replays floats and clamps ints to the lower bound.
type fixedSource struct {
	floats []float64
}

func (f *fixedSource) IntRange(min, _ int) int { return min }

func (f *fixedSource) Float64() float64 {
	v := f.floats[0]
	f.floats = f.floats[1:]
	return v
}

func testCredentials(t *testing.T, n int) []utils.Credential {
	t.Helper()
	creds := make([]utils.Credential, n)
	for i := range creds {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		creds[i] = utils.Credential{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
	}
	return creds
}

func TestShuffleWalletsIsPermutation(t *testing.T) {
	s := newScheduler(1)
	creds := testCredentials(t, 10)
	before := make([]string, len(creds))
	for i, c := range creds {
		before[i] = c.Address.Hex()
	}

	for i := 0; i < 100; i++ {
		out := s.ShuffleWallets(creds)
		require.Len(t, out, len(creds))

		seen := make(map[string]int)
		for _, c := range out {
			seen[c.Address.Hex()]++
		}
		for _, addr := range before {
			require.Equal(t, 1, seen[addr], "address %s", addr)
		}
	}

	for i, c := range creds {
		require.Equal(t, before[i], c.Address.Hex(), "input must not be mutated")
	}
}

func TestShuffleIsApproximatelyUniform(t *testing.T) {
	src := NewSource(7)
	items := []int{0, 1, 2}
	const trials = 60000
	counts := make(map[string]int)
	for i := 0; i < trials; i++ {
		counts[fmt.Sprint(Shuffle(src, items))]++
	}

	require.Len(t, counts, 6, "every permutation must be reachable")
	expected := trials / 6
	for perm, n := range counts {
		require.InDelta(t, expected, n, float64(expected)*0.1, "permutation %s", perm)
	}
}

func TestShuffleEdgeCases(t *testing.T) {
	src := NewSource(3)
	require.Empty(t, Shuffle(src, []int{}))
	require.Equal(t, []int{9}, Shuffle(src, []int{9}))
}

func TestPlanForWallet(t *testing.T) {
	s := newScheduler(11)
	counts := map[int]int{}
	intervals := map[int]int{}
	for i := 0; i < 3000; i++ {
		p := s.PlanForWallet()
		require.Contains(t, []int{2, 3, 4}, p.DeployCount)
		require.Contains(t, []int{6, 12, 24}, p.IntervalHours)
		counts[p.DeployCount]++
		intervals[p.IntervalHours]++
	}
	require.Len(t, counts, 3)
	require.Len(t, intervals, 3)
}

func TestInterDeployDelay(t *testing.T) {
	s := newScheduler(5)
	for _, hours := range []int{6, 12, 24} {
		base := time.Duration(hours) * time.Hour
		for i := 0; i < 2000; i++ {
			d := s.InterDeployDelay(hours)
			require.GreaterOrEqual(t, d, base-600*time.Second)
			require.LessOrEqual(t, d, base+600*time.Second)
			require.Zero(t, d%time.Second)
		}
	}
}

func TestShortDelays(t *testing.T) {
	s := newScheduler(9)
	for i := 0; i < 2000; i++ {
		w := s.InterWalletDelay()
		require.GreaterOrEqual(t, w, 5*time.Second)
		require.LessOrEqual(t, w, 30*time.Second)

		p := s.PreUpdateDelay()
		require.GreaterOrEqual(t, p, 2*time.Second)
		require.LessOrEqual(t, p, 5*time.Second)
	}
}

func TestGasLimits(t *testing.T) {
	s := newScheduler(13)
	for i := 0; i < 2000; i++ {
		d := s.DeployGasLimit()
		require.GreaterOrEqual(t, d, uint64(2_500_000))
		require.LessOrEqual(t, d, uint64(3_000_000))

		u := s.UpdateGasLimit()
		require.GreaterOrEqual(t, u, uint64(80_000))
		require.LessOrEqual(t, u, uint64(120_000))
	}
}

func TestShouldSendFollowUp(t *testing.T) {
	cfg, gas := defaultSchedule()
	src := &fixedSource{floats: []float64{0.0, 0.3, 0.31, 0.99}}
	s := New(cfg, gas, src)

	require.False(t, s.ShouldSendFollowUp())
	require.False(t, s.ShouldSendFollowUp())
	require.True(t, s.ShouldSendFollowUp())
	require.True(t, s.ShouldSendFollowUp())
}

func TestChanceThresholdIsExact(t *testing.T) {
	justAbove := math.Nextafter(0.3, 1)
	src := &fixedSource{floats: []float64{justAbove, 0.3, 0.0, 0.999}}

	require.True(t, Chance(src, 0.7), "%v is above 0.3", justAbove)
	require.False(t, Chance(src, 0.7))
	require.False(t, Chance(src, 0))
	require.True(t, Chance(src, 1))
}

func TestShouldSendFollowUpRate(t *testing.T) {
	s := newScheduler(17)
	const trials = 20000
	sent := 0
	for i := 0; i < trials; i++ {
		if s.ShouldSendFollowUp() {
			sent++
		}
	}
	require.InDelta(t, 0.7, float64(sent)/trials, 0.02)
}

func TestPickMessage(t *testing.T) {
	s := newScheduler(19)
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		msg := s.PickMessage()
		require.Contains(t, utils.DefaultMessages, msg)
		seen[msg] = true
	}
	require.Len(t, seen, len(utils.DefaultMessages))
}

func TestSeededSourceIsReproducible(t *testing.T) {
	a, b := newScheduler(42), newScheduler(42)
	for i := 0; i < 50; i++ {
		require.Equal(t, a.PlanForWallet(), b.PlanForWallet())
		require.Equal(t, a.InterWalletDelay(), b.InterWalletDelay())
	}
}

func TestFeatures(t *testing.T) {
	features := newScheduler(1).Features()
	require.Contains(t, features, "random interval between deployments (6h/12h/24h) with ±600s jitter")
	require.Contains(t, features, "follow-up updateMessage with 70% probability")
}
