package suggest_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/keyword-radar/internal/suggest"
)

func TestProxyRotatorRoundRobin(t *testing.T) {
	rotator, err := suggest.NewProxyRotator([]string{"10.0.0.1:8080", "http://10.0.0.2:8080", "socks5://10.0.0.3:1080", " "})
	require.NoError(t, err)
	require.True(t, rotator.Enabled())
	require.Equal(t, 3, rotator.Len())

	var hosts []string
	for range 6 {
		hosts = append(hosts, rotator.Next().Label())
	}
	require.Equal(t, []string{
		"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:1080",
		"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:1080",
	}, hosts)
}

func TestProxyRotatorConcurrentAssignmentIsEven(t *testing.T) {
	rotator, err := suggest.NewProxyRotator([]string{"p1:1", "p2:1", "p3:1", "p4:1"})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		counts = map[string]int{}
		wg     sync.WaitGroup
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				label := rotator.Next().Label()
				mu.Lock()
				counts[label]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, counts, 4)
	for host, n := range counts {
		require.Equal(t, 250, n, host)
	}
}

func TestProxyRotatorDirect(t *testing.T) {
	rotator, err := suggest.NewProxyRotator(nil)
	require.NoError(t, err)
	require.False(t, rotator.Enabled())
	require.Equal(t, 0, rotator.Len())
	require.Equal(t, "direct", rotator.Next().Label())
	require.NotNil(t, rotator.Next().HTTP)
}

func TestProxyRotatorRejectsBadEntries(t *testing.T) {
	_, err := suggest.NewProxyRotator([]string{"ftp://10.0.0.1:21"})
	require.Error(t, err)
	_, err = suggest.NewProxyRotator([]string{"http://"})
	require.Error(t, err)
}

func TestHeaderPoolDrawsFromPools(t *testing.T) {
	pool := suggest.NewHeaderPool([]string{"ua-1", "ua-2"})
	seen := map[string]bool{}
	for range 200 {
		h := pool.Next()
		seen[h.Get("User-Agent")] = true
		require.NotEmpty(t, h.Get("Accept"))
		require.NotEmpty(t, h.Get("Accept-Language"))
	}
	require.Equal(t, map[string]bool{"ua-1": true, "ua-2": true}, seen)

	require.Contains(t, suggest.NewHeaderPool(nil).Next().Get("User-Agent"), "Mozilla/5.0")
}
