package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type mockProvider struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	replies []func() (string, error)
	onCall  chan int
}

func (p *mockProvider) Generate(_ context.Context, prompt string, _ Schema) (string, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.prompts = append(p.prompts, prompt)
	var reply func() (string, error)
	if n <= len(p.replies) {
		reply = p.replies[n-1]
	} else if len(p.replies) > 0 {
		reply = p.replies[len(p.replies)-1]
	}
	p.mu.Unlock()

	if p.onCall != nil {
		p.onCall <- n
	}
	if reply == nil {
		return "", errors.New("no reply configured")
	}
	return reply()
}

func (p *mockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func fail() (string, error) { return "", errors.New("upstream unavailable") }

func ok(subject, body string) func() (string, error) {
	return func() (string, error) {
		return `{"subject":"` + subject + `","htmlBody":"` + body + `"}`, nil
	}
}

func testMatch() models.LocationMatch {
	level := 92.0
	return models.LocationMatch{
		Location: models.MonitoredLocation{ID: "home", Name: "Home", AlertRadiusMeters: 1000},
		Observations: []models.ObservationMatch{
			{
				HazardObservation: models.HazardObservation{
					SourceID: "s1", Source: models.HazardSourceSensor, Name: "Han River Bridge",
					MagnitudePercent: 92, Severity: models.SeverityCritical, WaterLevelCm: &level,
				},
				DistanceMeters: 300,
			},
			{
				HazardObservation: models.HazardObservation{
					SourceID: "s2", Source: models.HazardSourceSensor,
					MagnitudePercent: 85, Severity: models.SeverityCritical,
				},
				DistanceMeters: 500,
			},
		},
	}
}

func TestGenerate_Success(t *testing.T) {
	provider := &mockProvider{replies: []func() (string, error){ok("Flood near Home", "<p>Move now</p>")}}
	g := NewGenerator(provider, DefaultPolicy(clockwork.NewFakeClock()), nil)

	c, err := g.Generate(context.Background(), Request{UserID: "alice", Match: testMatch()})
	require.NoError(t, err)
	assert.True(t, c.Generated)
	assert.Equal(t, "Flood near Home", c.Subject)
	assert.Equal(t, "<p>Move now</p>", c.Body)
	assert.Equal(t, 1, provider.Calls())

	// One prompt covers every observation of the location.
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "Han River Bridge")
	assert.Contains(t, provider.prompts[0], `"s2"`)
}

func TestGenerate_RetriesThenFallsBack(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &mockProvider{
		replies: []func() (string, error){fail},
		onCall:  make(chan int, 8),
	}
	metrics := observability.NewMetricsForTesting()
	g := NewGenerator(provider, DefaultPolicy(clock), metrics)

	type result struct {
		c   Content
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := g.Generate(context.Background(), Request{UserID: "alice", Match: testMatch()})
		done <- result{c, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := clock.Now()
	for _, wait := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		<-provider.onCall
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(wait - time.Millisecond)
		select {
		case n := <-provider.onCall:
			t.Fatalf("call %d happened before the %v wait elapsed", n, wait)
		case <-time.After(20 * time.Millisecond):
		}
		clock.Advance(time.Millisecond)
	}
	assert.Equal(t, 4, <-provider.onCall)

	r := <-done
	require.NoError(t, r.err)
	assert.False(t, r.c.Generated)
	assert.Equal(t, 4, provider.Calls())
	assert.Equal(t, 14*time.Second, clock.Since(start))

	assert.Contains(t, r.c.Subject, "CRITICAL")
	assert.Contains(t, r.c.Subject, "Home")
	assert.Contains(t, r.c.Body, "92%")

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.GenerationAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GenerationFallback))
}

func TestGenerate_RecoversAfterBadJSON(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := &mockProvider{
		replies: []func() (string, error){
			func() (string, error) { return "not json", nil },
			ok("Recovered", "<p>ok</p>"),
		},
		onCall: make(chan int, 4),
	}
	g := NewGenerator(provider, DefaultPolicy(clock), nil)

	done := make(chan Content, 1)
	go func() {
		c, _ := g.Generate(context.Background(), Request{Match: testMatch()})
		done <- c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	<-provider.onCall
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Second)

	c := <-done
	assert.True(t, c.Generated)
	assert.Equal(t, "Recovered", c.Subject)
}

func TestGenerate_NilProviderUsesFallback(t *testing.T) {
	g := NewGenerator(nil, DefaultPolicy(clockwork.NewFakeClock()), nil)
	c, err := g.Generate(context.Background(), Request{Match: testMatch()})
	require.NoError(t, err)
	assert.False(t, c.Generated)
	assert.NotEmpty(t, c.Subject)
}

func TestGenerate_EmptyMatch(t *testing.T) {
	g := NewGenerator(nil, DefaultPolicy(clockwork.NewFakeClock()), nil)
	_, err := g.Generate(context.Background(), Request{Match: models.LocationMatch{}})
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestParseResponse(t *testing.T) {
	c, err := parseResponse("```json\n{\"subject\":\"S\",\"body\":\"B\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "S", c.Subject)
	assert.Equal(t, "B", c.Body)

	_, err = parseResponse(`{"subject":"only subject"}`)
	assert.Error(t, err)
}

func TestFallback_Deterministic(t *testing.T) {
	m := testMatch()
	a, b := Fallback(m), Fallback(m)
	assert.Equal(t, a, b)
	assert.Contains(t, a.Body, "higher ground")
	assert.Equal(t, 2, strings.Count(a.Body, "m away"))
}

func TestGeminiProvider(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if r.URL.RawQuery != "" {
			t.Errorf("unexpected query string %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"subject\":\"x\",\"htmlBody\":\"y\"}"}]}}]}`))
	}))
	defer server.Close()

	p := NewGeminiProvider(server.URL, "gemini-2.0-flash", "secret", 5*time.Second)
	out, err := p.Generate(context.Background(), "prompt", ResponseSchema)
	require.NoError(t, err)
	assert.Equal(t, `{"subject":"x","htmlBody":"y"}`, out)
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)
}

func TestGeminiProvider_TransportErrorOmitsKey(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	p := NewGeminiProvider(addr, "gemini-2.0-flash", "SECRET-API-KEY", 5*time.Second)
	_, err := p.Generate(context.Background(), "prompt", ResponseSchema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
	assert.NotContains(t, err.Error(), "SECRET-API-KEY")
}

func TestGeminiProvider_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewGeminiProvider(server.URL, "m", "k", 5*time.Second)
	_, err := p.Generate(context.Background(), "prompt", ResponseSchema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
