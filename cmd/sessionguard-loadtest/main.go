// Command sessionguard-loadtest measures sign-in, access validation and
// refresh rotation throughput against a real store.
//
// Without -db a throwaway SQLite file is used; without -redis-addr (or
// REDIS_ADDR) the sign-in throttle runs on miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/mail"
	"github.com/MrEthical07/sessionguard/store/sqlstore"
)

const loadPassword = "loadtest-password-0001"

type userState struct {
	email   string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 32, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "operations per phase")
		dbURL       = flag.String("db", "", "database url; if empty, a temporary sqlite file is used")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	url := *dbURL
	if url == "" {
		dir, err := os.MkdirTemp("", "sessionguard-loadtest")
		if err != nil {
			fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)
		url = "sqlite://" + filepath.Join(dir, "load.db")
	}
	st, err := sqlstore.Open(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("using %s store\n", st.Dialect())

	engine, err := sessionguard.New().
		WithConfig(loadConfig(*ops)).
		WithStore(st).
		WithRedis(client).
		WithMailer(mail.LogMailer{Logger: discardLogger()}).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]userState, *users)
	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	for i := range states {
		states[i].email = fmt.Sprintf("load-%d@example.com", i)
		resp, err := engine.SignUp(ctx, sessionguard.SignUpInput{
			Email:    states[i].email,
			Password: loadPassword,
			Platform: string(sessionguard.PlatformMobile),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign up failed: %v\n", err)
			os.Exit(1)
		}
		states[i].adopt(resp)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	signIn := runPhase("sign-in", states, *ops, *concurrency, func(s *userState) error {
		resp, err := engine.SignIn(ctx, s.email, loadPassword, string(sessionguard.PlatformMobile))
		if err != nil {
			return err
		}
		// Keep the newest pair; the previous refresh token stays live.
		s.adopt(resp)
		return nil
	})
	validate := runPhase("validate", states, *ops, *concurrency, func(s *userState) error {
		_, err := engine.ValidateAccess(ctx, s.access)
		return err
	})
	refresh := runPhase("refresh", states, *ops, *concurrency, func(s *userState) error {
		resp, err := engine.Refresh(ctx, string(sessionguard.PlatformMobile), s.refresh)
		if err != nil {
			return err
		}
		s.adopt(resp)
		return nil
	})

	report(signIn, validate, refresh)

	snap := engine.MetricsSnapshot()
	fmt.Printf("reuse detected=%d expired=%d\n",
		snap.Counters[sessionguard.MetricRefreshReuseDetected],
		snap.Counters[sessionguard.MetricRefreshExpired],
	)
}

func (s *userState) adopt(resp sessionguard.Response) {
	m, ok := resp.(*sessionguard.MobileResponse)
	if !ok {
		return
	}
	s.access = m.AccessToken
	s.refresh = m.RefreshToken
}

// runPhase calls op ops times on random users. Calls for one user are
// serialized so a refresh never races its own rotation.
func runPhase(name string, states []userState, ops, concurrency int, op func(*userState) error) phaseResult {
	var (
		wg       sync.WaitGroup
		cursor   atomic.Int64
		failures atomic.Int64
		samples  = make([]time.Duration, ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for {
				i := int(cursor.Add(1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				err := op(state)
				samples[i] = time.Since(t0)
				state.mu.Unlock()
				if err != nil {
					failures.Add(1)
				}
			}
		}(time.Now().UnixNano() + int64(w)*7919)
	}
	wg.Wait()

	return newPhaseResult(name, time.Since(start), samples, failures.Load())
}

type phaseResult struct {
	name          string
	elapsed       time.Duration
	ops           int
	failures      int64
	p50, p95, p99 time.Duration
}

// newPhaseResult sorts samples in place.
func newPhaseResult(name string, elapsed time.Duration, samples []time.Duration, failures int64) phaseResult {
	slices.Sort(samples)
	return phaseResult{
		name:     name,
		elapsed:  elapsed,
		ops:      len(samples),
		failures: failures,
		p50:      quantile(samples, 0.50),
		p95:      quantile(samples, 0.95),
		p99:      quantile(samples, 0.99),
	}
}

func (r phaseResult) throughput() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.ops) / r.elapsed.Seconds()
}

// quantile expects sorted samples.
func quantile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*q)]
}

func report(results ...phaseResult) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "phase\tops\tfailures\telapsed\tops/sec\tp50\tp95\tp99\t")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%.0f\t%s\t%s\t%s\t\n",
			r.name,
			r.ops,
			r.failures,
			r.elapsed.Round(time.Millisecond),
			r.throughput(),
			r.p50.Round(time.Microsecond),
			r.p95.Round(time.Microsecond),
			r.p99.Round(time.Microsecond),
		)
	}
	_ = tw.Flush()
}
