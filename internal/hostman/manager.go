package hostman

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// hostInfo is the crawl policy for one host.
type hostInfo struct {
	robots  *robotstxt.RobotsData // nil means everything is allowed
	limiter *rate.Limiter
}

// Manager keeps robots.txt rules and a token bucket per host.
type Manager struct {
	mu            sync.Mutex
	hosts         map[string]*hostInfo
	client        *http.Client
	userAgent     string
	rps           float64
	respectRobots bool
	robotsTimeout time.Duration
	log           *logrus.Logger
}

type Config struct {
	UserAgent       string
	RequestsPerHost float64 // <= 0 disables rate limiting
	RespectRobots   bool
	RobotsTimeout   time.Duration
	Client          *http.Client
	Logger          *logrus.Logger
}

func New(cfg Config) *Manager {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.RobotsTimeout <= 0 {
		cfg.RobotsTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Manager{
		hosts:         make(map[string]*hostInfo),
		client:        cfg.Client,
		userAgent:     cfg.UserAgent,
		rps:           cfg.RequestsPerHost,
		respectRobots: cfg.RespectRobots,
		robotsTimeout: cfg.RobotsTimeout,
		log:           cfg.Logger,
	}
}

// Check reports whether robots.txt allows u and returns a function that blocks
// on the host's token bucket.
func (m *Manager) Check(ctx context.Context, u *url.URL) (bool, func(ctx context.Context) error) {
	h := m.host(ctx, u)

	allowed := true
	if h.robots != nil {
		allowed = h.robots.TestAgent(u.EscapedPath(), m.userAgent)
	}
	return allowed, h.limiter.Wait
}

func (m *Manager) host(ctx context.Context, u *url.URL) *hostInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.hosts[u.Host]; ok {
		return h
	}
	h := &hostInfo{limiter: m.newLimiter()}
	if m.respectRobots {
		h.robots = m.fetchRobots(ctx, u.Scheme, u.Host)
	}
	m.hosts[u.Host] = h
	return h
}

func (m *Manager) newLimiter() *rate.Limiter {
	if m.rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(m.rps), max(1, int(m.rps)))
}

// fetchRobots downloads robots.txt once per host. Any failure allows the whole host.
func (m *Manager) fetchRobots(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	robotsURL := scheme + "://" + host + "/robots.txt"

	ctx, cancel := context.WithTimeout(ctx, m.robotsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		m.log.WithError(err).WithField("url", robotsURL).Warn("robots.txt unavailable")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil
	}

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		m.log.WithError(err).WithField("url", robotsURL).Warn("robots.txt unparseable")
		return nil
	}
	return robots
}
