// Package reach derives a best-effort network reachability signal by
// probing an HTTP endpoint and feeding the result to the mutation tracker.
package reach

import (
	"context"
	"net/http"
	"time"

	"github.com/mlourenco/refbox/internal/tracker"
	"go.uber.org/zap"
)

// Prober periodically probes a URL and updates the tracker's online flag.
// With no probe URL configured it never starts and the tracker keeps its
// default "online".
type Prober struct {
	probeURL string
	interval time.Duration
	tracker  *tracker.Tracker
	http     *http.Client
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewProber creates a prober. probeURL may be empty to disable probing.
func NewProber(probeURL string, interval time.Duration, tr *tracker.Tracker, logger *zap.Logger) *Prober {
	return &Prober{
		probeURL: probeURL,
		interval: interval,
		tracker:  tr,
		http:     &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// Start begins probing in the background. No-op when no URL is configured.
func (p *Prober) Start(ctx context.Context) {
	if p.probeURL == "" {
		p.logger.Info("no probe url configured, assuming online")
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop stops the probe loop.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Prober) loop(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.probeURL, nil)
	if err != nil {
		p.logger.Error("bad probe url", zap.Error(err))
		return
	}
	resp, err := p.http.Do(req)
	online := err == nil
	if resp != nil {
		_ = resp.Body.Close()
	}
	if !online {
		p.logger.Warn("reachability probe failed", zap.Error(err))
	}
	p.tracker.SetOnline(online)
}
