package pacing

import (
	"sync"

	"github.com/acme/powerdialer/internal/domain"
)

const (
	// coldStartRatio is used until enough attempts exist to model from.
	coldStartRatio = 1.2
	// minSample is the attempt count below which the model is not trusted.
	minSample = 10
	// adjustStep bounds each feedback correction.
	adjustStep = 0.1
	// abandonWindow is how many recent connects feed the rolling abandon rate.
	abandonWindow = 100
)

// BatchResult summarizes one predictive batch for feedback.
type BatchResult struct {
	Size      int
	Answered  int
	Abandoned int
}

// Controller computes the predictive dial ratio from rolling campaign
// statistics and adapts it in small bounded steps. One controller instance
// belongs to one campaign runner.
type Controller struct {
	targetUtilization float64
	abandonTarget     float64

	mu         sync.Mutex
	adjustment float64
	connects   []bool // ring of recent connects; true = abandoned
	connectPos int
	connectN   int
}

// NewController builds a controller with the given utilization and abandon
// rate targets.
func NewController(targetUtilization, abandonTarget float64) *Controller {
	if targetUtilization <= 0 || targetUtilization > 1 {
		targetUtilization = 0.85
	}
	if abandonTarget <= 0 || abandonTarget > 1 {
		abandonTarget = 0.03
	}
	return &Controller{
		targetUtilization: targetUtilization,
		abandonTarget:     abandonTarget,
		connects:          make([]bool, abandonWindow),
	}
}

// DialRatio returns the number of concurrent placements per agent. Below the
// minimum sample it stays conservative; otherwise it is the inverse of
// connect rate scaled by agent utilization, capped so the modeled abandon
// exposure stays bounded. A rolling abandon rate above target overrides the
// model and throttles back to a single line.
func (c *Controller) DialRatio(stats domain.Statistics) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ratio := coldStartRatio
	if stats.TotalDialed >= minSample {
		maxRatio := 1 / (c.abandonTarget * 10)
		connectRate := float64(stats.Connected) / float64(stats.TotalDialed)
		if connectRate <= 0 {
			ratio = maxRatio
		} else {
			ratio = 1 / (connectRate * c.targetUtilization)
			if ratio > maxRatio {
				ratio = maxRatio
			}
		}
	}

	ratio += c.adjustment
	if ratio < 1 {
		ratio = 1
	}
	if c.rollingAbandonRate() > c.abandonTarget {
		ratio = 1
	}
	return ratio
}

// Adjust feeds one batch's result back into the controller. More than one
// simultaneous answer means the pace was too aggressive; a batch of three or
// more with no answers means it was too conservative. Each correction is a
// single bounded step, never a jump.
func (c *Controller) Adjust(batch BatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < batch.Answered-batch.Abandoned; i++ {
		c.recordConnect(false)
	}
	for i := 0; i < batch.Abandoned; i++ {
		c.recordConnect(true)
	}

	switch {
	case batch.Answered > 1:
		c.adjustment -= adjustStep
	case batch.Answered == 0 && batch.Size > 2:
		c.adjustment += adjustStep
	}

	if c.adjustment > 1 {
		c.adjustment = 1
	}
	if c.adjustment < -1 {
		c.adjustment = -1
	}
}

// rollingAbandonRate is the abandoned fraction of recent connects. Caller
// holds the lock.
func (c *Controller) rollingAbandonRate() float64 {
	if c.connectN < minSample {
		return 0
	}
	abandoned := 0
	for i := 0; i < c.connectN; i++ {
		if c.connects[i] {
			abandoned++
		}
	}
	return float64(abandoned) / float64(c.connectN)
}

func (c *Controller) recordConnect(abandoned bool) {
	c.connects[c.connectPos] = abandoned
	c.connectPos = (c.connectPos + 1) % len(c.connects)
	if c.connectN < len(c.connects) {
		c.connectN++
	}
}
