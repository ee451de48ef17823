package browser

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Inter-key delay model, in milliseconds.
const (
	keyDelayMean   = 70.0
	keyDelayStdDev = 28.0
	keyDelayMin    = 35.0
)

// commonNgrams are typed faster than isolated keys.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// typist sends text one key at a time with a human rhythm.
type typist struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newTypist(seed int64) *typist {
	return &typist{rng: rand.New(rand.NewSource(seed))}
}

// keyDelay is the pause before runes[i] for a standard normal sample norm.
// Common digrams and trigrams shorten it.
func keyDelay(runes []rune, i int, norm float64) time.Duration {
	factor := 1.0
	if i >= 2 && commonNgrams[strings.ToLower(string(runes[i-2:i+1]))] {
		factor = 0.55
	} else if i >= 1 && commonNgrams[strings.ToLower(string(runes[i-1:i+1]))] {
		factor = 0.7
	}
	ms := math.Max(keyDelayMin*factor, norm*keyDelayStdDev+keyDelayMean*factor)
	return time.Duration(math.Round(ms*1000)) * time.Microsecond
}

func (t *typist) sample() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.NormFloat64()
}

// typeText returns an action typing text into the focused element.
func (t *typist) typeText(text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		runes := []rune(text)
		for i, r := range runes {
			timer := time.NewTimer(keyDelay(runes, i, t.sample()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			if err := chromedp.KeyEvent(string(r)).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
