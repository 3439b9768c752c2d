package entities

import (
	"fmt"
	"math"
	"time"
)

// Purity ratios used to derive the lower carats from the 24k quote
// when the upstream only supplies pure gold.
const (
	Purity22K = 0.916
	Purity18K = 0.75
)

type RateSnapshot struct {
	Locality      string    `json:"locality"`
	Gold24K       float64   `json:"gold24k"`
	Gold22K       float64   `json:"gold22k"`
	Gold18K       float64   `json:"gold18k"`
	SilverPerGram float64   `json:"silverPerGram"`
	SilverPerKg   float64   `json:"silverPerKg"`
	Gold10Gm      float64   `json:"gold10gm,omitempty"`
	Silver10Gm    float64   `json:"silver10gm,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
}

// NewRateSnapshot builds a snapshot from the raw per-gram quotes, deriving
// the 22k/18k approximations, the per-kg silver price and the per-10-gram
// convenience values.
func NewRateSnapshot(locality string, goldPerGram, silverPerGram float64, source string, now time.Time) (*RateSnapshot, error) {
	snapshot := &RateSnapshot{
		Locality:      locality,
		Gold24K:       goldPerGram,
		Gold22K:       goldPerGram * Purity22K,
		Gold18K:       goldPerGram * Purity18K,
		SilverPerGram: silverPerGram,
		SilverPerKg:   silverPerGram * 1000,
		Gold10Gm:      goldPerGram * 10,
		Silver10Gm:    silverPerGram * 10,
		Timestamp:     now.UTC(),
		Source:        source,
	}

	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// Validate rejects snapshots with negative or non-finite prices. An invalid
// snapshot must never be cached, persisted or returned as a success.
func (s *RateSnapshot) Validate() error {
	prices := map[string]float64{
		"gold24k":       s.Gold24K,
		"gold22k":       s.Gold22K,
		"gold18k":       s.Gold18K,
		"silverPerGram": s.SilverPerGram,
		"silverPerKg":   s.SilverPerKg,
		"gold10gm":      s.Gold10Gm,
		"silver10gm":    s.Silver10Gm,
	}

	for field, price := range prices {
		if math.IsNaN(price) || math.IsInf(price, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidSnapshot, field)
		}
		if price < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidSnapshot, field)
		}
	}

	return nil
}
