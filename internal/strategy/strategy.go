package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// Signal is a strategy's verdict on the latest close
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Strategy is the capability set every trading strategy exposes. Concrete
// strategies are selected by tag at the persistence boundary and
// reconstructed with FromSpec.
type Strategy interface {
	Name() string
	Parameters() map[string]float64
	UpdateParameter(name string, value float64) error
	Evaluate(closes []float64) Signal
}

// FromSpec reconstructs a strategy from its persisted tag and parameters.
// Unknown parameters in params are rejected rather than ignored.
func FromSpec(tag string, params map[string]float64) (Strategy, error) {
	var s Strategy
	switch tag {
	case "sma_cross":
		s = NewSMACross()
	case "rsi_reversion":
		s = NewRSIReversion()
	default:
		return nil, fmt.Errorf("unknown strategy tag %q", tag)
	}

	for name, value := range params {
		if err := s.UpdateParameter(name, value); err != nil {
			return nil, fmt.Errorf("strategy %q: %w", tag, err)
		}
	}
	return s, nil
}

// SMACross signals on fast/slow moving average crossovers
type SMACross struct {
	fastPeriod int
	slowPeriod int
}

// NewSMACross creates an SMA crossover strategy with default 20/60 periods
func NewSMACross() *SMACross {
	return &SMACross{fastPeriod: 20, slowPeriod: 60}
}

func (s *SMACross) Name() string {
	return "sma_cross"
}

func (s *SMACross) Parameters() map[string]float64 {
	return map[string]float64{
		"fastPeriod": float64(s.fastPeriod),
		"slowPeriod": float64(s.slowPeriod),
	}
}

func (s *SMACross) UpdateParameter(name string, value float64) error {
	if value < 1 {
		return fmt.Errorf("parameter %q must be at least 1", name)
	}
	switch name {
	case "fastPeriod":
		s.fastPeriod = int(value)
	case "slowPeriod":
		s.slowPeriod = int(value)
	default:
		return fmt.Errorf("unknown parameter %q", name)
	}
	return nil
}

func (s *SMACross) Evaluate(closes []float64) Signal {
	if len(closes) < s.slowPeriod+1 {
		return SignalHold
	}

	fast := talib.Sma(closes, s.fastPeriod)
	slow := talib.Sma(closes, s.slowPeriod)
	last := len(closes) - 1

	crossedUp := fast[last-1] <= slow[last-1] && fast[last] > slow[last]
	crossedDown := fast[last-1] >= slow[last-1] && fast[last] < slow[last]
	switch {
	case crossedUp:
		return SignalBuy
	case crossedDown:
		return SignalSell
	default:
		return SignalHold
	}
}

// RSIReversion signals when RSI leaves oversold or overbought territory
type RSIReversion struct {
	period     int
	oversold   float64
	overbought float64
}

// NewRSIReversion creates an RSI mean-reversion strategy with the usual
// 14/30/70 levels
func NewRSIReversion() *RSIReversion {
	return &RSIReversion{period: 14, oversold: 30, overbought: 70}
}

func (s *RSIReversion) Name() string {
	return "rsi_reversion"
}

func (s *RSIReversion) Parameters() map[string]float64 {
	return map[string]float64{
		"period":     float64(s.period),
		"oversold":   s.oversold,
		"overbought": s.overbought,
	}
}

func (s *RSIReversion) UpdateParameter(name string, value float64) error {
	switch name {
	case "period":
		if value < 2 {
			return fmt.Errorf("parameter %q must be at least 2", name)
		}
		s.period = int(value)
	case "oversold":
		s.oversold = value
	case "overbought":
		s.overbought = value
	default:
		return fmt.Errorf("unknown parameter %q", name)
	}
	return nil
}

func (s *RSIReversion) Evaluate(closes []float64) Signal {
	if len(closes) < s.period+1 {
		return SignalHold
	}

	rsi := talib.Rsi(closes, s.period)
	last := rsi[len(rsi)-1]
	switch {
	case last <= s.oversold:
		return SignalBuy
	case last >= s.overbought:
		return SignalSell
	default:
		return SignalHold
	}
}
