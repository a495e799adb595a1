package sqlite

import (
	"encoding/json"
	"fmt"

	"cryptoBiasBot/internal/domain"
)

// Nested state (TP grids, audit logs, per-module results) is stored as JSON
// text columns. SQLite has no native document type and none of this state is
// queried relationally.

func encodeCoinConfig(cfg *domain.CoinConfig) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCoinConfig(doc string) (*domain.CoinConfig, error) {
	cfg := &domain.CoinConfig{}
	if err := json.Unmarshal([]byte(doc), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storedModuleResult mirrors domain.ModuleResult with the meta payload held
// as raw JSON, decoded into the right concrete type per module on read.
type storedModuleResult struct {
	Module   domain.ModuleName `json:"module"`
	Symbol   string            `json:"symbol"`
	Signal   domain.Signal     `json:"signal"`
	Strength float64           `json:"strength"`
	Meta     json.RawMessage   `json:"meta,omitempty"`
}

func encodeModules(modules map[domain.ModuleName]*domain.ModuleResult) (string, error) {
	stored := make(map[domain.ModuleName]*storedModuleResult, len(modules))
	for name, res := range modules {
		if res == nil {
			stored[name] = nil // Unavailable module, kept for coverage accounting
			continue
		}
		var meta json.RawMessage
		if res.Meta != nil {
			b, err := json.Marshal(res.Meta)
			if err != nil {
				return "", fmt.Errorf("marshal meta for module %q: %w", name, err)
			}
			meta = b
		}
		stored[name] = &storedModuleResult{
			Module:   res.Module,
			Symbol:   res.Symbol,
			Signal:   res.Signal,
			Strength: res.Strength,
			Meta:     meta,
		}
	}
	b, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeModules(doc string) (map[domain.ModuleName]*domain.ModuleResult, error) {
	stored := make(map[domain.ModuleName]*storedModuleResult)
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		return nil, err
	}
	modules := make(map[domain.ModuleName]*domain.ModuleResult, len(stored))
	for name, sr := range stored {
		if sr == nil {
			modules[name] = nil
			continue
		}
		res := &domain.ModuleResult{
			Module:   sr.Module,
			Symbol:   sr.Symbol,
			Signal:   sr.Signal,
			Strength: sr.Strength,
		}
		if len(sr.Meta) > 0 {
			meta, err := decodeModuleMeta(name, sr.Meta)
			if err != nil {
				return nil, fmt.Errorf("unmarshal meta for module %q: %w", name, err)
			}
			res.Meta = meta
		}
		modules[name] = res
	}
	return modules, nil
}

// decodeModuleMeta picks the concrete meta type by module name.
func decodeModuleMeta(name domain.ModuleName, raw json.RawMessage) (domain.ModuleMeta, error) {
	switch name {
	case domain.ModuleTrend:
		return decodeMeta[domain.TrendMeta](raw)
	case domain.ModuleVolatility:
		return decodeMeta[domain.VolatilityMeta](raw)
	case domain.ModuleTrendRegime:
		return decodeMeta[domain.TrendRegimeMeta](raw)
	case domain.ModuleLiquidity:
		return decodeMeta[domain.LiquidityMeta](raw)
	case domain.ModuleLiquidations:
		return decodeMeta[domain.LiquidationsMeta](raw)
	case domain.ModuleOpenInterest:
		return decodeMeta[domain.OpenInterestMeta](raw)
	case domain.ModuleLongShort:
		return decodeMeta[domain.LongShortMeta](raw)
	case domain.ModuleHigherMA:
		return decodeMeta[domain.HigherMAMeta](raw)
	case domain.ModuleComposite:
		return decodeMeta[domain.CompositeMeta](raw)
	default:
		return nil, fmt.Errorf("unknown module %q", name)
	}
}

func decodeMeta[T domain.ModuleMeta](raw json.RawMessage) (domain.ModuleMeta, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// encodedPosition holds the JSON documents of a position's nested state.
type encodedPosition struct {
	takeProfits string
	initialTPs  string
	trailing    string
	adjustments string
	adds        string
	meta        string
}

func encodePositionState(pos *domain.Position) (*encodedPosition, error) {
	enc := &encodedPosition{}
	for _, f := range []struct {
		dst *string
		src interface{}
	}{
		{&enc.takeProfits, pos.TakeProfits},
		{&enc.initialTPs, pos.InitialTPs},
		{&enc.trailing, pos.Trailing},
		{&enc.adjustments, pos.Adjustments},
		{&enc.adds, pos.Adds},
		{&enc.meta, pos.Meta},
	} {
		b, err := json.Marshal(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = string(b)
	}
	return enc, nil
}

func decodePositionState(pos *domain.Position, takeProfits, initialTPs, trailing, adjustments, adds, meta string) error {
	for _, f := range []struct {
		doc string
		dst interface{}
	}{
		{takeProfits, &pos.TakeProfits},
		{initialTPs, &pos.InitialTPs},
		{trailing, &pos.Trailing},
		{adjustments, &pos.Adjustments},
		{adds, &pos.Adds},
		{meta, &pos.Meta},
	} {
		if f.doc == "" || f.doc == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(f.doc), f.dst); err != nil {
			return err
		}
	}
	return nil
}
