package stage

import (
	"fmt"

	"github.com/zclconf/go-cty/cty/gocty"
)

// Int extracts a required integer parameter.
func (p Params) Int(name string) (int, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("missing required parameter %q", name)
	}
	var out int
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return 0, fmt.Errorf("parameter %q: %w", name, err)
	}
	return out, nil
}

// IntDefault extracts an integer parameter, falling back to def when absent.
func (p Params) IntDefault(name string, def int) (int, error) {
	if _, ok := p[name]; !ok {
		return def, nil
	}
	return p.Int(name)
}

// Float extracts a required float parameter.
func (p Params) Float(name string) (float64, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("missing required parameter %q", name)
	}
	var out float64
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return 0, fmt.Errorf("parameter %q: %w", name, err)
	}
	return out, nil
}

// FloatDefault extracts a float parameter, falling back to def when absent.
func (p Params) FloatDefault(name string, def float64) (float64, error) {
	if _, ok := p[name]; !ok {
		return def, nil
	}
	return p.Float(name)
}

// Text extracts a required string parameter.
func (p Params) Text(name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", name)
	}
	var out string
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return "", fmt.Errorf("parameter %q: %w", name, err)
	}
	return out, nil
}
