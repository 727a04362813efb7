package strategy

// Parameters is the immutable, validated input of one strategy run.
type Parameters struct {
	values map[string]any
}

// Float returns a number parameter, or 0 if unset.
func (p Parameters) Float(name string) float64 {
	f, _ := toFloat(p.values[name])
	return f
}

// Int returns an integer parameter, or 0 if unset.
func (p Parameters) Int(name string) int64 {
	f, _ := toFloat(p.values[name])
	return int64(f)
}

// String returns a string parameter, or "" if unset.
func (p Parameters) String(name string) string {
	s, _ := p.values[name].(string)
	return s
}

// Bool returns a boolean parameter, or false if unset.
func (p Parameters) Bool(name string) bool {
	b, _ := p.values[name].(bool)
	return b
}

// Strings returns a copy of an array parameter.
func (p Parameters) Strings(name string) []string {
	list, _ := toStrings(p.values[name])
	return list
}

// Has reports whether name carries a value (given or defaulted).
func (p Parameters) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Map returns a copy of all values.
func (p Parameters) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}
