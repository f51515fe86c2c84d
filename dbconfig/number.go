package dbconfig

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Number is a numeric setting exactly as it was written in a config file.
// Values that are present but not numbers are retained so that the validator
// can report them instead of the decoder failing on the whole document.
type Number struct {
	raw     string
	value   float64
	numeric bool
	integer bool
}

// Int returns a Number holding an integer value
func Int(v int) *Number {
	return &Number{
		raw:     strconv.Itoa(v),
		value:   float64(v),
		numeric: true,
		integer: true,
	}
}

// Float returns a Number holding a floating point value
func Float(v float64) *Number {
	return &Number{
		raw:     strconv.FormatFloat(v, 'f', -1, 64),
		value:   v,
		numeric: true,
	}
}

// IsNumber reports whether the source value was numeric at all
func (n Number) IsNumber() bool {
	return n.numeric
}

// IsInteger reports whether the source value was an integer literal
func (n Number) IsInteger() bool {
	return n.numeric && n.integer
}

// Value returns the numeric value, zero when the source was not a number
func (n Number) Value() float64 {
	return n.value
}

// IntValue returns the value as an int and whether it was an integer literal
func (n Number) IntValue() (int, bool) {
	if !n.IsInteger() {
		return 0, false
	}

	return int(n.value), true
}

// String returns the value as it appeared in the source document
func (n Number) String() string {
	return n.raw
}

func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	*n = Number{raw: node.Value}

	if node.Kind != yaml.ScalarNode {
		return nil
	}

	switch node.ShortTag() {
	case "!!int":
		n.integer = true
	case "!!float":
	default:
		return nil
	}

	var f float64
	if err := node.Decode(&f); err != nil {
		// Keep the raw text, the validator reports it
		return nil //nolint:nilerr
	}

	n.value = f
	n.numeric = true

	return nil
}

func (n Number) MarshalYAML() (interface{}, error) {
	switch {
	case n.IsInteger():
		return int64(n.value), nil
	case n.numeric:
		return n.value, nil
	default:
		return n.raw, nil
	}
}

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	*n = Number{raw: s}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err == nil {
			n.raw = str
		}
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil //nolint:nilerr
	}

	n.value = f
	n.numeric = true
	n.integer = !strings.ContainsAny(s, ".eE")

	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	v, err := n.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}
