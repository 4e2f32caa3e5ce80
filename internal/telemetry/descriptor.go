package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Attr is one descriptor attribute. Station descriptors are written from the
// station CSV so values are usually strings, but numbers are accepted too.
type Attr struct {
	raw     string
	present bool
	null    bool
}

// UnmarshalJSON accepts a string, a number, a boolean or null.
func (a *Attr) UnmarshalJSON(data []byte) error {
	a.present = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.null = true
		a.raw = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.raw)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		a.raw = n.String()
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("unsupported attribute value %s", data)
	}
	a.raw = strconv.FormatBool(b)
	return nil
}

// MarshalJSON writes the attribute back as a string, or null.
func (a Attr) MarshalJSON() ([]byte, error) {
	if !a.present || a.null {
		return []byte("null"), nil
	}
	return json.Marshal(a.raw)
}

// String returns the raw text, empty when absent or null.
func (a Attr) String() string { return a.raw }

// Set reports whether the key was present with a non-null value.
func (a Attr) Set() bool { return a.present && !a.null }

// Float parses the attribute; anything unparseable is NaN.
func (a Attr) Float() float64 {
	if !a.Set() {
		return math.NaN()
	}
	return parseFloat(a.raw)
}

// StringAttr builds a present string attribute.
func StringAttr(s string) Attr { return Attr{raw: s, present: true} }

// Descriptor is the per-station reference record stored at
// rloi/{region}/{reference}/station.json.
type Descriptor struct {
	RloiID      Attr `json:"RLOI_ID"`
	TelemetryID Attr `json:"Telemetry_ID"`
	Region      Attr `json:"Region"`
	PostProcess Attr `json:"Post_Process"`
	Subtract    Attr `json:"Subtract"`
	PORMaxValue Attr `json:"POR_Max_Value"`
	StationType Attr `json:"Station_Type"`
	Percentile5 Attr `json:"percentile_5"`
}

// ParseDescriptor decodes a descriptor document.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("malformed station descriptor: %w", err)
	}
	return d, nil
}

// Reference is either a Found descriptor or one Synthesized for a station
// that has no descriptor.
type Reference struct {
	desc        Descriptor
	region      string
	synthesized bool
}

// Found wraps a descriptor read from the store.
func Found(d Descriptor) Reference { return Reference{desc: d} }

// Synthesized is the stand-in for a station without a descriptor: it keeps
// the normalized region, disables post-processing and marks the station raw.
func Synthesized(region string) Reference {
	return Reference{region: region, synthesized: true}
}

// IsSynthesized reports whether no descriptor was found.
func (r Reference) IsSynthesized() bool { return r.synthesized }

// RloiID is -1 for synthesized references and nil when the descriptor id is
// missing or not an integer.
func (r Reference) RloiID() *int64 {
	if r.synthesized {
		id := int64(-1)
		return &id
	}
	if !r.desc.RloiID.Set() {
		return nil
	}
	return parseLeadingInt(r.desc.RloiID.String())
}

// Region is the descriptor region, or the normalized feed region.
func (r Reference) Region() string {
	if r.synthesized {
		return r.region
	}
	return r.desc.Region.String()
}

// PostProcess reports whether Post_Process is "y" or "yes" in any case.
func (r Reference) PostProcess() bool {
	if r.synthesized {
		return false
	}
	switch strings.ToLower(r.desc.PostProcess.String()) {
	case "y", "yes":
		return true
	}
	return false
}

// HasOffset reports whether a Subtract value is configured. An empty or
// invalid value still counts and yields a NaN offset.
func (r Reference) HasOffset() bool {
	return !r.synthesized && r.desc.Subtract.Set()
}

// Subtract is the post-processing offset, NaN when absent or invalid.
func (r Reference) Subtract() float64 {
	if r.synthesized {
		return math.NaN()
	}
	return r.desc.Subtract.Float()
}

func (r Reference) PORMax() float64 {
	if r.synthesized {
		return math.NaN()
	}
	return r.desc.PORMaxValue.Float()
}

func (r Reference) Percentile5() float64 {
	if r.synthesized {
		return math.NaN()
	}
	return r.desc.Percentile5.Float()
}

// StationType is "R" for synthesized references.
func (r Reference) StationType() string {
	if r.synthesized {
		return "R"
	}
	return r.desc.StationType.String()
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// parseLeadingInt reads an optional sign followed by decimal digits and
// ignores anything after them, so "5075.0" is 5075.
func parseLeadingInt(s string) *int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return nil
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
