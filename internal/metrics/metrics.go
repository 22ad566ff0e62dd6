package metrics

import (
	"github.com/pkg/errors"
)

// NotExtracted is the area of a result whose metrics were never produced.
const NotExtracted = -1

// Triplet holds a metric at its min, typical and max corners.
type Triplet struct {
	Min float64
	Typ float64
	Max float64
}

// Typical returns a triplet with all three corners set to v.
func Typical(v float64) Triplet {
	return Triplet{Min: v, Typ: v, Max: v}
}

// Result is the metrics record of one synthesized expression block. Delays
// are in seconds, powers in watts, area in square meters.
type Result struct {
	Delay        Triplet
	StaticPower  Triplet
	DynamicPower Triplet
	TotalPower   Triplet
	Area         float64
	// MapperRuntime and IORuntime are in microseconds.
	MapperRuntime int64
	IORuntime     int64
	MappedFile    string
	PreMapFile    string
	ID            string
}

// Missing returns a result that reports no extracted metrics.
func Missing() Result {
	return Result{Area: NotExtracted}
}

// Exists reports whether the metrics were extracted. A zero area with zero
// metrics is a valid trivial result.
func (r *Result) Exists() bool {
	return r.Area != NotExtracted
}

// Kind selects one scalar metric a backend can report.
type Kind int

const (
	Area Kind = iota
	DelayTyp
	PowerTyp
	DelayMax
	DelayMin
	PowerTypStatic
	PowerTypDynamic
	PowerMax
	PowerMaxStatic
	PowerMaxDynamic
)

var kindNames = [...]string{
	Area:            "area",
	DelayTyp:        "delay_typ",
	PowerTyp:        "power_typ",
	DelayMax:        "delay_max",
	DelayMin:        "delay_min",
	PowerTypStatic:  "power_typ_static",
	PowerTypDynamic: "power_typ_dynamic",
	PowerMax:        "power_max",
	PowerMaxStatic:  "power_max_static",
	PowerMaxDynamic: "power_max_dynamic",
}

// Kinds lists every metric kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, errors.Errorf("unknown metric %q", name)
}

// Set stores v as metric k. There is no minimum power corner: setting a
// typical power also sets its minimum.
func (r *Result) Set(k Kind, v float64) {
	switch k {
	case Area:
		r.Area = v
	case DelayTyp:
		r.Delay.Typ = v
	case DelayMin:
		r.Delay.Min = v
	case DelayMax:
		r.Delay.Max = v
	case PowerTyp:
		r.TotalPower.Typ, r.TotalPower.Min = v, v
	case PowerMax:
		r.TotalPower.Max = v
	case PowerTypStatic:
		r.StaticPower.Typ, r.StaticPower.Min = v, v
	case PowerMaxStatic:
		r.StaticPower.Max = v
	case PowerTypDynamic:
		r.DynamicPower.Typ, r.DynamicPower.Min = v, v
	case PowerMaxDynamic:
		r.DynamicPower.Max = v
	}
}

// Get returns metric k.
func (r *Result) Get(k Kind) float64 {
	switch k {
	case Area:
		return r.Area
	case DelayTyp:
		return r.Delay.Typ
	case DelayMin:
		return r.Delay.Min
	case DelayMax:
		return r.Delay.Max
	case PowerTyp:
		return r.TotalPower.Typ
	case PowerMax:
		return r.TotalPower.Max
	case PowerTypStatic:
		return r.StaticPower.Typ
	case PowerMaxStatic:
		return r.StaticPower.Max
	case PowerTypDynamic:
		return r.DynamicPower.Typ
	case PowerMaxDynamic:
		return r.DynamicPower.Max
	}
	return 0
}

// FillCorners copies the typical value into the min and max corners of
// every triplet that has neither, as backends with a single corner report
// only typical values.
func (r *Result) FillCorners() {
	for _, t := range []*Triplet{&r.Delay, &r.StaticPower, &r.DynamicPower, &r.TotalPower} {
		if t.Min == 0 && t.Max == 0 {
			*t = Typical(t.Typ)
		} else if t.Max == 0 {
			t.Max = t.Typ
		}
	}
}
