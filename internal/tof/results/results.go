package results

import "fmt"

// Temperature is the sensor silicon temperature in °C. It is sensor-wide
// metadata and travels beside the matrices rather than inside them.
type Temperature int8

func (t Temperature) String() string { return fmt.Sprintf("%d°C", int8(t)) }

// Matrix is a DIM×DIM zone grid, indexed [row][col].
type Matrix[T any] [][]T

// TargetMatrix holds one Matrix per ranked target, indexed [target][row][col].
type TargetMatrix[T any] []Matrix[T]

func newMatrix[T any](dim int) Matrix[T] {
	cells := make([]T, dim*dim)
	m := make(Matrix[T], dim)
	for r := range m {
		m[r] = cells[r*dim : (r+1)*dim : (r+1)*dim]
	}
	return m
}

// ResultsData is one ranging cycle of one sensor. Fields that the layout did
// not enable are nil. A snapshot is never modified after Decode returns it.
type ResultsData struct {
	Dim     int `json:"dim"`
	Targets int `json:"targets"`

	AmbientPerSPAD  Matrix[uint32] `json:"ambient_per_spad,omitempty"`
	SPADsEnabled    Matrix[uint32] `json:"spads_enabled,omitempty"`
	TargetsDetected Matrix[uint8]  `json:"targets_detected,omitempty"`

	TargetStatus  TargetMatrix[TargetStatus] `json:"target_status,omitempty"`
	DistanceMM    TargetMatrix[uint16]       `json:"distance_mm,omitempty"`
	RangeSigmaMM  TargetMatrix[uint16]       `json:"range_sigma_mm,omitempty"`
	Reflectance   TargetMatrix[uint8]        `json:"reflectance,omitempty"`
	SignalPerSPAD TargetMatrix[uint32]       `json:"signal_per_spad,omitempty"`
}

// ContractError describes a value the vendor engine can never legitimately
// produce. It is the panic value of Decode and ClassifyStatus.
type ContractError struct {
	Field  string
	Index  int
	Value  int64
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("results contract violated: %s[%d]=%d: %s", e.Field, e.Index, e.Value, e.Reason)
}

// Decode converts a raw buffer into matrices. Only the prefix of each buffer
// that the layout addresses is read.
//
// Decode panics with a *ContractError when the layout is invalid, a buffer is
// shorter than the layout requires, a distance is negative, or a status code
// is undefined.
func Decode(raw *Raw, l Layout) (*ResultsData, Temperature) {
	if err := l.Validate(); err != nil {
		panic(&ContractError{Field: "layout", Index: -1, Reason: err.Error()})
	}
	rd := &ResultsData{Dim: l.Dim, Targets: l.Targets}

	if l.Fields.Has(FieldAmbientPerSPAD) {
		rd.AmbientPerSPAD = zoneMatrix(raw.AmbientPerSPAD, l, "ambient_per_spad")
	}
	if l.Fields.Has(FieldSPADsEnabled) {
		rd.SPADsEnabled = zoneMatrix(raw.SPADsEnabled, l, "nb_spads_enabled")
	}
	if l.Fields.Has(FieldTargetsDetected) {
		rd.TargetsDetected = zoneMatrix(raw.TargetsDetected, l, "nb_target_detected")
	}

	if l.Fields.Has(FieldTargetStatus) {
		rd.TargetStatus = targetMatrix(raw.TargetStatus, l, "target_status", classify)
	}
	// Distance 0 is normal for empty target slots (status 0); only the sign
	// is checked.
	if l.Fields.Has(FieldDistance) {
		rd.DistanceMM = targetMatrix(raw.DistanceMM, l, "distance_mm", nonNegative)
	}
	if l.Fields.Has(FieldRangeSigma) {
		rd.RangeSigmaMM = targetMatrix(raw.RangeSigmaMM, l, "range_sigma_mm", identity[uint16])
	}
	if l.Fields.Has(FieldReflectance) {
		rd.Reflectance = targetMatrix(raw.Reflectance, l, "reflectance", identity[uint8])
	}
	if l.Fields.Has(FieldSignalPerSPAD) {
		rd.SignalPerSPAD = targetMatrix(raw.SignalPerSPAD, l, "signal_per_spad", identity[uint32])
	}

	return rd, Temperature(raw.SiliconTempC)
}

func identity[T any](v T) (T, *ContractError) { return v, nil }

func nonNegative(v int16) (uint16, *ContractError) {
	if v < 0 {
		return 0, &ContractError{Value: int64(v), Reason: "negative distance"}
	}
	return uint16(v), nil
}

func classify(v uint8) (TargetStatus, *ContractError) {
	s, err := ParseTargetStatus(v)
	if err != nil {
		return s, &ContractError{Value: int64(v), Reason: err.Error()}
	}
	return s, nil
}

// prefix returns the first n elements of raw, panicking if it is shorter.
func prefix[T any](raw []T, n int, field string) []T {
	if len(raw) < n {
		panic(&ContractError{
			Field:  field,
			Index:  len(raw),
			Value:  int64(n),
			Reason: fmt.Sprintf("buffer holds %d elements, layout addresses %d", len(raw), n),
		})
	}
	return raw[:n]
}

// zoneMatrix maps zone metadata; TARGETS does not apply.
func zoneMatrix[T any](raw []T, l Layout, field string) Matrix[T] {
	raw = prefix(raw, l.Zones(), field)
	m := newMatrix[T](l.Dim)
	for r := 0; r < l.Dim; r++ {
		for c := 0; c < l.Dim; c++ {
			m[r][c] = raw[r*l.Dim+c]
		}
	}
	return m
}

// targetMatrix maps per-target data: each zone carries l.Targets
// consecutive slots. A *ContractError returned by f gets the field and buffer
// index filled in before it is raised.
func targetMatrix[IN, OUT any](raw []IN, l Layout, field string, f func(IN) (OUT, *ContractError)) TargetMatrix[OUT] {
	raw = prefix(raw, l.Zones()*l.Targets, field)
	out := make(TargetMatrix[OUT], l.Targets)
	for t := range out {
		m := newMatrix[OUT](l.Dim)
		for r := 0; r < l.Dim; r++ {
			for c := 0; c < l.Dim; c++ {
				i := (r*l.Dim+c)*l.Targets + t
				v, cerr := f(raw[i])
				if cerr != nil {
					cerr.Field, cerr.Index = field, i
					panic(cerr)
				}
				m[r][c] = v
			}
		}
		out[t] = m
	}
	return out
}
