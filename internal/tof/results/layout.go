package results

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// MaxZones is the zone capacity of every vendor buffer. Buffers are sized
// for the 8×8 mode; 4×4 results occupy the first 16 entries.
const MaxZones = 64

// Fields selects which result fields the sensor engine transfers.
type Fields uint16

const (
	FieldAmbientPerSPAD Fields = 1 << iota
	FieldSPADsEnabled
	FieldTargetsDetected
	FieldTargetStatus
	FieldDistance
	FieldRangeSigma
	FieldReflectance
	FieldSignalPerSPAD

	// FieldsAll is every field the decoder understands. The motion
	// indicator is never transferred.
	FieldsAll = FieldAmbientPerSPAD | FieldSPADsEnabled | FieldTargetsDetected |
		FieldTargetStatus | FieldDistance | FieldRangeSigma | FieldReflectance | FieldSignalPerSPAD

	// FieldsDefault is what the daemon enables unless configured otherwise.
	FieldsDefault = FieldTargetsDetected | FieldTargetStatus | FieldDistance | FieldRangeSigma
)

var fieldNames = []struct {
	f    Fields
	name string
}{
	{FieldAmbientPerSPAD, "ambient_per_spad"},
	{FieldSPADsEnabled, "nb_spads_enabled"},
	{FieldTargetsDetected, "nb_targets_detected"},
	{FieldTargetStatus, "target_status"},
	{FieldDistance, "distance_mm"},
	{FieldRangeSigma, "range_sigma_mm"},
	{FieldReflectance, "reflectance_percent"},
	{FieldSignalPerSPAD, "signal_per_spad"},
}

// Has reports whether all bits of f are selected.
func (fs Fields) Has(f Fields) bool { return fs&f == f }

func (fs Fields) String() string {
	var names []string
	for _, fn := range fieldNames {
		if fs.Has(fn.f) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseFields maps configuration names (as used by the vendor feature
// flags) onto a Fields set.
func ParseFields(names []string) (Fields, error) {
	var fs Fields
	for _, n := range names {
		n = strings.TrimSpace(strings.ToLower(n))
		found := false
		for _, fn := range fieldNames {
			if fn.name == n {
				fs |= fn.f
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown result field %q", n)
		}
	}
	return fs, nil
}

// Layout is the shape of one sensor's results: grid resolution, targets per
// zone and the transferred fields. It is resolved once at startup and shared
// by the transport reader and the decoder.
type Layout struct {
	Dim     int
	Targets int
	Fields  Fields
}

// Validate checks the layout against what the sensor can produce.
func (l Layout) Validate() error {
	if l.Dim != 4 && l.Dim != 8 {
		return fmt.Errorf("resolution %d: must be 4 or 8", l.Dim)
	}
	if l.Targets < 1 || l.Targets > 4 {
		return fmt.Errorf("targets per zone %d: must be 1..4", l.Targets)
	}
	if l.Fields&^FieldsAll != 0 {
		return fmt.Errorf("unknown field bits %#x", uint16(l.Fields&^FieldsAll))
	}
	return nil
}

// Warnings lists field combinations that are legal but unlikely to be
// intended.
func (l Layout) Warnings() []string {
	var w []string
	if l.Fields.Has(FieldRangeSigma) && !l.Fields.Has(FieldDistance) {
		w = append(w, "range_sigma_mm does not make sense without distance_mm")
	}
	return w
}

// Zones is DIM×DIM.
func (l Layout) Zones() int { return l.Dim * l.Dim }

// Raw mirrors the vendor results struct. Every enabled field is sized to
// MaxZones (zone metadata) or MaxZones×Targets (per-target data); disabled
// fields are nil.
type Raw struct {
	SiliconTempC    int8
	AmbientPerSPAD  []uint32
	TargetsDetected []uint8
	SPADsEnabled    []uint32
	SignalPerSPAD   []uint32
	RangeSigmaMM    []uint16
	DistanceMM      []int16
	Reflectance     []uint8
	TargetStatus    []uint8
}

// NewRaw allocates a zeroed raw buffer with the fields of l.
func (l Layout) NewRaw() *Raw {
	per := MaxZones * l.Targets
	r := &Raw{}
	if l.Fields.Has(FieldAmbientPerSPAD) {
		r.AmbientPerSPAD = make([]uint32, MaxZones)
	}
	if l.Fields.Has(FieldTargetsDetected) {
		r.TargetsDetected = make([]uint8, MaxZones)
	}
	if l.Fields.Has(FieldSPADsEnabled) {
		r.SPADsEnabled = make([]uint32, MaxZones)
	}
	if l.Fields.Has(FieldSignalPerSPAD) {
		r.SignalPerSPAD = make([]uint32, per)
	}
	if l.Fields.Has(FieldRangeSigma) {
		r.RangeSigmaMM = make([]uint16, per)
	}
	if l.Fields.Has(FieldDistance) {
		r.DistanceMM = make([]int16, per)
	}
	if l.Fields.Has(FieldReflectance) {
		r.Reflectance = make([]uint8, per)
	}
	if l.Fields.Has(FieldTargetStatus) {
		r.TargetStatus = make([]uint8, per)
	}
	return r
}

// wireFields returns the enabled fields of r in vendor struct order.
func wireFields(r *Raw) []any {
	out := []any{&r.SiliconTempC}
	for _, f := range []any{
		r.AmbientPerSPAD, r.TargetsDetected, r.SPADsEnabled, r.SignalPerSPAD,
		r.RangeSigmaMM, r.DistanceMM, r.Reflectance, r.TargetStatus,
	} {
		switch v := f.(type) {
		case []uint32:
			if v != nil {
				out = append(out, v)
			}
		case []uint16:
			if v != nil {
				out = append(out, v)
			}
		case []int16:
			if v != nil {
				out = append(out, v)
			}
		case []uint8:
			if v != nil {
				out = append(out, v)
			}
		}
	}
	return out
}

// RawSize is the number of bytes MarshalRaw produces for l.
func (l Layout) RawSize() int {
	per := MaxZones * l.Targets
	n := 1
	if l.Fields.Has(FieldAmbientPerSPAD) {
		n += 4 * MaxZones
	}
	if l.Fields.Has(FieldTargetsDetected) {
		n += MaxZones
	}
	if l.Fields.Has(FieldSPADsEnabled) {
		n += 4 * MaxZones
	}
	if l.Fields.Has(FieldSignalPerSPAD) {
		n += 4 * per
	}
	if l.Fields.Has(FieldRangeSigma) {
		n += 2 * per
	}
	if l.Fields.Has(FieldDistance) {
		n += 2 * per
	}
	if l.Fields.Has(FieldReflectance) {
		n += per
	}
	if l.Fields.Has(FieldTargetStatus) {
		n += per
	}
	return n
}

// ErrRawSize is returned when a payload does not match the layout.
var ErrRawSize = errors.New("raw results size mismatch")

// MarshalRaw flattens r in vendor struct order, little-endian. r must have
// been allocated for l.
func (l Layout) MarshalRaw(r *Raw) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(l.RawSize())
	for _, f := range wireFields(r) {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("encode raw results: %w", err)
		}
	}
	if buf.Len() != l.RawSize() {
		return nil, fmt.Errorf("%w: encoded %d bytes, layout needs %d", ErrRawSize, buf.Len(), l.RawSize())
	}
	return buf.Bytes(), nil
}

// UnmarshalRaw reads a payload produced by the sensor engine. A size
// mismatch is a transport error, not a contract violation: the payload never
// reached the decoder.
func (l Layout) UnmarshalRaw(b []byte) (*Raw, error) {
	if len(b) != l.RawSize() {
		return nil, fmt.Errorf("%w: got %d bytes, layout %s needs %d", ErrRawSize, len(b), l, l.RawSize())
	}
	r := l.NewRaw()
	rd := bytes.NewReader(b)
	for _, f := range wireFields(r) {
		if err := binary.Read(rd, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("decode raw results: %w", err)
		}
	}
	return r, nil
}

func (l Layout) String() string {
	return fmt.Sprintf("%dx%dx%d[%s]", l.Dim, l.Dim, l.Targets, l.Fields)
}
