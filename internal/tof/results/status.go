package results

import (
	"encoding/json"
	"fmt"
)

// StatusClass is the coarse classification of a vendor target status code.
type StatusClass uint8

const (
	// StatusOther covers the rarely seen codes 0..13 other than 5, 6 and 9.
	StatusOther StatusClass = iota
	// StatusValid is a 100% valid measurement (code 5).
	StatusValid
	// StatusHalfValid is a 50% valid measurement (codes 6 and 9).
	StatusHalfValid
	// StatusInvalid marks a zone without a usable target (code 255).
	StatusInvalid
)

func (c StatusClass) String() string {
	switch c {
	case StatusValid:
		return "valid"
	case StatusHalfValid:
		return "half-valid"
	case StatusInvalid:
		return "invalid"
	default:
		return "other"
	}
}

// TargetStatus is a classified target status. Code keeps the vendor value so
// callers can still act on the detailed meaning (UM2884 table 4).
type TargetStatus struct {
	Class StatusClass
	Code  uint8
}

// Usable reports whether the distance for this target can be trusted.
func (s TargetStatus) Usable() bool {
	return s.Class == StatusValid || s.Class == StatusHalfValid
}

func (s TargetStatus) String() string {
	return fmt.Sprintf("%s(%d)", s.Class, s.Code)
}

// ParseTargetStatus classifies a raw status byte. Codes 14..254 are not
// defined by the vendor and return an error.
func ParseTargetStatus(v uint8) (TargetStatus, error) {
	switch {
	case v == 5:
		return TargetStatus{Class: StatusValid, Code: v}, nil
	case v == 6 || v == 9:
		return TargetStatus{Class: StatusHalfValid, Code: v}, nil
	case v == 255:
		return TargetStatus{Class: StatusInvalid, Code: v}, nil
	case v <= 13:
		return TargetStatus{Class: StatusOther, Code: v}, nil
	}
	return TargetStatus{}, fmt.Errorf("unexpected target status %d", v)
}

// ClassifyStatus is ParseTargetStatus for decoded buffers: an undefined code
// means the transport lost sync, so it panics with a *ContractError.
func ClassifyStatus(v uint8) TargetStatus {
	s, err := ParseTargetStatus(v)
	if err != nil {
		panic(&ContractError{Field: "target_status", Value: int64(v), Reason: err.Error()})
	}
	return s
}

// MarshalJSON encodes the status as its vendor code.
func (s TargetStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Code)
}

// UnmarshalJSON accepts a vendor code and reclassifies it.
func (s *TargetStatus) UnmarshalJSON(b []byte) error {
	var code uint8
	if err := json.Unmarshal(b, &code); err != nil {
		return err
	}
	parsed, err := ParseTargetStatus(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
