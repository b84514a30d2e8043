package bridge

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/tofgrid/internal/tof/flock"
)

// Kind is the type of a line received from the bridge firmware.
type Kind int

const (
	KindUnknown Kind = iota
	KindOK           // OK <verb> <idx>
	KindErr          // ERR <verb> <idx> <message...>
	KindInt          // INT <0|1>
	KindResult       // R <idx> <base64>
)

// Message is one parsed line from the bridge.
type Message struct {
	Kind    Kind
	Verb    string
	Sensor  int
	Text    string
	Low     bool
	Payload []byte
}

const (
	verbStart = "START"
	verbStop  = "STOP"
)

// ParseLine parses one line. Lines the host does not understand (banners,
// comments) return KindUnknown without error; malformed known lines return
// an error.
func ParseLine(line string) (Message, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return Message{}, nil
	}
	switch f[0] {
	case "OK", "ERR":
		if len(f) < 3 {
			return Message{}, fmt.Errorf("short %s line %q", f[0], line)
		}
		idx, err := sensorIndex(f[2])
		if err != nil {
			return Message{}, err
		}
		m := Message{Kind: KindOK, Verb: f[1], Sensor: idx}
		if f[0] == "ERR" {
			m.Kind = KindErr
			m.Text = strings.Join(f[3:], " ")
		}
		return m, nil
	case "INT":
		if len(f) != 2 || (f[1] != "0" && f[1] != "1") {
			return Message{}, fmt.Errorf("bad INT line %q", line)
		}
		return Message{Kind: KindInt, Low: f[1] == "0"}, nil
	case "R":
		if len(f) != 3 {
			return Message{}, fmt.Errorf("bad result line (%d fields)", len(f))
		}
		idx, err := sensorIndex(f[1])
		if err != nil {
			return Message{}, err
		}
		payload, err := base64.StdEncoding.DecodeString(f[2])
		if err != nil {
			return Message{}, fmt.Errorf("sensor #%d result payload: %w", idx, err)
		}
		return Message{Kind: KindResult, Sensor: idx, Payload: payload}, nil
	}
	return Message{Kind: KindUnknown, Text: line}, nil
}

func sensorIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("bad sensor index %q", s)
	}
	return idx, nil
}

// FormatStart builds the START command for sensor idx:
//
//	START <idx> <dim> <targets> <hz> <mode> <order> <fields> <integration_ms>
//
// fields is the result field mask in hex.
func FormatStart(idx int, cfg flock.RangingConfig) string {
	return fmt.Sprintf("%s %d %d %d %d %s %s %04x %d",
		verbStart, idx, cfg.Layout.Dim, cfg.Layout.Targets, cfg.FrequencyHz,
		cfg.Mode, cfg.TargetOrder, uint16(cfg.Layout.Fields), cfg.IntegrationTime.Milliseconds())
}

func FormatStop(idx int) string {
	return fmt.Sprintf("%s %d", verbStop, idx)
}

// FormatResult builds the line the firmware sends for one raw buffer.
func FormatResult(idx int, payload []byte) string {
	return fmt.Sprintf("R %d %s", idx, base64.StdEncoding.EncodeToString(payload))
}
