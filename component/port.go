package component

import (
	"encoding/json"
	"fmt"

	"github.com/c360/mediaconnector/errors"
)

// Direction of a port relative to its component
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port is one connection point a component exposes. Config says what the
// port is attached to.
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable is the attachment behind a port
type Portable interface {
	ResourceID() string // conflict detection key
	IsExclusive() bool  // single peer only
	Type() string
}

// decoders rebuild a Portable from its "data" payload, keyed by Type()
var decoders = map[string]func(json.RawMessage) (Portable, error){
	"tap":  decodePortable[TapPort],
	"nats": decodePortable[NATSPort],
}

func decodePortable[T Portable](data json.RawMessage) (Portable, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type typedConfig struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// portJSON is Port without its methods, so encoding it does not recurse
type portJSON Port

// MarshalJSON encodes Config as {"type": ..., "data": ...}
func (p Port) MarshalJSON() ([]byte, error) {
	out := struct {
		portJSON
		Config *typedConfig `json:"config"`
	}{portJSON: portJSON(p)}

	if p.Config != nil {
		data, err := json.Marshal(p.Config)
		if err != nil {
			return nil, errors.Wrap(err, "Port", "MarshalJSON", fmt.Sprintf("encode %s config", p.Config.Type()))
		}
		out.Config = &typedConfig{Type: p.Config.Type(), Data: data}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores Config from its type tag. An unknown tag is invalid.
func (p *Port) UnmarshalJSON(b []byte) error {
	in := struct {
		*portJSON
		Config *typedConfig `json:"config"`
	}{portJSON: (*portJSON)(p)}

	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	p.Config = nil
	if in.Config == nil {
		return nil
	}

	decode, ok := decoders[in.Config.Type]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("unknown config type: %s", in.Config.Type),
			"Port", "UnmarshalJSON", "config type lookup")
	}
	cfg, err := decode(in.Config.Data)
	if err != nil {
		return errors.Wrap(err, "Port", "UnmarshalJSON", fmt.Sprintf("decode %s config", in.Config.Type))
	}
	p.Config = cfg
	return nil
}

// TapPort is a tap of a connector. State is set on source taps only; Caps
// holds the declared or last observed format; Target names the bound
// converter connection.
type TapPort struct {
	Connector string `json:"connector"`
	Tap       string `json:"tap"`
	State     string `json:"state,omitempty"`
	Caps      string `json:"caps,omitempty"`
	Target    string `json:"target,omitempty"`
}

func (t TapPort) ResourceID() string { return "tap:" + t.Connector + "/" + t.Tap }

// IsExclusive is true: a tap links to one peer
func (t TapPort) IsExclusive() bool { return true }

func (t TapPort) Type() string { return "tap" }

// NATSPort is the subject tap events are published on
type NATSPort struct {
	Subject string `json:"subject"`
}

func (n NATSPort) ResourceID() string { return "nats:" + n.Subject }

// IsExclusive is false: any number of subscribers may listen
func (n NATSPort) IsExclusive() bool { return false }

func (n NATSPort) Type() string { return "nats" }
