// Package decoder turns raw pub/sub payloads into typed blotter events.
//
// A payload is a JSON envelope {"type": "...", "data": {...}}. Some producers
// publish the envelope already serialized as a JSON string, so one extra
// layer of string encoding is unwrapped. The channel/type pairing works as a
// routing filter: anything not routed yields model.ErrRoutingMiss, which
// callers drop silently. The decoder is pure and does no logging.
package decoder

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"portfolio-blotter/internal/model"
)

var (
	errMalformed = errors.New("malformed JSON")
	errTooDeep   = errors.New("payload is encoded more than twice")
	errNotObject = errors.New("data is not an object")
)

// Decoded is a routed event together with the topic it arrived on.
type Decoded struct {
	Topic model.Topic
	Kind  model.Kind
	Event model.Event
}

// Decoder routes payloads by channel name.
type Decoder struct {
	topics   map[string]model.Topic
	channels []string
}

// New creates a Decoder for the given topic → channel mapping.
func New(channels map[model.Topic]string) *Decoder {
	d := &Decoder{topics: make(map[string]model.Topic, len(channels))}
	for _, topic := range model.Topics {
		ch, ok := channels[topic]
		if !ok || ch == "" {
			continue
		}
		d.topics[ch] = topic
		d.channels = append(d.channels, ch)
	}
	return d
}

// Channels returns the channel names to subscribe to, in topic order.
func (d *Decoder) Channels() []string {
	out := make([]string, len(d.channels))
	copy(out, d.channels)
	return out
}

// Decode parses payload received on channel. It returns *model.DecodeError
// for unparseable input and model.ErrRoutingMiss for input that is valid
// but not routed to any event.
func (d *Decoder) Decode(channel string, payload []byte) (Decoded, error) {
	topic, ok := d.topics[channel]
	if !ok {
		return Decoded{}, model.ErrRoutingMiss
	}

	doc, layer, err := unwrap(payload)
	if err != nil {
		return Decoded{}, &model.DecodeError{Channel: channel, Layer: layer, Err: err}
	}
	if doc[0] != '{' {
		return Decoded{}, model.ErrRoutingMiss
	}

	var env envelope
	if err := json.Unmarshal(doc, &env); err != nil {
		return Decoded{}, &model.DecodeError{Channel: channel, Layer: layer, Err: err}
	}
	typ := env.typeName()

	var ev model.Event
	switch topic {
	case model.TopicPositions:
		if typ != string(model.KindPosition) {
			return Decoded{}, model.ErrRoutingMiss
		}
		ev, err = decodeData[model.PositionUpdate](env.Data)
	case model.TopicExecutions:
		if typ != string(model.KindExecution) {
			return Decoded{}, model.ErrRoutingMiss
		}
		ev, err = decodeData[model.Execution](env.Data)
	case model.TopicMarketData:
		if typ != string(model.KindQuote) {
			return Decoded{}, model.ErrRoutingMiss
		}
		ev, err = decodeData[model.MarketQuote](env.Data)
	case model.TopicOrders:
		// Any type is accepted on the orders topic as long as data is a
		// non-empty object.
		if !nonEmptyObject(env.Data) {
			return Decoded{}, model.ErrRoutingMiss
		}
		ev, err = decodeData[model.OrderUpdate](env.Data)
	default:
		return Decoded{}, model.ErrRoutingMiss
	}
	if err != nil {
		return Decoded{}, &model.DecodeError{Channel: channel, Layer: layer, Err: err}
	}

	return Decoded{Topic: topic, Kind: ev.Kind(), Event: ev}, nil
}

type envelope struct {
	Type json.RawMessage `json:"type"`
	Data json.RawMessage `json:"data"`
}

// typeName returns the discriminator, or "" when it is absent or not a string.
func (e *envelope) typeName() string {
	var s string
	if len(e.Type) == 0 || json.Unmarshal(e.Type, &s) != nil {
		return ""
	}
	return s
}

// unwrap decodes at most two layers of JSON and returns the innermost
// document together with the layer it was found at.
func unwrap(payload []byte) ([]byte, int, error) {
	doc := bytes.TrimSpace(payload)
	for layer := 1; layer <= 2; layer++ {
		if len(doc) == 0 || !json.Valid(doc) {
			return nil, layer, errMalformed
		}
		if doc[0] != '"' {
			return doc, layer, nil
		}
		var s string
		if err := json.Unmarshal(doc, &s); err != nil {
			return nil, layer, err
		}
		doc = bytes.TrimSpace([]byte(s))
	}
	return nil, 3, errTooDeep
}

// decodeData decodes a data object into T. Absent or null data yields the
// zero value so field validation is left to the engine.
func decodeData[T model.Event](data json.RawMessage) (T, error) {
	var out T
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return out, nil
	}
	if data[0] != '{' {
		return out, errNotObject
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%s data: %w", out.Kind(), err)
	}
	return out, nil
}

func nonEmptyObject(data json.RawMessage) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	return len(fields) > 0
}
