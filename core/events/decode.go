package events

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrUnknownKind reports an encoded event with an unsupported type field.
var ErrUnknownKind = errors.New("unknown event kind")

type envelope struct {
	Type string `json:"type"`
}

// Decode parses a JSON object carrying a "type" field into the matching
// concrete event.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	switch env.Type {
	case KindPersonLeavesVehicle:
		return decodeAs[PersonLeavesVehicle](data)
	case KindActivityStart:
		return decodeAs[ActivityStart](data)
	case KindActivityEnd:
		return decodeAs[ActivityEnd](data)
	case KindChargingStart:
		return decodeAs[ChargingStart](data)
	case KindChargingEnd:
		return decodeAs[ChargingEnd](data)
	case KindVehicleEntersTraffic:
		return decodeAs[VehicleEntersTraffic](data)
	case KindVehicleLeavesTraffic:
		return decodeAs[VehicleLeavesTraffic](data)
	case KindLinkLeave:
		return decodeAs[LinkLeave](data)
	case KindEnergyUpdate:
		return decodeAs[EnergyUpdate](data)
	}
	return nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownKind)
}

func decodeAs[T Event](data []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Kind(), err)
	}
	return ev, nil
}

// Encode writes ev with its "type" field, the inverse of Decode.
func Encode(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(ev.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}
