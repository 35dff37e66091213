package wampmsg

import "encoding/json"

// JSONCodec encodes WAMP messages as JSON arrays, the router's default
// wire format.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(msg List) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Decode(data []byte) (List, error) {
	var msg List
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}
