package wampmsg

import "github.com/vmihailenco/msgpack/v5"

// MsgPackCodec encodes WAMP messages with MessagePack, the compact
// binary alternative to JSON, selected by the router's codec setting. It uses the
// same msgpack library the companion storage module of this project's
// reference codebase uses to serialize its own persisted values.
type MsgPackCodec struct{}

func (MsgPackCodec) Name() string { return "msgpack" }

func (MsgPackCodec) Encode(msg List) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (MsgPackCodec) Decode(data []byte) (List, error) {
	var msg List
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}
