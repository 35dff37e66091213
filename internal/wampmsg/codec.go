package wampmsg

// Codec turns a decoded WAMP message array into wire bytes and back. The
// router consumes only this interface; byte-level transport framing and
// the concrete serialization format are collaborators selected once at
// connect time (spec.md §1, §6).
type Codec interface {
	// Name identifies the codec (e.g. "json", "msgpack").
	Name() string
	Encode(msg List) ([]byte, error)
	Decode(data []byte) (List, error)
}
