package transport

import "github.com/tenzoki/wampcore/internal/wampmsg"

// Decoded message arrays arrive as []any and, depending on the codec,
// numeric fields surface as int, int64, float64, or uint64 (JSON decodes
// every number to float64; MessagePack preserves the original width).
// These helpers normalize that before the core ever sees a request id,
// subscription id, or boolean option.

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int64:
		return uint64(n)
	case int:
		return uint64(n)
	case float64:
		return uint64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asDict(v any) wampmsg.Dict {
	d, ok := v.(wampmsg.Dict)
	if ok {
		return d
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return wampmsg.Dict{}
}

func asList(v any) wampmsg.List {
	if l, ok := v.(wampmsg.List); ok {
		return l
	}
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

func boolOpt(opts wampmsg.Dict, key string) bool {
	b, _ := opts[key].(bool)
	return b
}

func stringOpt(opts wampmsg.Dict, key string) string {
	s, _ := opts[key].(string)
	return s
}

func uint64SetOpt(opts wampmsg.Dict, key string) map[uint64]bool {
	raw, ok := opts[key]
	if !ok {
		return nil
	}
	items := asList(raw)
	if len(items) == 0 {
		return nil
	}
	out := make(map[uint64]bool, len(items))
	for _, item := range items {
		out[asUint64(item)] = true
	}
	return out
}

func stringSetOpt(opts wampmsg.Dict, key string) map[string]bool {
	raw, ok := opts[key]
	if !ok {
		return nil
	}
	items := asList(raw)
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[asString(item)] = true
	}
	return out
}
