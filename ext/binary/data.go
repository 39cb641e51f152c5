package binary

import "maps"

// BinaryData is the binary marker: a message whose Data is a BinaryData
// (value or pointer) is transcoded by the extension. Incoming binary
// messages always carry a *BinaryData.
type BinaryData struct {
	Data []byte
	Meta map[string]any
}

// FromMessageData returns the binary payload carried by data, if any.
func FromMessageData(data any) (*BinaryData, bool) {
	switch d := data.(type) {
	case *BinaryData:
		return d, d != nil
	case BinaryData:
		return &d, true
	default:
		return nil, false
	}
}

// Wire payload field names.
const (
	fieldData = "data"
	fieldMeta = "meta"
)

func wirePayload(encoded string, meta map[string]any) map[string]any {
	payload := map[string]any{fieldData: encoded}
	if len(meta) > 0 {
		payload[fieldMeta] = maps.Clone(meta)
	}
	return payload
}

// readWirePayload extracts the encoded text and metadata from a wire payload.
func readWirePayload(data any) (string, map[string]any, bool) {
	payload, ok := data.(map[string]any)
	if !ok {
		return "", nil, false
	}
	encoded, ok := payload[fieldData].(string)
	if !ok {
		return "", nil, false
	}
	meta, _ := payload[fieldMeta].(map[string]any)
	return encoded, meta, true
}
