package job

import "github.com/bytedance/sonic"

// Serializer converts payloads to and from their stored string form.
type Serializer interface {
	Serialize(v any) (string, error)
	Deserialize(data string, v any) error
}

// SonicSerializer encodes payloads as JSON using sonic.
type SonicSerializer struct{}

var _ Serializer = SonicSerializer{}

// Serialize encodes v as a JSON string.
func (SonicSerializer) Serialize(v any) (string, error) {
	return sonic.MarshalString(v)
}

// Deserialize decodes JSON data into v.
func (SonicSerializer) Deserialize(data string, v any) error {
	return sonic.UnmarshalString(data, v)
}
