package persistence

import "encoding/json"

// EncodeJSON serializes a value for storage. Nil pointers encode to
// nil so optional columns stay NULL.
func EncodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeJSON deserializes a stored payload into T. Empty payloads
// decode to the zero value.
func DecodeJSON[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}
