package progress

import "encoding/json"

// Encode serializes a message to its UTF-8 JSON wire form.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a message from its wire form. It does not validate or
// derive; callers decoding from a trusted cache (the broker's own
// stream) may skip that, while callers decoding untrusted input should
// run Validate afterwards.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
