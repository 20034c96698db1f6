package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// encoder replaces invalid UTF-8 from a PTY with U+FFFD; text frames must
// be valid UTF-8
var encoder = sonic.Config{ValidateString: true}.Froze()

// Encode serializes a message for a text frame
func Encode(msg Message) ([]byte, error) {
	data, err := encoder.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	return data, nil
}

// Decode parses a text frame
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return msg, nil
}
