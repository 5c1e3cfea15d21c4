package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is the Bot API callback_data size limit in bytes,
// counted over the full "namespace:action:payload" string.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "namespace:action:payload".
// Payload is kept as-is (no escaping) and may itself contain ':'.
func Data(namespace, action, payload string) string {
	namespace = strings.TrimSpace(namespace)
	action = strings.TrimSpace(action)
	if payload == "" {
		return namespace + ":" + action
	}
	return namespace + ":" + action + ":" + payload
}

// CheckData returns ErrCallbackDataTooLong when data exceeds the API limit.
func CheckData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}

// ParseData splits callback data into its three parts. ok is false when
// namespace or action is missing.
func ParseData(data string) (namespace, action, payload string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 {
		return "", "", "", false
	}
	namespace = strings.TrimSpace(parts[0])
	action = strings.TrimSpace(parts[1])
	if len(parts) == 3 {
		payload = parts[2]
	}
	if namespace == "" || action == "" {
		return "", "", "", false
	}
	return namespace, action, payload, true
}
