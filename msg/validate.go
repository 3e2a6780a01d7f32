package msg

import "fmt"

// ValidateMessage performs the structural check applied at every receiving
// boundary: the type must belong to the enumeration and the ID and timestamp
// must be present. It does not look at the payload.
func ValidateMessage(m *Message) (bool, string) {
	if m == nil {
		return false, "message is nil"
	}

	if !m.Type.IsValid() {
		return false, fmt.Sprintf("message type %d is not in the enumeration",
			int(m.Type))
	}

	if m.ID == "" {
		return false, "message has no ID"
	}

	if m.Timestamp.IsZero() {
		return false, "message has no timestamp"
	}

	return true, ""
}

// ValidatePayload checks that messages of the binary-record types carry the
// matching record. Payload shape for all other types is the caller's
// responsibility.
func ValidatePayload(t Type, payload any) (bool, string) {
	switch t {
	case TypeUpdateGameState:
		if _, ok := payload.(*GameStateRecord); !ok {
			return false, fmt.Sprintf(
				"%s payload must be *GameStateRecord, got %T", t, payload)
		}
	case TypePlayerInput:
		if _, ok := payload.(*PlayerInputRecord); !ok {
			return false, fmt.Sprintf(
				"%s payload must be *PlayerInputRecord, got %T", t, payload)
		}
	}

	return true, ""
}
