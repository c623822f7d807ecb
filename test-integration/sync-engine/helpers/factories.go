package helpers

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// PatientPayload builds a patient payload with a fresh id, as another device would push it
func PatientPayload(name string) json.RawMessage {
	return PatientPayloadWithID(uuid.New(), name)
}

// PatientPayloadWithID builds a patient payload for a known id. An empty name is left out.
func PatientPayloadWithID(id uuid.UUID, name string) json.RawMessage {
	payload := []byte(fmt.Sprintf(`{"id":%q,"updated_at":"2025-01-15T10:00:00Z"}`, id))
	if name != "" {
		var err error
		payload, err = sjson.SetBytes(payload, "full_name", name)
		if err != nil {
			panic(err)
		}
	}
	return payload
}

// LocalPatient builds the domain payload of a patient created on this device
func LocalPatient(name string) json.RawMessage {
	if name == "" {
		return json.RawMessage(`{"village":"Kisumu"}`)
	}
	payload, err := sjson.SetBytes([]byte(`{"village":"Kisumu"}`), "full_name", name)
	if err != nil {
		panic(err)
	}
	return payload
}
