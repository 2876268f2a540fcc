package registry

import (
	"encoding/json"
	"testing"

	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventPaymentConfirmed, 1, func(payload json.RawMessage) (interface{}, error) {
		var decoded map[string]string
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	input := json.RawMessage(`{"receipt_number":"RCT123"}`)
	output, err := reg.Decode(enums.EventPaymentConfirmed, 1, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outMap, ok := output.(map[string]string); !ok || outMap["receipt_number"] != "RCT123" {
		t.Fatalf("unexpected output %+v", output)
	}
}

func TestDecoderRegistryUnknownVersion(t *testing.T) {
	reg := NewDecoderRegistry()
	if _, err := reg.Decode(enums.EventPaymentConfirmed, 2, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for unregistered decoder")
	}
}
