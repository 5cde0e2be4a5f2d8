package types

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestNullableUnmarshal(t *testing.T) {
	type payload struct {
		ID   Nullable[uuid.UUID] `json:"id"`
		Name Nullable[string]    `json:"name"`
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"id": "00000000-0000-0000-0000-000000000001", "name": "Acme"}`), &got); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if !got.ID.Set || got.ID.Value == nil {
		t.Fatalf("expected set uuid, got %+v", got.ID)
	}
	if got.ID.Value.String() != "00000000-0000-0000-0000-000000000001" {
		t.Fatalf("unexpected uuid %s", got.ID.Value)
	}
	if got.Name.Value == nil || *got.Name.Value != "Acme" {
		t.Fatalf("unexpected name %+v", got.Name)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{"id": null}`), &got); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !got.ID.Null() {
		t.Fatalf("expected explicit null, got %+v", got.ID)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{}`), &got); err != nil {
		t.Fatalf("unmarshal missing: %v", err)
	}
	if got.ID.Set || got.ID.Null() {
		t.Fatalf("expected unset for missing field, got %+v", got.ID)
	}

	if err := json.Unmarshal([]byte(`{"id": "nope"}`), &got); err == nil {
		t.Fatalf("expected error for malformed uuid")
	}
}
