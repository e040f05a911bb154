package config

import (
	"reflect"
	"testing"
)

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"data_dir": "/tmp/data",
		"llm": map[string]any{
			"provider": "openai",
			"model":    "gpt-4o",
		},
		"http": map[string]any{
			"addr": "127.0.0.1:8080",
		},
	}

	flat := Flatten(nested)
	if flat["llm.provider"] != "openai" {
		t.Errorf("expected llm.provider flattened, got %v", flat)
	}
	if flat["data_dir"] != "/tmp/data" {
		t.Errorf("expected top-level key preserved, got %v", flat)
	}

	back := Unflatten(flat)
	if !reflect.DeepEqual(back, nested) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", back, nested)
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("llm.api_key") {
		t.Error("expected llm.api_key to be secret")
	}
	if !IsSecretKey("telegram.token") {
		t.Error("expected telegram.token to be secret")
	}
	if IsSecretKey("llm.model") {
		t.Error("expected llm.model not to be secret")
	}
}

func TestMaskSecretsShortValue(t *testing.T) {
	flat := map[string]any{"llm.api_key": "abc"}
	masked := MaskSecrets(flat)
	if masked["llm.api_key"] != "***abc" {
		t.Errorf("unexpected mask %v", masked["llm.api_key"])
	}
}

func TestMaskSecretsEmptyValue(t *testing.T) {
	flat := map[string]any{"llm.api_key": ""}
	masked := MaskSecrets(flat)
	if masked["llm.api_key"] != "" {
		t.Errorf("expected empty value untouched, got %v", masked["llm.api_key"])
	}
}
