package split

import "testing"

func TestSplitDustRemainderToLast(t *testing.T) {
	recipients := []Recipient{
		{Address: "0xAAA", BPS: 3333},
		{Address: "0xBBB", BPS: 3333},
		{Address: "0xCCC", BPS: 3334},
	}

	amounts, err := CalculateSplitAmounts("100", recipients)
	if err != nil {
		t.Fatalf("CalculateSplitAmounts returned error: %v", err)
	}
	if len(amounts) != 3 {
		t.Fatalf("expected 3 amounts, got %d", len(amounts))
	}

	if amounts[0].Amount != "33" {
		t.Errorf("recipient 0: expected 33, got %s", amounts[0].Amount)
	}
	if amounts[1].Amount != "33" {
		t.Errorf("recipient 1: expected 33, got %s", amounts[1].Amount)
	}
	// The last recipient absorbs the leftover dust, not the first.
	if amounts[2].Amount != "34" {
		t.Errorf("last recipient: expected 34 (dust), got %s", amounts[2].Amount)
	}
}

func TestSplitDustRemainderToLastSingleRecipient(t *testing.T) {
	amounts, err := CalculateSplitAmounts("100", []Recipient{{Address: "0xAAA", BPS: 10000}})
	if err != nil {
		t.Fatalf("CalculateSplitAmounts returned error: %v", err)
	}
	if amounts[0].Amount != "100" {
		t.Errorf("expected sole recipient to get 100, got %s", amounts[0].Amount)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Recipients: []Recipient{{Address: "0xAAA", BPS: 6000}, {Address: "0xBBB", BPS: 4000}}}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	invalid := Config{Recipients: []Recipient{{Address: "0xAAA", BPS: 6000}, {Address: "0xBBB", BPS: 3000}}}
	if err := invalid.Validate(); err == nil {
		t.Error("expected error for bps not summing to 10000")
	}

	empty := Config{}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty recipients")
	}
}

func TestParseConfig(t *testing.T) {
	extra := map[string]interface{}{
		"recipients": []interface{}{
			map[string]interface{}{"address": "0xAAA", "bps": float64(6000), "label": "host"},
			map[string]interface{}{"address": "0xBBB", "bps": float64(4000)},
		},
	}

	config, err := ParseConfig(extra)
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}
	if len(config.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(config.Recipients))
	}
	if config.Recipients[0].Label != "host" {
		t.Errorf("expected label 'host', got %q", config.Recipients[0].Label)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("expected parsed config to validate, got: %v", err)
	}
}

func TestParseConfigMissingRecipients(t *testing.T) {
	if _, err := ParseConfig(map[string]interface{}{}); err == nil {
		t.Error("expected error when recipients is missing")
	}
}
