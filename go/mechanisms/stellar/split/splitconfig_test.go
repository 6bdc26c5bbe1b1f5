package split

import "testing"

func TestSplitDustRemainderToFirst(t *testing.T) {
	recipients := []Recipient{
		{Address: "GAAA", BPS: 3333},
		{Address: "GBBB", BPS: 3333},
		{Address: "GCCC", BPS: 3334},
	}

	amounts, err := CalculateSplitAmounts("100", recipients)
	if err != nil {
		t.Fatalf("CalculateSplitAmounts returned error: %v", err)
	}
	if len(amounts) != 3 {
		t.Fatalf("expected 3 amounts, got %d", len(amounts))
	}

	// The first recipient absorbs the leftover dust here, the opposite of
	// the EVM and SVM split schemes' remainder-to-last rule.
	if amounts[0].Amount != "34" {
		t.Errorf("first recipient: expected 34 (dust), got %s", amounts[0].Amount)
	}
	if amounts[1].Amount != "33" {
		t.Errorf("recipient 1: expected 33, got %s", amounts[1].Amount)
	}
	if amounts[2].Amount != "33" {
		t.Errorf("recipient 2: expected 33, got %s", amounts[2].Amount)
	}
}

func TestSplitDustRemainderToFirstNoLeftover(t *testing.T) {
	recipients := []Recipient{
		{Address: "GAAA", BPS: 5000},
		{Address: "GBBB", BPS: 5000},
	}

	amounts, err := CalculateSplitAmounts("100", recipients)
	if err != nil {
		t.Fatalf("CalculateSplitAmounts returned error: %v", err)
	}
	if amounts[0].Amount != "50" || amounts[1].Amount != "50" {
		t.Errorf("expected an even 50/50 split with no dust, got %s/%s", amounts[0].Amount, amounts[1].Amount)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Recipients: []Recipient{{Address: "GAAA", BPS: 6000}, {Address: "GBBB", BPS: 4000}}}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	invalid := Config{Recipients: []Recipient{{Address: "GAAA", BPS: 6000}, {Address: "GBBB", BPS: 3000}}}
	if err := invalid.Validate(); err == nil {
		t.Error("expected error for bps not summing to 10000")
	}
}

func TestParseConfig(t *testing.T) {
	extra := map[string]interface{}{
		"recipients": []interface{}{
			map[string]interface{}{"address": "GAAA", "bps": float64(6000)},
			map[string]interface{}{"address": "GBBB", "bps": float64(4000)},
		},
	}

	config, err := ParseConfig(extra)
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}
	if len(config.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(config.Recipients))
	}
}
