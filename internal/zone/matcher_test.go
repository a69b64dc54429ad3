package zone

import "testing"

func TestClassifyInclusive(t *testing.T) {
	zones := []Zone{
		{
			Name:    "corp",
			ID:      "corp",
			Domains: []string{"corp.example"},
			Policy:  Policy{Mode: ModeInclusive},
		},
	}
	m, err := NewMatcher(zones)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	tests := []struct {
		name          string
		wantZone      string
		wantRelevant  bool
	}{
		{"jira.corp.example", "corp", true},
		{"jira.corp.example.", "corp", true},
		{"corp.example", "corp", true},
		{"example.com", DefaultZoneID, false},
		{"", DefaultZoneID, false},
		{"notcorp.example", DefaultZoneID, false},
	}

	for _, tt := range tests {
		gotZone, gotRelevant := m.Classify(tt.name)
		if gotZone != tt.wantZone || gotRelevant != tt.wantRelevant {
			t.Errorf("Classify(%q) = (%s, %v), want (%s, %v)", tt.name, gotZone, gotRelevant, tt.wantZone, tt.wantRelevant)
		}
	}
}

func TestClassifyExclusive(t *testing.T) {
	zones := []Zone{
		{
			Name:    "tunnel",
			ID:      "tunnel",
			Domains: []string{"internal.example"},
			Policy:  Policy{Mode: ModeExclusive},
		},
	}
	m, err := NewMatcher(zones)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	// A match against an exclusive zone is excluded from routing.
	zoneID, relevant := m.Classify("internal.example")
	if zoneID != DefaultZoneID || relevant {
		t.Errorf("exclusive match: got (%s, %v), want (%s, false)", zoneID, relevant, DefaultZoneID)
	}

	// Everything else belongs to the tunnel zone.
	zoneID, relevant = m.Classify("anything.example.com")
	if zoneID != "tunnel" || !relevant {
		t.Errorf("exclusive non-match: got (%s, %v), want (tunnel, true)", zoneID, relevant)
	}
}

func TestClassifyDeterministicOrder(t *testing.T) {
	zones := []Zone{
		{Name: "a", ID: "a", Domains: []string{"example.com"}, Policy: Policy{Mode: ModeInclusive}},
		{Name: "b", ID: "b", Domains: []string{"example.com"}, Policy: Policy{Mode: ModeInclusive}},
	}
	m, err := NewMatcher(zones)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	// First matching zone in declared order wins, regardless of how many
	// times we re-run the classification.
	for i := 0; i < 5; i++ {
		zoneID, _ := m.Classify("example.com")
		if zoneID != "a" {
			t.Fatalf("iteration %d: got zone %s, want a", i, zoneID)
		}
	}
}

func TestClassifyRegexPattern(t *testing.T) {
	zones := []Zone{
		{
			Name:        "cdn",
			ID:          "cdn",
			Patterns:    []string{`^[a-z0-9-]+\.cdn\.example$`},
			PatternKind: PatternRegex,
			Policy:      Policy{Mode: ModeInclusive},
		},
	}
	m, err := NewMatcher(zones)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	zoneID, relevant := m.Classify("edge-1.cdn.example")
	if zoneID != "cdn" || !relevant {
		t.Errorf("got (%s, %v), want (cdn, true)", zoneID, relevant)
	}

	zoneID, relevant = m.Classify("notcdn.example")
	if zoneID != DefaultZoneID || relevant {
		t.Errorf("got (%s, %v), want (%s, false)", zoneID, relevant, DefaultZoneID)
	}
}
