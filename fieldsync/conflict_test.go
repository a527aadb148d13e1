package fieldsync

import "testing"

func TestResolveConflict(t *testing.T) {
	local := map[string]any{"name": "Local Farm", "area": 10.0, "note": "mine"}
	server := map[string]any{"name": "Server Farm", "area": 12.0}

	tests := []struct {
		strategy Strategy
		want     map[string]any
	}{
		{StrategyLocal, map[string]any{"name": "Local Farm", "area": 10.0, "note": "mine"}},
		{StrategyServer, map[string]any{"name": "Server Farm", "area": 12.0}},
		{StrategyMerge, map[string]any{"name": "Server Farm", "area": 12.0, "note": "mine"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			got, err := ResolveConflict(local, server, tt.strategy)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestResolveConflictUnknownStrategy(t *testing.T) {
	if _, err := ResolveConflict(nil, nil, Strategy("coin-flip")); err == nil {
		t.Fatal("unknown strategy accepted")
	}
}

func TestResolveConflictDoesNotMutateInputs(t *testing.T) {
	local := map[string]any{"name": "Local"}
	server := map[string]any{"name": "Server"}

	got, err := ResolveConflict(local, server, StrategyMerge)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got["name"] = "changed"

	if local["name"] != "Local" || server["name"] != "Server" {
		t.Fatalf("inputs mutated: local=%v server=%v", local, server)
	}
}
