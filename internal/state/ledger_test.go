package state

import "testing"

// TestLiveBounds verifies window pruning math.
func TestLiveBounds(t *testing.T) {
	now := int64(1_000)

	tests := []struct {
		name      string
		entries   []ledgerEntry
		wantSum   int
		wantFirst int
		wantLast  int
		wantLive  bool
	}{
		{
			name:     "empty window",
			entries:  nil,
			wantLive: false,
		},
		{
			name: "all expired",
			entries: []ledgerEntry{
				{Tokens: 100, ExpiresAt: 900},
				{Tokens: 200, ExpiresAt: 1000},
			},
			wantLive: false,
		},
		{
			name: "expired head trimmed",
			entries: []ledgerEntry{
				{Tokens: 100, ExpiresAt: 500},
				{Tokens: 200, ExpiresAt: 1500},
				{Tokens: 300, ExpiresAt: 1600},
			},
			wantSum:   500,
			wantFirst: 1,
			wantLast:  2,
			wantLive:  true,
		},
		{
			name: "all live",
			entries: []ledgerEntry{
				{Tokens: 10, ExpiresAt: 2000},
				{Tokens: 20, ExpiresAt: 2001},
			},
			wantSum:   30,
			wantFirst: 0,
			wantLast:  1,
			wantLive:  true,
		},
		{
			name: "malformed zero entry counts as expired",
			entries: []ledgerEntry{
				{},
				{Tokens: 40, ExpiresAt: 1100},
			},
			wantSum:   40,
			wantFirst: 1,
			wantLast:  1,
			wantLive:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum, first, last, live := liveBounds(tt.entries, now)
			if live != tt.wantLive {
				t.Fatalf("live = %v, want %v", live, tt.wantLive)
			}
			if !live {
				return
			}
			if sum != tt.wantSum || first != tt.wantFirst || last != tt.wantLast {
				t.Errorf("liveBounds = (%d, %d, %d), want (%d, %d, %d)",
					sum, first, last, tt.wantSum, tt.wantFirst, tt.wantLast)
			}
		})
	}
}
