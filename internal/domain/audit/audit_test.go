package audit

import "testing"

func TestBuildWhere(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		want     string
		wantArgs int
	}{
		{name: "empty", filter: Filter{}, want: " WHERE 1=1"},
		{
			name:     "entity and action",
			filter:   Filter{EntityType: EntityVendor, Action: ActionApprove},
			want:     " WHERE 1=1 AND entity_type = $1 AND action = $2",
			wantArgs: 2,
		},
		{
			name:     "all",
			filter:   Filter{EntityType: EntityConsent, EntityID: "cns_1", Action: ActionWithdraw, UserID: "u1"},
			want:     " WHERE 1=1 AND entity_type = $1 AND entity_id = $2 AND action = $3 AND user_id = $4",
			wantArgs: 4,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, args := buildWhere(tc.filter)
			if got != tc.want {
				t.Fatalf("where = %q, want %q", got, tc.want)
			}
			if len(args) != tc.wantArgs {
				t.Fatalf("args = %d, want %d", len(args), tc.wantArgs)
			}
		})
	}
}
