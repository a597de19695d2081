package visibility

import "testing"

func TestCanView(t *testing.T) {
	tests := []struct {
		name string
		role string
		team string
		conv string
		want bool
	}{
		{name: "super sees own team", role: RoleSuper, team: "Support", conv: "Support", want: true},
		{name: "super sees other team", role: RoleSuper, team: "Support", conv: "Technical", want: true},
		{name: "super with no team", role: RoleSuper, team: "", conv: "Sales & Marketing", want: true},
		{name: "agent sees own team", role: "agent", team: "Technical", conv: "Technical", want: true},
		{name: "agent blocked from other team", role: "agent", team: "Technical", conv: "Support", want: false},
		{name: "empty role empty team", role: "", team: "", conv: "Support", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanView(Viewer{Role: tt.role, Team: tt.team}, tt.conv)
			if got != tt.want {
				t.Errorf("CanView() = %v, want %v", got, tt.want)
			}
		})
	}
}
