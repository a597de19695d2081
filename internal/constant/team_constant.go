package constant

// Routing teams. Closed set shared by the pre-chat form, the synchronizer
// and the admin visibility filter.
const (
	TeamSupport   = "Support"
	TeamTechnical = "Technical"
	TeamSales     = "Sales & Marketing"
)

var Teams = []string{TeamSupport, TeamTechnical, TeamSales}

func IsValidTeam(team string) bool {
	for _, t := range Teams {
		if t == team {
			return true
		}
	}
	return false
}
