// Package visibility holds the team-visibility predicate shared by the
// admin client's list filter and the server-side room join authorization,
// so a restricted admin's channel is never subscribed to rooms outside its
// team.
package visibility

// RoleSuper sees every team; any other role is restricted to its own.
const RoleSuper = "super"

type Viewer struct {
	Role string
	Team string
}

func CanView(viewer Viewer, conversationTeam string) bool {
	if viewer.Role == RoleSuper {
		return true
	}
	return viewer.Team == conversationTeam
}
