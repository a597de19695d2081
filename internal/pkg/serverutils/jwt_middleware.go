package serverutils

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AdminIdentity is the decoded admin claim set. Role "super" sees all
// teams; any other role is restricted to its assigned team. Token issuance
// happens in the surrounding application, not here.
type AdminIdentity struct {
	AgentId string
	Role    string
	Team    string
}

// ParseAdminToken decodes and validates the admin JWT.
func ParseAdminToken(tokenStr string) (*AdminIdentity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		return nil, fiber.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fiber.ErrUnauthorized
	}

	identity := &AdminIdentity{}
	if v, ok := claims["agent_id"].(string); ok {
		identity.AgentId = v
	}
	if v, ok := claims["role"].(string); ok {
		identity.Role = v
	}
	if v, ok := claims["team"].(string); ok {
		identity.Team = v
	}
	if identity.AgentId == "" {
		return nil, fiber.ErrUnauthorized
	}
	return identity, nil
}

func JwtMiddleware(ctx *fiber.Ctx) error {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing token"})
	}

	identity, err := ParseAdminToken(authHeader[7:])
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
	}

	ctx.Locals("agent_id", identity.AgentId)
	ctx.Locals("agent_role", identity.Role)
	ctx.Locals("agent_team", identity.Team)
	return ctx.Next()
}
