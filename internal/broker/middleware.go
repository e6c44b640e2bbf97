package broker

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// bearerAuth requires "Authorization: Bearer <token>" matching the
// configured mailbox token. A Broker with no token configured runs
// unauthenticated; the core does not authenticate requests by default,
// deployments that need authentication configure one.
func (b *Broker) bearerAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if b.MailboxToken == "" {
			return c.Next()
		}

		auth := c.Get("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] != b.MailboxToken {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "ERROR",
				"code":   "UNAUTHORIZED",
			})
		}
		return c.Next()
	}
}
