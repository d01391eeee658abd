package auth

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

const opsKeyHeader = "X-Ops-Key"

// HashOpsKey hashes a plaintext operator key for storage in config.
func HashOpsKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyOpsKey compares a presented key against the stored hash.
func VerifyOpsKey(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

// RequireOpsKey guards operator endpoints with a shared key.
func RequireOpsKey(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if hash == "" {
			return util.NewUnauthorized("ops key not configured")
		}
		key := c.Get(opsKeyHeader)
		if key == "" {
			return util.NewUnauthorized("missing ops key")
		}
		if err := VerifyOpsKey(hash, key); err != nil {
			return util.NewUnauthorized("invalid ops key")
		}
		return c.Next()
	}
}
