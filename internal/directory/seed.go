package directory

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/example/ride-dispatch/internal/models"
)

// ReadSeed decodes a JSON array of users for loading a directory at startup.
// A missing status defaults to active.
func ReadSeed(r io.Reader) ([]models.User, error) {
	var users []models.User
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i := range users {
		u := &users[i]
		if u.ID == "" {
			return nil, fmt.Errorf("seed entry %d: missing id", i)
		}
		if u.Role != models.RoleDriver && u.Role != models.RoleRider {
			return nil, fmt.Errorf("seed %s: unknown role %q", u.ID, u.Role)
		}
		if u.Status == "" {
			u.Status = models.UserActive
		}
		if u.Location != nil {
			if err := models.ValidateCoord(*u.Location); err != nil {
				return nil, fmt.Errorf("seed %s: %w", u.ID, err)
			}
		}
	}
	return users, nil
}
