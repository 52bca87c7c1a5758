package directory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisDirectory keeps one hash per user and a set of driver ids.
//
//	{prefix}user:{id}  hash of profile, vehicle, availability and location
//	{prefix}drivers    set of driver ids
type RedisDirectory struct {
	client *redis.Client
	prefix string
}

func NewRedisDirectory(client *redis.Client, prefix string) *RedisDirectory {
	return &RedisDirectory{client: client, prefix: prefix}
}

func (r *RedisDirectory) userKey(id string) string { return r.prefix + "user:" + id }
func (r *RedisDirectory) driversKey() string       { return r.prefix + "drivers" }

// Upsert writes the full record. Used for seeding and by admin tooling.
func (r *RedisDirectory) Upsert(ctx context.Context, u models.User) error {
	key := r.userKey(u.ID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, toHash(u))
	if u.Role == models.RoleDriver {
		pipe.SAdd(ctx, r.driversKey(), u.ID)
	} else {
		pipe.SRem(ctx, r.driversKey(), u.ID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisDirectory) ListEligibleDrivers(ctx context.Context) ([]models.User, error) {
	ids, err := r.client.SMembers(ctx, r.driversKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(ids))
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		u, err := fromHash(ids[i], m)
		if err != nil {
			return nil, err
		}
		if u.Eligible() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *RedisDirectory) GetUser(ctx context.Context, id string) (models.User, error) {
	m, err := r.client.HGetAll(ctx, r.userKey(id)).Result()
	if err != nil {
		return models.User{}, err
	}
	if len(m) == 0 {
		return models.User{}, ErrNotFound
	}
	return fromHash(id, m)
}

// setLocation writes lat/lon only while the user hash exists, so a record
// deleted concurrently is never recreated without its role.
var setLocation = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'lat', ARGV[1], 'lon', ARGV[2])
return 1
`)

func (r *RedisDirectory) UpdateLocation(ctx context.Context, id string, c models.Coord) error {
	n, err := setLocation.Run(ctx, r.client, []string{r.userKey(id)}, formatFloat(c.Lat), formatFloat(c.Lon)).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func toHash(u models.User) map[string]interface{} {
	h := map[string]interface{}{
		"role":          string(u.Role),
		"first_name":    u.FirstName,
		"last_name":     u.LastName,
		"phone":         u.Phone,
		"vehicle_make":  u.Vehicle.Make,
		"vehicle_model": u.Vehicle.Model,
		"vehicle_color": u.Vehicle.Color,
		"license_plate": u.Vehicle.LicensePlate,
		"available":     strconv.FormatBool(u.Available),
		"status":        string(u.Status),
	}
	if u.Location != nil {
		h["lat"] = formatFloat(u.Location.Lat)
		h["lon"] = formatFloat(u.Location.Lon)
	}
	return h
}

func fromHash(id string, m map[string]string) (models.User, error) {
	u := models.User{
		ID:        id,
		Role:      models.Role(m["role"]),
		FirstName: m["first_name"],
		LastName:  m["last_name"],
		Phone:     m["phone"],
		Vehicle: models.Vehicle{
			Make:         m["vehicle_make"],
			Model:        m["vehicle_model"],
			Color:        m["vehicle_color"],
			LicensePlate: m["license_plate"],
		},
		Available: m["available"] == "true",
		Status:    models.UserStatus(m["status"]),
	}
	lat, hasLat := m["lat"]
	lon, hasLon := m["lon"]
	if hasLat && hasLon {
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return models.User{}, fmt.Errorf("user %s: bad lat %q: %w", id, lat, err)
		}
		lo, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return models.User{}, fmt.Errorf("user %s: bad lon %q: %w", id, lon, err)
		}
		u.Location = &models.Coord{Lat: la, Lon: lo}
	}
	return u, nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
