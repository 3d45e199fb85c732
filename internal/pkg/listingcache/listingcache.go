// Package listingcache mirrors listing documents into the low-latency store
// for cheap storefront reads. Archived listings carry a delete_at field; the
// reaper purges their documents once that timestamp passes.
package listingcache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/fleamarkt/fleamarkt/app/models"
	"github.com/fleamarkt/fleamarkt/internal/pkg/ttlfield"
)

const scanPattern = "listing:*:doc"

func Key(listingID uint) string {
	return fmt.Sprintf("listing:%d:doc", listingID)
}

// Upsert writes the cached document for a listing. Absent timestamp fields
// are removed explicitly; setting them to an empty value is rejected by the
// ttlfield validation.
func Upsert(ctx context.Context, rdb *redis.Client, listing *models.Listing) error {
	u := ttlfield.NewUpdate()
	u.SetField("uuid", listing.UUID)
	u.SetField("title", listing.Title)
	u.SetField("status", listing.Status)
	u.SetField("price_cents", strconv.FormatInt(listing.PriceCents, 10))
	u.SetField("currency", listing.Currency)
	u.SetField("user_id", strconv.FormatUint(uint64(listing.UserID), 10))
	if listing.ArchivedAt != nil {
		u.SetTime("archived_at", *listing.ArchivedAt)
	} else {
		u.RemoveField("archived_at")
	}
	if listing.DeleteAt != nil {
		u.SetTime("delete_at", *listing.DeleteAt)
	} else {
		u.RemoveField("delete_at")
	}

	if err := u.Validate(); err != nil {
		return err
	}

	key := Key(listing.ID)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key, u.Args()...)
	if len(u.Del) > 0 {
		pipe.HDel(ctx, key, u.Del...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Remove drops a cached listing document.
func Remove(ctx context.Context, rdb *redis.Client, listingID uint) error {
	return rdb.Del(ctx, Key(listingID)).Err()
}

// ReapExpired deletes cached documents whose delete_at has passed and
// returns how many were purged. Documents whose delete_at does not parse are
// left alone and logged; deleting on an unreadable timestamp is exactly the
// premature-loss failure the ttlfield rules exist to prevent.
func ReapExpired(ctx context.Context, rdb *redis.Client, now time.Time) (int, error) {
	var purged int
	iter := rdb.Scan(ctx, 0, scanPattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, err := rdb.HGet(ctx, key, "delete_at").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return purged, err
		}

		deleteAt, ok := ttlfield.ParseDeletionTime(value)
		if !ok {
			log.Warnf("listing cache reaper: %s has unusable delete_at %q, skipping", key, value)
			continue
		}
		if deleteAt.After(now) {
			continue
		}
		if err := rdb.Del(ctx, key).Err(); err != nil {
			return purged, err
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, err
	}
	return purged, nil
}
