package domain

import (
	"context"
	"io"
	"strings"
	"time"
)

// ItemRecord is the persistent per-item state row, keyed by (ItemID, JobName).
type ItemRecord struct {
	ItemID     string
	JobName    string
	Collection string
	SizeKB     float64
	MD5        string
	BytesDone  int64
	Status     ItemStatus
	Path       string
	Error      string
	CreatedAt  string
	UpdatedAt  string
}

// CacheRow is the minimal search-cache metadata for one discovered item.
type CacheRow struct {
	ItemID       string
	Collection   string
	SizeKB       float64
	SensingStart string
	SensingEnd   string
	CachedAt     string
}

// CatalogItem is the narrow contract the core needs from a catalog client
// product. Implementations may fail any accessor; callers treat failures as
// missing metadata where the pipeline can proceed without it.
type CatalogItem interface {
	// ID is the catalog identifier; also the state-store key in whole-product mode.
	ID() string
	// SizeKB is the published payload size in kilobytes, 0 if unknown.
	SizeKB() float64
	// MD5 is the published content digest, empty if the catalog has none.
	MD5() string
	// BaseURL is the payload root; entry URLs are derived from it.
	BaseURL() string
	// Entries lists the named sub-entries inside the item.
	Entries(ctx context.Context) ([]string, error)
	// SensingStart and SensingEnd bound the item's acquisition window.
	SensingStart() time.Time
	SensingEnd() time.Time
	// Open streams the payload. entry selects a sub-entry ("" for the whole
	// item); offset > 0 requests a byte-range transfer from that offset.
	Open(ctx context.Context, entry string, offset int64) (io.ReadCloser, error)
}

// EntrySep packs an entry name into a state-store key. Catalog identifiers
// never contain this sequence.
const EntrySep = "::entry::"

// EncodeEntryKey builds the state key for one entry of an item.
func EncodeEntryKey(itemID, entry string) string {
	return itemID + EntrySep + entry
}

// DecodeEntryKey splits a state key into item id and entry name. The entry
// name is empty for whole-product keys.
func DecodeEntryKey(key string) (itemID, entry string) {
	if i := strings.Index(key, EntrySep); i >= 0 {
		return key[:i], key[i+len(EntrySep):]
	}
	return key, ""
}
