package domain

// ItemStatus tracks a product (or product entry) through the download pipeline.
type ItemStatus string

const (
	StatusPending     ItemStatus = "pending"
	StatusDownloading ItemStatus = "downloading"
	StatusDownloaded  ItemStatus = "downloaded"
	StatusVerified    ItemStatus = "verified"
	StatusProcessing  ItemStatus = "processing"
	StatusProcessed   ItemStatus = "processed"
	StatusFailed      ItemStatus = "failed"
)

// Terminal reports whether a row in this status is finished and must not be
// picked up again by the downloader.
func (s ItemStatus) Terminal() bool {
	return s == StatusVerified || s == StatusProcessed
}
