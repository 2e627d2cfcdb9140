package downloader

// ProgressSink receives transfer progress. The console renderer implements
// it; the engine itself never imports a UI package.
type ProgressSink interface {
	// ItemStarted announces a transfer and its expected size (0 if unknown).
	ItemStarted(key string, total int64)
	// ItemAdvanced reports bytes written since the last call. A negative
	// value resets the item's progress (retry from zero).
	ItemAdvanced(key string, n int64)
	// ItemFinished marks the item complete regardless of outcome.
	ItemFinished(key string)
}

type nopSink struct{}

func (nopSink) ItemStarted(string, int64)  {}
func (nopSink) ItemAdvanced(string, int64) {}
func (nopSink) ItemFinished(string)        {}
