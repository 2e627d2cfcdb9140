// Package remote provides random-access reads over authenticated catalog
// objects without downloading them. All entries of one view share a single
// token-refreshing transport, so a 401 on any entry refreshes the bearer
// token for every concurrent reader at once.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"

	"satfetch/internal/domain"
	"satfetch/internal/transport"
)

// File is one remote entry. It satisfies io.ReaderAt over byte-range GETs
// and opens as a seekable stream for tools that read sequentially.
type File struct {
	url    string
	client *transport.Client
	ctx    context.Context
}

// URL returns the entry's fully-qualified, pre-encoded URL.
func (f *File) URL() string { return f.url }

// Size stats the remote object.
func (f *File) Size() (int64, error) {
	info, err := f.client.Stat(f.ctx, f.url)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// ReadAt fetches p's worth of bytes starting at off with one range request.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	data, err := f.client.ReadRange(f.ctx, f.url, off, off+int64(len(p)))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Open returns a seekable stream over the entry. The size is fetched once
// so Seek(…, io.SeekEnd) works.
func (f *File) Open() (io.ReadSeeker, error) {
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(f, 0, size), nil
}

// View is a handle bundle {entry name → File} for one catalog item.
type View struct {
	files map[string]*File
}

// Entry returns the named entry, or nil when absent.
func (v *View) Entry(name string) *File { return v.files[name] }

// Entries lists the entry names in stable order.
func (v *View) Entries() []string {
	names := make([]string, 0, len(v.files))
	for name := range v.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len is the number of entries.
func (v *View) Len() int { return len(v.files) }

// entryURLer lets catalog products hand out their own entry URLs; anything
// else falls back to the generic /entry?name= convention.
type entryURLer interface {
	EntryURL(entry string) string
}

// BuildView assembles a view from a catalog item, optionally restricted to
// entries matching the glob patterns (matched against the full entry name
// and its basename).
func BuildView(ctx context.Context, client *transport.Client, item domain.CatalogItem, patterns []string) (*View, error) {
	entries, err := item.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entries for %s: %w", item.ID(), err)
	}

	files := make(map[string]*File)
	for _, entry := range entries {
		if len(patterns) > 0 && !matchAny(entry, patterns) {
			continue
		}
		files[entry] = &File{
			url:    entryURL(item, entry),
			client: client,
			ctx:    ctx,
		}
	}
	return &View{files: files}, nil
}

func entryURL(item domain.CatalogItem, entry string) string {
	if u, ok := item.(entryURLer); ok {
		return u.EntryURL(entry)
	}
	return item.BaseURL() + "/entry?name=" + url.QueryEscape(entry)
}

func matchAny(entry string, patterns []string) bool {
	base := path.Base(entry)
	for _, pat := range patterns {
		full, _ := path.Match(pat, entry)
		short, _ := path.Match(pat, base)
		if full || short {
			return true
		}
	}
	return false
}
