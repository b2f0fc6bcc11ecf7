package pipeline

import (
	"context"

	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/richardjlyon/ayda/pkg/item"
)

// Uploader uploads one item to the destination service and returns the
// handle identifying the stored document.
type Uploader interface {
	Upload(ctx context.Context, it item.Item) (handle string, err error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, it item.Item) (string, error)

// Upload implements Uploader.
func (f UploaderFunc) Upload(ctx context.Context, it item.Item) (string, error) {
	return f(ctx, it)
}

// Embedder commits uploaded documents into a workspace in one call.
type Embedder interface {
	EmbedBatch(ctx context.Context, workspace string, handles []string) error
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, workspace string, handles []string) error

// EmbedBatch implements Embedder.
func (f EmbedderFunc) EmbedBatch(ctx context.Context, workspace string, handles []string) error {
	return f(ctx, workspace, handles)
}

// Outcome is the result of one upload: a success when Err is nil.
type Outcome struct {
	Item   item.Item
	Handle string
	Err    *failure.UploadError
}

// OK reports whether the upload succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Upload is a successfully uploaded item.
type Upload struct {
	Item   item.Item
	Handle string
}

// Failure is an item that could not be uploaded.
type Failure struct {
	Item item.Item
	Err  *failure.UploadError
}

// BatchResult partitions the outcomes of a run. Every submitted item is in
// exactly one of the two slices.
type BatchResult struct {
	Succeeded []Upload
	Failed    []Failure
}

// Handles returns the destination handles of the successful uploads.
func (r BatchResult) Handles() []string {
	handles := make([]string, 0, len(r.Succeeded))
	for _, u := range r.Succeeded {
		handles = append(handles, u.Handle)
	}
	return handles
}

// Total returns the number of items that produced an outcome.
func (r BatchResult) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}
