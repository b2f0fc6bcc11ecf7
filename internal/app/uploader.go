package app

import (
	"context"
	"fmt"

	"github.com/richardjlyon/ayda/pkg/anythingllm"
	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/richardjlyon/ayda/pkg/item"
)

// FileUploader uploads a local file and returns the stored document.
type FileUploader interface {
	UploadFile(ctx context.Context, path string) (anythingllm.Document, error)
}

// ItemUploader uploads the file an item references, resolved against Root.
// It implements pipeline.Uploader; the handle is the document location.
type ItemUploader struct {
	Root  string
	Files FileUploader
}

// Upload implements pipeline.Uploader.
func (u *ItemUploader) Upload(ctx context.Context, it item.Item) (string, error) {
	if !it.HasFile() {
		return "", &failure.UploadError{Kind: failure.KindNotFound, Message: "item has no file"}
	}
	path, ok := it.Path(u.Root)
	if !ok {
		return "", &failure.UploadError{
			Kind:    failure.KindIO,
			Message: fmt.Sprintf("file reference %q is outside %s", it.File, u.Root),
		}
	}

	doc, err := u.Files.UploadFile(ctx, path)
	if err != nil {
		return "", failure.Upload(err)
	}
	return doc.Location, nil
}
