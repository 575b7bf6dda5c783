package objectclient

import (
	"context"
	"io"
	"path"

	"github.com/markdave123-py/pawls/internal/core"
)

// Archive keeps a copy of every original PDF in one bucket, under
// pdfs/<sha>/<sha>.pdf.
type Archive struct {
	client core.ObjectClient
	bucket string
}

func NewArchive(client core.ObjectClient, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

func Key(sha string) string {
	return path.Join("pdfs", sha, sha+".pdf")
}

func (a *Archive) Put(ctx context.Context, sha string, r io.Reader) (string, error) {
	return a.client.UploadFile(ctx, a.bucket, Key(sha), r, "application/pdf")
}

func (a *Archive) Open(ctx context.Context, sha string) (io.ReadCloser, error) {
	return a.client.GetObjectReader(ctx, a.bucket, Key(sha))
}
