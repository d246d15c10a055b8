package backend

import (
	"bytes"
	"context"
	"io"
	"sync"

	"studybuddy-client/internal/domain"
)

// Upload posts file as the multipart "file" field of /upload_pdf.
func (c *Client) Upload(ctx context.Context, file domain.UploadFile, onProgress func(fraction float64)) error {
	body := &progressReader{
		r:          bytes.NewReader(file.Data),
		total:      int64(len(file.Data)),
		onProgress: onProgress,
	}
	resp, err := c.long.R().
		SetContext(ctx).
		SetFileReader("file", file.Name, body).
		Post("/upload_pdf")
	if err := checkResponse("upload "+file.Name, resp, err); err != nil {
		return err
	}
	c.log.Debug("uploaded", "file", file.Name, "bytes", len(file.Data))
	return nil
}

// progressReader reports the fraction of bytes consumed from r.
type progressReader struct {
	r          io.Reader
	total      int64
	onProgress func(float64)

	mu   sync.Mutex
	read int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 && p.onProgress != nil {
		p.mu.Lock()
		p.read += int64(n)
		fraction := float64(p.read) / float64(p.total)
		p.mu.Unlock()
		p.onProgress(fraction)
	}
	return n, err
}
