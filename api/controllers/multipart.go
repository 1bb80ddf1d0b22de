package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/moyoez/bill2sheet/types"
)

// ImagesField is the multipart field that carries upload images.
const ImagesField = "images"

var (
	errNotMultipart = errors.New("request must be multipart/form-data")
	errNoFiles      = errors.New("no files uploaded")
)

// batch is the result of reading a whole upload request.
type batch struct {
	units []*types.FileUnit
	// number of image parts seen, including those past the file limit
	count int
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// readBatch reads every image part into memory. Parts past maxFiles are counted and
// discarded so the count error can report the real number. At most maxFileSize bytes of
// a part are kept (0 keeps everything); the rest is counted and dropped.
func readBatch(ctx context.Context, r *http.Request, maxFiles int, maxFileSize int64) (batch, error) {
	var b batch
	if !isMultipart(r) {
		return b, errNotMultipart
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return b, fmt.Errorf("open multipart: %w", err)
	}
	for {
		part, err := reader.NextPart()
		// a truncated body wraps io.EOF; only the bare value marks the final boundary
		if err == io.EOF {
			return b, nil
		}
		if err != nil {
			return b, fmt.Errorf("next part: %w", err)
		}
		if part.FormName() != ImagesField {
			_, err = copyWithContext(ctx, io.Discard, part)
			part.Close()
			if err != nil {
				return b, fmt.Errorf("skip field %s: %w", part.FormName(), err)
			}
			continue
		}
		b.count++
		if b.count > maxFiles {
			_, err = copyWithContext(ctx, io.Discard, part)
			part.Close()
			if err != nil {
				return b, fmt.Errorf("skip file %d: %w", b.count, err)
			}
			continue
		}
		unit, err := readPart(ctx, part, maxFileSize)
		part.Close()
		if err != nil {
			return b, fmt.Errorf("read file %d: %w", b.count, err)
		}
		b.units = append(b.units, unit)
	}
}

func readPart(ctx context.Context, part *multipart.Part, keep int64) (*types.FileUnit, error) {
	buf := &cappedBuffer{limit: keep}
	n, err := copyWithContext(ctx, buf, part)
	if err != nil {
		return nil, err
	}
	unit := &types.FileUnit{
		Name:      part.FileName(),
		SizeBytes: n,
		Content:   buf.Bytes(),
	}
	if declared, err := strconv.ParseInt(part.Header.Get("Content-Length"), 10, 64); err == nil {
		unit.Declared = declared
	}
	return unit, nil
}

// cappedBuffer keeps the first limit bytes written to it and accepts the rest without
// storing it. A part over the limit is rejected on its measured size alone.
type cappedBuffer struct {
	bytes.Buffer
	limit int64
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := len(p)
	if b.limit > 0 {
		room = int(min(int64(room), max(b.limit-int64(b.Len()), 0)))
	}
	if room > 0 {
		b.Buffer.Write(p[:room])
	}
	return len(p), nil
}

// copyWithContext copies from src to dst, checking ctx between reads.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if writeErr == nil {
					writeErr = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
