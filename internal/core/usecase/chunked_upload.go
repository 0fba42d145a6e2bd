package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

// UploadProgress is called after every acknowledged part.
type UploadProgress func(part, totalParts int, uploaded, size int64)

// ChunkedUploader moves one file through init, sequential parts and complete.
// Parts are never sent concurrently and a failed part aborts the transfer.
type ChunkedUploader struct {
	api      ports.ChunkUploadAPI
	partSize int64
	observer ports.PipelineObserver
}

func NewChunkedUploader(api ports.ChunkUploadAPI, partSize int64, observer ports.PipelineObserver) *ChunkedUploader {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &ChunkedUploader{api: api, partSize: partSize, observer: observer}
}

func (u *ChunkedUploader) Upload(ctx context.Context, file domain.FileSource, progress UploadProgress) (*ports.CompleteUploadResponse, error) {
	size := file.Size()
	if size <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunked upload", fmt.Errorf("%s is empty", file.Name()))
	}

	initResp, err := u.api.InitUpload(ctx, file.Name(), file.ContentType(), size, u.partSize)
	if err != nil {
		return nil, fmt.Errorf("init upload: %w", err)
	}
	session := domain.ChunkUploadSession{UploadID: initResp.UploadID, PartSize: initResp.PartSize}
	if session.PartSize <= 0 {
		session.PartSize = u.partSize
	}
	session.TotalParts, err = domain.TotalPartsFor(size, session.PartSize)
	if err != nil {
		return nil, err
	}

	body, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name(), err)
	}
	defer body.Close()

	if err := u.sendParts(ctx, &session, body, size, progress); err != nil {
		return nil, err
	}
	if err := ensureDrained(body); err != nil {
		return nil, err
	}
	if session.Uploaded != size {
		return nil, integrityError(fmt.Errorf("uploaded %d bytes, declared %d", session.Uploaded, size))
	}

	done, err := u.api.CompleteUpload(ctx, session.UploadID, session.TotalParts, size)
	if err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}
	if done.Bytes != size {
		return nil, integrityError(fmt.Errorf("server stored %d bytes, declared %d", done.Bytes, size))
	}
	if done.FileKey == "" {
		return nil, integrityError(errors.New("server returned no file key"))
	}
	return done, nil
}

func (u *ChunkedUploader) sendParts(ctx context.Context, session *domain.ChunkUploadSession, body io.Reader, size int64, progress UploadProgress) error {
	buf := make([]byte, session.PartSize)
	for part := 1; part <= session.TotalParts; part++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload part %d: %w", part, err)
		}
		want := session.PartSize
		if rest := size - session.Uploaded; rest < want {
			want = rest
		}
		n, err := io.ReadFull(body, buf[:want])
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return integrityError(fmt.Errorf("file ended after %d of %d bytes", session.Uploaded+int64(n), size))
			}
			return fmt.Errorf("read part %d: %w", part, err)
		}

		ack, err := u.api.UploadPart(ctx, session.UploadID, part, buf[:n])
		if err != nil {
			return fmt.Errorf("upload part %d/%d: %w", part, session.TotalParts, err)
		}
		if !ack.OK {
			return integrityError(fmt.Errorf("part %d rejected", part))
		}
		if ack.Bytes != int64(n) {
			return integrityError(fmt.Errorf("part %d acknowledged %d of %d bytes", part, ack.Bytes, n))
		}

		session.Uploaded += int64(n)
		u.observer.ChunkUploaded(int64(n))
		slog.Debug("chunk_part_uploaded",
			"upload_id", session.UploadID,
			"part", part,
			"total_parts", session.TotalParts,
			"uploaded", session.Uploaded,
		)
		if progress != nil {
			progress(part, session.TotalParts, session.Uploaded, size)
		}
	}
	return nil
}

func ensureDrained(body io.Reader) error {
	var extra [1]byte
	n, err := body.Read(extra[:])
	if n > 0 {
		return integrityError(errors.New("file is longer than its declared size"))
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read file tail: %w", err)
	}
	return nil
}

func integrityError(err error) error {
	return domain.WrapError(domain.ErrUploadIntegrity, "chunked upload", err)
}
