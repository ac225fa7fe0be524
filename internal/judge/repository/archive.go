package repository

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/common/storage"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const (
	archiveContentType = "application/zstd"
	archiveJudgment    = "judgment.json"
	archiveSourcePfx   = "source."
	// maxArchiveEntry bounds a single entry when reading an archive back.
	maxArchiveEntry = 8 << 20
)

// ArtifactArchive stores an audit copy of each finished submission as a zstd-compressed
// tarball holding the source and the full judgment.
type ArtifactArchive struct {
	storage storage.ObjectStorage
	bucket  string
}

// NewArtifactArchive creates an archive writing into bucket.
func NewArtifactArchive(objectStorage storage.ObjectStorage, bucket string) *ArtifactArchive {
	return &ArtifactArchive{storage: objectStorage, bucket: bucket}
}

// ArchiveKey returns the object key of a submission's archive.
func ArchiveKey(sub *model.Submission) string {
	created := sub.CreatedAt.UTC()
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return fmt.Sprintf("submissions/%s/%s.tar.zst", created.Format("2006/01/02"), sub.ID)
}

// Archive uploads the submission and returns its object key.
func (a *ArtifactArchive) Archive(ctx context.Context, sub *model.Submission) (string, error) {
	if a == nil || a.storage == nil {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("archive storage is not configured")
	}
	if sub == nil || sub.ID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	key := ArchiveKey(sub)
	// A retried finalize must not rewrite an archive that already records this verdict.
	if stat, err := a.storage.StatObject(ctx, a.bucket, key); err == nil && metadataValue(stat.Metadata, "status") == string(sub.Status) {
		return key, nil
	}
	payload, err := encodeArchive(sub)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "encode archive failed")
	}
	metadata := map[string]string{
		"submission-id": sub.ID,
		"problem-id":    sub.ProblemID,
		"language":      sub.Language,
		"status":        string(sub.Status),
	}
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), archiveContentType, metadata); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "upload archive failed")
	}
	return key, nil
}

// Load reads an archive back into a submission, including its source.
func (a *ArtifactArchive) Load(ctx context.Context, key string) (*model.Submission, error) {
	if a == nil || a.storage == nil {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("archive storage is not configured")
	}
	body, err := a.storage.GetObject(ctx, a.bucket, key)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "download archive failed")
	}
	defer body.Close()
	sub, err := decodeArchive(body)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "decode archive failed")
	}
	return sub, nil
}

// metadataValue looks a key up case-insensitively; S3 servers canonicalize user metadata keys.
func metadataValue(md map[string]string, key string) string {
	for k, v := range md {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func encodeArchive(sub *model.Submission) ([]byte, error) {
	meta := *sub
	meta.Code = ""
	judgment, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(zw)
	modTime := time.Now()
	if sub.FinishedAt != nil {
		modTime = *sub.FinishedAt
	}
	entries := []struct {
		name string
		data []byte
	}{
		{name: archiveJudgment, data: judgment},
		{name: archiveSourcePfx + sub.Language, data: []byte(sub.Code)},
	}
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.data)), ModTime: modTime}
		if err := tw.WriteHeader(hdr); err != nil {
			zw.Close()
			return nil, err
		}
		if _, err := tw.Write(e.data); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeArchive(r io.Reader) (*model.Submission, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var (
		sub    *model.Submission
		source []byte
	)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxArchiveEntry))
		if err != nil {
			return nil, err
		}
		switch {
		case hdr.Name == archiveJudgment:
			sub = &model.Submission{}
			if err := json.Unmarshal(data, sub); err != nil {
				return nil, err
			}
		case strings.HasPrefix(hdr.Name, archiveSourcePfx):
			source = data
		}
	}
	if sub == nil {
		return nil, fmt.Errorf("archive has no %s", archiveJudgment)
	}
	sub.Code = string(source)
	return sub, nil
}
