package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gocloud.dev/blob"

	"github.com/kode4food/argyll/worker/pkg/api"
)

type (
	// RunArchive writes the final result of each finished run to a bucket
	RunArchive struct {
		bucket BucketWriter
		prefix string
		now    func() time.Time
	}

	// BucketWriter is the part of a blob bucket the archive writes through
	BucketWriter interface {
		WriteAll(context.Context, string, []byte, *blob.WriterOptions) error
	}

	archiveObject struct {
		RunID      string         `json:"run_id"`
		Status     api.RunStatus  `json:"status"`
		ArchivedAt time.Time      `json:"archived_at"`
		Result     *api.RunResult `json:"result"`
	}
)

const archiveContentType = "application/json"

var (
	ErrBucketRequired    = errors.New("bucket is required")
	ErrRunResultRequired = errors.New("run result is required")
)

// NewRunArchive creates an archive writing under prefix in bucket
func NewRunArchive(bucket BucketWriter, prefix string) (*RunArchive, error) {
	if bucket == nil {
		return nil, ErrBucketRequired
	}
	return &RunArchive{
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Archive stores res under its run ID. Runs that are still in progress are
// not archived
func (a *RunArchive) Archive(ctx context.Context, res *api.RunResult) error {
	if res == nil {
		return ErrRunResultRequired
	}
	if !res.Status.IsTerminal() {
		return nil
	}

	data, err := json.Marshal(&archiveObject{
		RunID:      res.RunID,
		Status:     res.Status,
		ArchivedAt: a.now().UTC(),
		Result:     res,
	})
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, ArchiveKey(a.prefix, res.RunID), data,
		&blob.WriterOptions{ContentType: archiveContentType},
	)
}

// ArchiveKey returns the bucket key of an archived run
func ArchiveKey(prefix, runID string) string {
	if prefix == "" {
		return runID + ".json"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + runID + ".json"
}
