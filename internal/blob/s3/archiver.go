package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// ReportArchiver implements domain.ReportArchiver by uploading each
// terminated execution report as a JSON object, partitioned by day. The
// primary store keeps the queryable copy; the archive is the audit trail.
type ReportArchiver struct {
	client   *Client
	uploader *manager.Uploader
}

// NewReportArchiver creates a ReportArchiver writing through the given
// client. Uploads go through the S3 upload manager so large report bodies
// are split into parts transparently.
func NewReportArchiver(client *Client) *ReportArchiver {
	return &ReportArchiver{
		client:   client,
		uploader: manager.NewUploader(client.S3()),
	}
}

// Archive uploads one report to reports/YYYY/MM/DD/<id>.json.
func (a *ReportArchiver) Archive(ctx context.Context, report domain.ExecutionReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("s3blob: marshal report %s: %w", report.ID, err)
	}

	key := reportKey(report)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.Bucket()),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload report %s: %w", report.ID, err)
	}
	return nil
}

// reportKey builds the S3 key for a report, partitioned by the day the
// execution completed.
//
//	reports/2026/08/29/3f1c9a4e-....json
func reportKey(report domain.ExecutionReport) string {
	day := report.CompletedAt.UTC()
	if day.IsZero() {
		day = time.Now().UTC()
	}
	return fmt.Sprintf("reports/%s/%s.json", day.Format("2006/01/02"), report.ID)
}

// Compile-time interface check.
var _ domain.ReportArchiver = (*ReportArchiver)(nil)
