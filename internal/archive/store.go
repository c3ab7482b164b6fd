// Package archive keeps expired leads in S3 after they leave the marketplace.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/accessmod/lead-marketplace/internal/leads"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives expired leads to S3. With no bucket every call is a no-op.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

var _ leads.Archiver = (*Store)(nil)

func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:   bucket,
		s3Client: s3Client,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveExpired writes the lead as JSON and appends it to the monthly manifest.
// The homeowner id is hashed and free-text notes are scrubbed.
func (s *Store) ArchiveExpired(ctx context.Context, lead *leads.Lead) error {
	if !s.Enabled() || lead == nil {
		return nil
	}

	now := s.now()
	archived := lead.Clone()
	archived.HomeownerID = ""
	notes := make([]leads.Note, len(archived.Notes))
	for i, n := range archived.Notes {
		n.Text = ScrubPII(n.Text)
		notes[i] = n
	}
	archived.Notes = nil

	record := ExpiredLeadRecord{
		Version:       recordVersion,
		ArchivedAt:    now,
		HomeownerHash: HashID(lead.HomeownerID),
		Lead:          archived,
		Notes:         notes,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := fmt.Sprintf("leads/expired/v1/by-date/%d/%02d/%02d/%s.json", now.Year(), now.Month(), now.Day(), lead.ID)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.ForLead(lead.ID).Info("archived expired lead", "s3_key", key)

	entry := ManifestEntry{
		LeadID:       lead.ID,
		S3Key:        key,
		LeadType:     lead.LeadType,
		Location:     lead.Location,
		LeadScore:    lead.LeadScore,
		Price:        lead.Price,
		ContractorID: lead.ContractorID,
		BudgetMax:    lead.EstimatedBudgetMax,
		ArchivedAt:   now.Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// the record itself is already stored
		s.logger.Warn("failed to append manifest", "error", err, "lead_id", lead.ID)
	}
	return nil
}

// AppendManifest adds a JSONL line to the monthly manifest with a
// read-modify-write, since S3 objects cannot be appended to.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now()
	manifestKey := fmt.Sprintf("leads/expired/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}
