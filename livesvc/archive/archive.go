package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/progression"
)

const contentType = "application/zstd"

// PlayerRecord is every stored row of one player for a season.
type PlayerRecord struct {
	PlayerID uuid.UUID                         `json:"player_id"`
	Points   int64                             `json:"points"`
	Tier     int                               `json:"tier"`
	Quests   map[string]progression.QuestState `json:"quests,omitempty"`
	Claims   []progression.Claim               `json:"claims,omitempty"`
	Period   progression.Period                `json:"period"`
}

type Export struct {
	ServerID   string         `json:"server_id"`
	Season     int            `json:"season"`
	ExportedAt time.Time      `json:"exported_at"`
	Players    []PlayerRecord `json:"players"`
}

// Source reads a whole season partition.
type Source interface {
	ExportSeason(ctx context.Context, serverID string, season int) ([]PlayerRecord, error)
}

// Flusher writes pending in-memory progress before an export.
type Flusher interface {
	FlushAllAndWait(ctx context.Context) error
}

// ObjectStore is the part of *s3.Client the archive uses.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	Endpoint string
	Region   string
	Key      string
	Secret   string
}

// NewS3Client builds a client for AWS or any S3-compatible endpoint. A custom
// endpoint switches to path-style addressing.
func NewS3Client(ctx context.Context, opts Options) (*s3.Client, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.Key != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.Key, opts.Secret, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type Service struct {
	source  Source
	flusher Flusher
	objects ObjectStore
	state   database.StateReporter
	clock   clock.Clock
	bucket  string
	prefix  string
}

func NewService(source Source, flusher Flusher, objects ObjectStore, state database.StateReporter, clk clock.Clock, bucket, prefix string) *Service {
	return &Service{
		source:  source,
		flusher: flusher,
		objects: objects,
		state:   state,
		clock:   clk,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
	}
}

// ObjectKey is <prefix>/<server>/<season>/<timestamp>.json.zst.
func (s *Service) ObjectKey(serverID string, season int, at time.Time) string {
	name := at.UTC().Format("20060102T150405Z") + ".json.zst"
	return path.Join(s.prefix, serverID, strconv.Itoa(season), name)
}

// BackupSeason flushes live progress, then uploads a compressed export of the
// season and returns its object key. It refuses to run while the store is
// offline.
func (s *Service) BackupSeason(ctx context.Context, serverID string, season int) (string, error) {
	if !database.Online(s.state) {
		return "", database.ErrOffline
	}
	if s.flusher != nil {
		if err := s.flusher.FlushAllAndWait(ctx); err != nil {
			return "", fmt.Errorf("failed to flush before backup: %w", err)
		}
	}

	players, err := s.source.ExportSeason(ctx, serverID, season)
	if err != nil {
		return "", fmt.Errorf("failed to read season: %w", err)
	}
	now := s.clock.Now()
	payload, err := encode(Export{ServerID: serverID, Season: season, ExportedAt: now.UTC(), Players: players})
	if err != nil {
		return "", err
	}

	key := s.ObjectKey(serverID, season, now)
	start := time.Now()
	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}

	slog.Info("Season backup uploaded",
		slog.String("type", "sys"),
		slog.String("key", key),
		slog.Int("players", len(players)),
		slog.Int("bytes", len(payload)),
		slog.Duration("took", time.Since(start)))
	return key, nil
}

// Fetch downloads and decodes a backup written by BackupSeason.
func (s *Service) Fetch(ctx context.Context, key string) (*Export, error) {
	out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download backup: %w", err)
	}
	defer out.Body.Close()
	return decode(out.Body)
}

func encode(e Export) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(e); err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress backup: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(r io.Reader) (*Export, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer dec.Close()

	var e Export
	if err := json.NewDecoder(dec).Decode(&e); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	return &e, nil
}
