package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/progression"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	m.objects[key] = body
	m.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *memObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

type staticSource []PlayerRecord

func (s staticSource) ExportSeason(context.Context, string, int) ([]PlayerRecord, error) {
	return s, nil
}

type countingFlusher struct{ calls int }

func (f *countingFlusher) FlushAllAndWait(context.Context) error {
	f.calls++
	return nil
}

func TestBackupSeasonRoundTrip(t *testing.T) {
	players := staticSource{{
		PlayerID: uuid.New(),
		Points:   340,
		Tier:     3,
		Quests:   map[string]progression.QuestState{"stone_breaker": {StepIdx: 1}},
		Claims:   []progression.Claim{{Tier: 1}, {Tier: 2, Premium: true}},
		Period:   progression.Period{Daily: 1770076800, Weekly: 4},
	}}
	objects := newMemObjects()
	flusher := &countingFlusher{}
	clk := clock.NewManual(time.Date(2026, 2, 3, 10, 0, 5, 0, time.UTC))
	svc := NewService(players, flusher, objects, database.Always(database.StateOnline), clk, "backups", "/battlepass/")

	key, err := svc.BackupSeason(context.Background(), "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, "battlepass/s1/3/20260203T100005Z.json.zst", key)
	assert.Equal(t, 1, flusher.calls)
	assert.Equal(t, contentType, objects.types["backups/"+key])

	export, err := svc.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "s1", export.ServerID)
	assert.Equal(t, 3, export.Season)
	assert.True(t, clk.Now().Equal(export.ExportedAt))
	assert.Equal(t, []PlayerRecord(players), export.Players)
}

func TestBackupSeasonRefusedWhileOffline(t *testing.T) {
	flusher := &countingFlusher{}
	svc := NewService(staticSource{}, flusher, newMemObjects(), database.Always(database.StateOffline), clock.System(), "backups", "bp")

	_, err := svc.BackupSeason(context.Background(), "s1", 1)
	assert.ErrorIs(t, err, database.ErrOffline)
	assert.Zero(t, flusher.calls)
}

func TestFetchMissingObject(t *testing.T) {
	svc := NewService(staticSource{}, nil, newMemObjects(), database.Always(database.StateOnline), clock.System(), "backups", "bp")
	_, err := svc.Fetch(context.Background(), "bp/s1/1/missing.json.zst")
	assert.Error(t, err)
}
