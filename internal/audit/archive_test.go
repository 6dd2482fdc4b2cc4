package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealkeep/sessionvault/internal/model"
)

type fakeMinioAPI struct {
	bucketExists bool
	existsErr    error
	madeBucket   string
	putErr       error

	putBucket string
	putKey    string
	putBody   []byte
}

func (f *fakeMinioAPI) BucketExists(_ context.Context, bucketName string) (bool, error) {
	return f.bucketExists, f.existsErr
}

func (f *fakeMinioAPI) MakeBucket(_ context.Context, bucketName string, _ minio.MakeBucketOptions) error {
	f.madeBucket = bucketName
	return nil
}

func (f *fakeMinioAPI) PutObject(_ context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.putBucket = bucketName
	f.putKey = objectName
	f.putBody = body
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func TestNewArchiveSink_CreatesMissingBucket(t *testing.T) {
	api := &fakeMinioAPI{bucketExists: false}

	_, err := NewArchiveSinkWithAPI(context.Background(), api, "audit-events")
	require.NoError(t, err)
	assert.Equal(t, "audit-events", api.madeBucket)
}

func TestNewArchiveSink_KeepsExistingBucket(t *testing.T) {
	api := &fakeMinioAPI{bucketExists: true}

	_, err := NewArchiveSinkWithAPI(context.Background(), api, "audit-events")
	require.NoError(t, err)
	assert.Empty(t, api.madeBucket)
}

func TestNewArchiveSink_BucketCheckFailure(t *testing.T) {
	api := &fakeMinioAPI{existsErr: errors.New("connection refused")}

	_, err := NewArchiveSinkWithAPI(context.Background(), api, "audit-events")
	require.Error(t, err)
}

func TestArchiveSink_EmitWritesDatePartitionedJSON(t *testing.T) {
	api := &fakeMinioAPI{bucketExists: true}
	s, err := NewArchiveSinkWithAPI(context.Background(), api, "audit-events")
	require.NoError(t, err)

	event := model.AuditEvent{
		Timestamp:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		PrincipalID: uuid.New(),
		Action:      model.AuditSuspiciousReuse,
		Resource:    "refresh_token",
		ResourceID:  uuid.NewString(),
		Metadata:    map[string]string{"family_id": uuid.NewString()},
	}
	require.NoError(t, s.Emit(context.Background(), event))

	assert.Equal(t, "audit-events", api.putBucket)
	assert.True(t, strings.HasPrefix(api.putKey, "2026/03/14/092653-"), "got key %q", api.putKey)
	assert.True(t, strings.HasSuffix(api.putKey, ".json"))

	var decoded model.AuditEvent
	require.NoError(t, json.Unmarshal(api.putBody, &decoded))
	assert.Equal(t, event.Action, decoded.Action)
	assert.Equal(t, event.PrincipalID, decoded.PrincipalID)
	assert.Equal(t, event.Metadata, decoded.Metadata)
}

func TestArchiveSink_EmitPutFailure(t *testing.T) {
	api := &fakeMinioAPI{bucketExists: true, putErr: errors.New("slow down")}
	s, err := NewArchiveSinkWithAPI(context.Background(), api, "audit-events")
	require.NoError(t, err)

	err = s.Emit(context.Background(), model.AuditEvent{Timestamp: time.Now(), Action: model.AuditTokenRotated})
	require.Error(t, err)
}
