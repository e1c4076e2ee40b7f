package dbmongo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wayfare/internal/common"
)

// AttachmentStorage keeps message attachments in GridFS. Message rows in
// MySQL carry only the attachment ID; the bytes live here.
type AttachmentStorage struct {
	gridFS *gridfs.Bucket
}

func NewAttachmentStorage(mongoClient *MongoClient) *AttachmentStorage {
	return &AttachmentStorage{
		gridFS: mongoClient.GridFS,
	}
}

type Attachment struct {
	ID         string             `json:"id"`
	Filename   string             `json:"filename"`
	Size       int64              `json:"size"`
	Kind       common.MessageKind `json:"kind"`
	MimeType   string             `json:"mimeType"`
	UploadedBy string             `json:"uploadedBy"`
	UploadedAt time.Time          `json:"uploadedAt"`
}

// KindForMime maps a MIME type onto the message kind the attachment will
// travel as. Anything that is not an image is a generic file.
func KindForMime(mimeType string) common.MessageKind {
	if strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return common.KindImage
	}
	return common.KindFile
}

func (s *AttachmentStorage) Upload(ctx context.Context, filename, mimeType, uploaderID string, content io.Reader) (*Attachment, error) {
	kind := KindForMime(mimeType)

	metadata := bson.M{
		"kind":        string(kind),
		"mime_type":   mimeType,
		"uploaded_by": uploaderID,
		"uploaded_at": time.Now(),
	}

	opts := options.GridFSUpload().SetMetadata(metadata)
	stream, err := s.gridFS.OpenUploadStream(filename, opts)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer stream.Close()

	size, err := io.Copy(stream, content)
	if err != nil {
		return nil, fmt.Errorf("file copy failed: %w", err)
	}

	return &Attachment{
		ID:         stream.FileID.(primitive.ObjectID).Hex(),
		Filename:   filename,
		Size:       size,
		Kind:       kind,
		MimeType:   mimeType,
		UploadedBy: uploaderID,
		UploadedAt: time.Now(),
	}, nil
}

func (s *AttachmentStorage) Download(ctx context.Context, attachmentID string) (io.Reader, *Attachment, error) {
	objectID, err := primitive.ObjectIDFromHex(attachmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid attachment ID: %w", err)
	}

	stream, err := s.gridFS.OpenDownloadStream(objectID)
	if err != nil {
		return nil, nil, fmt.Errorf("download failed: %w", err)
	}

	fileInfo := stream.GetFile()
	var metadata bson.M
	if fileInfo.Metadata != nil {
		bson.Unmarshal(fileInfo.Metadata, &metadata)
	}

	attachment := &Attachment{
		ID:         attachmentID,
		Filename:   fileInfo.Name,
		Size:       fileInfo.Length,
		Kind:       common.MessageKind(getStringFromMap(metadata, "kind")),
		MimeType:   getStringFromMap(metadata, "mime_type"),
		UploadedBy: getStringFromMap(metadata, "uploaded_by"),
		UploadedAt: fileInfo.UploadDate,
	}

	return stream, attachment, nil
}

func (s *AttachmentStorage) Delete(ctx context.Context, attachmentID string) error {
	objectID, err := primitive.ObjectIDFromHex(attachmentID)
	if err != nil {
		return fmt.Errorf("invalid attachment ID: %w", err)
	}
	return s.gridFS.Delete(objectID)
}

func getStringFromMap(m bson.M, key string) string {
	if m == nil {
		return ""
	}
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
