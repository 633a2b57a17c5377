package storage

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "studysync-backend/internal/config"
)

// S3Service S3 업로드/다운로드 서비스
type S3Service struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	region        string
	presignExpiry time.Duration
}

// PresignedUpload 업로드용 Presigned URL 정보
type PresignedUpload struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewS3Service S3Service 생성
func NewS3Service(cfg appconfig.S3Config) (*S3Service, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)

	log.Printf("[S3] Service ready (bucket: %s, region: %s)", cfg.BucketName, cfg.Region)
	return &S3Service{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.BucketName,
		region:        cfg.Region,
		presignExpiry: cfg.PresignExpiry,
	}, nil
}

// GenerateUploadURL 파일 업로드용 Presigned PUT URL 생성
func (s *S3Service) GenerateUploadURL(roomCode, fileName, contentType string) (*PresignedUpload, error) {
	key := buildObjectKey(roomCode, fileName)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &PresignedUpload{
		URL:       req.URL,
		Key:       key,
		ExpiresAt: time.Now().Add(s.presignExpiry),
	}, nil
}

// GetDownloadURL 파일 다운로드용 Presigned GET URL 생성
func (s *S3Service) GetDownloadURL(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}

	return req.URL, nil
}

// GetPublicURL 객체의 고정 URL 반환
func (s *S3Service) GetPublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// DeleteObject S3 객체 삭제. 실패는 로그만 남긴다 (레지스트리가 진실이고
// 고아 객체는 수명 주기 규칙이 걷어낸다).
func (s *S3Service) DeleteObject(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Printf("[S3] Failed to delete object %s: %v", key, err)
	}
}

// buildObjectKey 방 코드와 파일명으로 충돌 없는 객체 키 생성
func buildObjectKey(roomCode, fileName string) string {
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(path.Base(fileName), ext)
	base = sanitizeKeyPart(base)
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("rooms/%s/%s-%s%s", roomCode, base, uuid.New().String(), ext)
}

func sanitizeKeyPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
