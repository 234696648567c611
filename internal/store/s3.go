package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dkeye/Inkroom/internal/config"
	"github.com/google/uuid"
)

// s3API is the subset of *s3.Client the store calls.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 keeps each drawing as <prefix>drawings/<id>.json and a small listing
// record at <prefix>users/<user>/<id>.json.
type S3 struct {
	client s3API
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3(cfg config.S3) *S3 {
	key, secret := cfg.AccessKey, cfg.SecretKey
	if key == "" {
		key, secret = os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: key, SecretAccessKey: secret, Source: "inkroom"}, nil
		}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return newS3WithClient(s3.New(opts), cfg.Bucket, cfg.Prefix)
}

func newS3WithClient(client s3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

func (s *S3) drawingKey(id string) string {
	return path.Join(s.prefix, "drawings", id+".json")
}

func (s *S3) userPrefix(userID string) string {
	return path.Join(s.prefix, "users", userID) + "/"
}

func (s *S3) put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3) Save(ctx context.Context, d Drawing) (string, error) {
	if err := prepare(&d, s.now()); err != nil {
		return "", err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else if _, err := s.Get(ctx, d.ID); err != nil {
		return "", err
	}
	body, err := d.MarshalBinary()
	if err != nil {
		return "", err
	}
	if err := s.put(ctx, s.drawingKey(d.ID), body); err != nil {
		return "", err
	}
	info, err := d.Info().MarshalBinary()
	if err != nil {
		return "", err
	}
	if err := s.put(ctx, s.userPrefix(d.UserID)+d.ID+".json", info); err != nil {
		return "", err
	}
	return d.ID, nil
}

func (s *S3) Get(ctx context.Context, id string) (Drawing, error) {
	data, err := s.get(ctx, s.drawingKey(id))
	if err != nil {
		return Drawing{}, err
	}
	var d Drawing
	if err := d.UnmarshalBinary(data); err != nil {
		return Drawing{}, fmt.Errorf("decode drawing %s: %w", id, err)
	}
	return d, nil
}

func (s *S3) Load(ctx context.Context, id string) ([]byte, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Image, nil
}

func (s *S3) List(ctx context.Context, userID string) ([]DrawingInfo, error) {
	out := make([]DrawingInfo, 0)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.userPrefix(userID)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", userID, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			data, err := s.get(ctx, key)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			var info DrawingInfo
			if err := info.UnmarshalBinary(data); err != nil {
				return nil, fmt.Errorf("decode listing %s: %w", key, err)
			}
			out = append(out, info)
		}
	}
	sortInfos(out)
	return out, nil
}

func (s *S3) Delete(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, key := range []string{s.drawingKey(id), s.userPrefix(d.UserID) + id + ".json"} {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("s3 delete %s: %w", key, err)
		}
	}
	return nil
}
