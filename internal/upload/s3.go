package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/intake"
	"github.com/exposerver/exposerver/internal/transfer"
)

// putObjectAPI is the part of the S3 client the transport needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Transport puts each file as one object under bucket/prefix.
type S3Transport struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Transport creates an S3 transport sharing httpClient's connection pool.
// Static keys from cfg take precedence over the default credential chain;
// a custom endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Transport(ctx context.Context, cfg *config.Config, httpClient *nethttp.Client, bucket, prefix string) (*S3Transport, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 target needs a bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// A failed upload is reported, never sent again.
		o.Retryer = aws.NopRetryer{}
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Transport(client, bucket, prefix), nil
}

func newS3Transport(client putObjectAPI, bucket, prefix string) *S3Transport {
	return &S3Transport{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key a file is stored under.
func (t *S3Transport) Key(name string) string {
	if t.prefix == "" {
		return name
	}
	return path.Join(t.prefix, name)
}

// Send implements transfer.Transport.
func (t *S3Transport) Send(ctx context.Context, file intake.File, progress func(sent int64)) (transfer.Response, error) {
	content, err := file.Open()
	if err != nil {
		return transfer.Response{}, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer content.Close()

	var body io.Reader = content
	size := file.Size
	if _, ok := content.(io.ReadSeeker); !ok {
		spooled, n, err := spool(content)
		if err != nil {
			return transfer.Response{}, fmt.Errorf("failed to buffer %s: %w", file.Name, err)
		}
		defer func() {
			spooled.Close()
			os.Remove(spooled.Name())
		}()
		body, size = spooled, n
	}

	key := t.Key(file.Name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   newProgressBody(body, progress),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	out, err := t.client.PutObject(ctx, input)
	if err != nil {
		if resp, ok := s3Rejection(err); ok {
			return resp, nil
		}
		return transfer.Response{}, err
	}

	msg := fmt.Sprintf("File '%s' uploaded to s3://%s/%s.", file.Name, t.bucket, key)
	if out != nil && out.ETag != nil {
		msg += " ETag: " + aws.ToString(out.ETag)
	}
	return transfer.Response{StatusCode: nethttp.StatusOK, Body: msg}, nil
}

// s3Rejection turns an error carrying an HTTP response into a rejected
// upload. The body is the service error message.
func s3Rejection(err error) (transfer.Response, bool) {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) {
		return transfer.Response{}, false
	}

	body := ""
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		body = apiErr.ErrorMessage()
		if body == "" {
			body = apiErr.ErrorCode()
		}
	}
	return transfer.Response{StatusCode: respErr.HTTPStatusCode(), Body: body}, true
}

// spool copies a stream the SDK cannot rewind into a temp file, positioned
// at the start. Without TLS the SDK must hash the payload before sending it.
func spool(r io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp("", "exposerver-s3-*")
	if err != nil {
		return nil, 0, err
	}
	n, err := io.Copy(f, r)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, err
	}
	return f, n, nil
}

// newProgressBody wraps r with byte counting. Seekable readers stay
// seekable so the SDK can compute checksums and rewind on its own retries.
func newProgressBody(r io.Reader, progress func(int64)) io.Reader {
	c := &countingReader{r: r, progress: progress}
	if rs, ok := r.(io.ReadSeeker); ok {
		return &seekingCounter{countingReader: c, seeker: rs}
	}
	return c
}

// seekingCounter is a countingReader whose count follows the read offset.
type seekingCounter struct {
	*countingReader
	seeker io.Seeker
}

func (s *seekingCounter) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.seeker.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	s.sent = pos
	s.eof = false
	return pos, nil
}
