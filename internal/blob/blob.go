/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "inspections/"

// S3Uploader stores inspection images in an S3 compatible bucket.
type S3Uploader struct {
	client        *s3.Client
	bucket        string
	region        string
	endpoint      string
	publicBaseURL string
}

// NewS3Uploader builds an uploader from the storage configuration. A custom
// endpoint switches to path-style addressing for S3 compatible stores.
func NewS3Uploader(ctx context.Context, cnf config.StorageConfig) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cnf.Region)}
	if cnf.AccessKeyId != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cnf.AccessKeyId, cnf.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(cnf.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		client:        client,
		bucket:        cnf.Bucket,
		region:        cnf.Region,
		endpoint:      endpoint,
		publicBaseURL: strings.TrimRight(cnf.PublicBaseURL, "/"),
	}, nil
}

// UploadImage stores data under a key derived from fileName and the content
// hash, so uploading the same image twice writes the same object.
func (u *S3Uploader) UploadImage(ctx context.Context, data []byte, fileName string) (string, error) {
	key := ObjectKey(fileName, data)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrRemoteUnavailable, "Failed to upload image", err)
	}

	logrus.WithFields(logrus.Fields{"bucket": u.bucket, "key": key}).Debug("image uploaded")
	return u.URL(key), nil
}

// URL returns where an uploaded key can be fetched from.
func (u *S3Uploader) URL(key string) string {
	switch {
	case u.publicBaseURL != "":
		return u.publicBaseURL + "/" + key
	case u.endpoint != "":
		return fmt.Sprintf("%s/%s/%s", u.endpoint, u.bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
	}
}

// ObjectKey derives the object key for an image.
func ObjectKey(fileName string, data []byte) string {
	sum := sha256.Sum256(data)
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(path.Base(fileName), ext)
	return fmt.Sprintf("%s%s-%s%s", keyPrefix, base, hex.EncodeToString(sum[:8]), ext)
}

// DecodeImage decodes an inline image reference, either a base64 data URL or
// bare base64, and returns its bytes with a file extension for its type.
func DecodeImage(ref string) ([]byte, string, error) {
	payload := ref
	mimeType := ""
	if strings.HasPrefix(ref, "data:") {
		comma := strings.IndexByte(ref, ',')
		if comma < 0 {
			return nil, "", errors.New("malformed data url")
		}
		meta := ref[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("data url is not base64 encoded")
		}
		mimeType = strings.TrimSuffix(meta, ";base64")
		payload = ref[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty image")
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, extensionFor(mimeType), nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
