package minio

import (
	"context"
	"net/url"
	"path/filepath"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	prometheusRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/prometheus"
	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type MinioClient struct {
	Client         *minio.Client
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	BucketName     string
	PathPrefix     string
}

// NewMinioClient initializes a MinIO client with secure HTTPS connection
func NewMinioClient(accessKey, secretKey, bucketName, pathPrefix string) (*MinioClient, error) {
	endpointURL := config.Conf.MinioEndpointURL

	client, err := minio.New(endpointURL, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: true,
	})
	if err != nil {
		logging.Logger.Error("Failed to initialize MinIO client",
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to MinIO",
		zap.String("endpoint", endpointURL),
		zap.String("bucket", bucketName),
	)

	return &MinioClient{
		Client:         client,
		CircuitBreaker: newCircuitBreaker(),
		BucketName:     bucketName,
		PathPrefix:     pathPrefix,
	}, nil
}

func newCircuitBreaker() *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "minio",
		Interval: time.Duration(config.Conf.MinioIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.MinioConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn(
				"Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.MinioService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

// Remove deletes an object with retry. Removing a key that is already gone is
// not an error; duplicate resolution and remove-events may race on the same
// blob.
func (m *MinioClient) Remove(ctx context.Context, objectKey string) error {
	_, err := m.CircuitBreaker.Execute(func() (any, error) {
		return nil, m.doRemove(ctx, objectKey)
	})

	return err
}

// PresignedGetURL returns a time-limited download link for a recording,
// embedded in outbound page bodies.
func (m *MinioClient) PresignedGetURL(ctx context.Context, objectKey string) (string, error) {
	result, err := m.CircuitBreaker.Execute(func() (any, error) {
		expiry := time.Duration(config.Conf.MinioLinkTTLMinutes) * time.Minute

		u, err := m.Client.PresignedGetObject(ctx, m.BucketName, m.getKey(objectKey), expiry, url.Values{})
		if err != nil {
			logging.Logger.Error("MinIO presign failed",
				zap.String("object_key", objectKey),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return u.String(), nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (m *MinioClient) doRemove(ctx context.Context, objectKey string) error {
	timer := prometheus.NewTimer(prometheusRelay.MinioOperationDuration.WithLabelValues("remove"))
	defer timer.ObserveDuration()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.MinioTimeout)*time.Second)
	defer cancel()

	err := retry.Do(
		func() error {
			err := m.Client.RemoveObject(
				ctxWithTimeout,
				m.BucketName,
				m.getKey(objectKey),
				minio.RemoveObjectOptions{},
			)
			if err != nil {
				logging.Logger.Error("MinIO remove failed",
					zap.String("object_key", objectKey),
					zap.String("error", err.Error()),
				)

				return err
			}

			logging.Logger.Info("MinIO remove completed successfully",
				zap.String("object_key", objectKey),
			)

			return nil
		},
		retry.Attempts(config.Conf.MinioMaxRetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.MinioRetryBackoffMinSeconds)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.MinioRetryBackoffMaxSeconds)*time.Second),
	)
	if err != nil {
		logging.Logger.Error("MinIO remove failed after all retry attempts",
			zap.String("object_key", objectKey),
			zap.String("error", err.Error()),
		)

		return err
	}

	return nil
}

func (m *MinioClient) getKey(objectKey string) string {
	return filepath.Join(m.PathPrefix, objectKey)
}
