package healthchecker

import (
	"context"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	minioRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/minio"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/redirect"
	"go.uber.org/zap"
)

const checkTimeout = 10 * time.Second

// healthcheckEvent is a valid but ignorable payload: consumers parse it, see
// an unknown event type, and drop it without dead-lettering.
var healthcheckEvent = []byte(`{"eventType":"healthcheck"}`)

func CheckDB() bool {
	_, err := database.NewDatabase()
	return err == nil
}

func CheckMinio() bool {
	client, err := minioRelay.NewMinioClient(
		config.Conf.MinioAccessKey,
		config.Conf.MinioSecretKey,
		config.Conf.MinioBucketName,
		config.Conf.MinioPathPrefix,
	)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	_, err = client.Client.BucketExists(ctx, config.Conf.MinioBucketName)

	return err == nil
}

func CheckKafkaProducer() bool {
	kafkaProducer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("failed to create new kafka producer client", zap.String("error", err.Error()))
		return false
	}
	defer kafkaProducer.Close()

	_, _, err = kafkaProducer.SendMessage(
		config.Conf.KafkaRadioEventsTopic,
		[]byte("healthcheck"),
		healthcheckEvent,
	)

	return err == nil
}

func CheckRedis() bool {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	store, err := redirect.NewStore(ctx)
	if err != nil {
		return false
	}
	defer store.Close()

	return true
}

func CheckSTT() bool {
	return checkHTTP(config.Conf.STTBaseUrl)
}

func CheckShiftFeed() bool {
	return checkHTTP(config.Conf.ShiftFeedBaseUrl)
}

func CheckTwilio() bool {
	return checkHTTP("https://api.twilio.com")
}

// checkHTTP reports reachability only; any HTTP response, auth failures
// included, means the service is back.
func checkHTTP(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return true
}
