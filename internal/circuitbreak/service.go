package circuitbreak

import "git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"

var CircuitBreakChan chan string

const (
	STTService           = "stt"
	ShiftFeedService     = "shift_feed"
	TwilioService        = "twilio"
	DBService            = "database"
	MinioService         = "minio"
	RedisService         = "redis"
	KafkaProducerService = "kafka_producer"
)

func Init() {
	CircuitBreakChan = make(chan string)
}

func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Fatal("relay app is not created")
	}

	CircuitBreakChan <- service
}
