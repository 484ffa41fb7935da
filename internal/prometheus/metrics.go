package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	messageDurationBucketStart  = 0.05
	messageDurationBucketFactor = 2.0
	messageDurationBucketCount  = 14
)

const (
	uploadLatencyBucketStart  = 1.0
	uploadLatencyBucketFactor = 2.0
	uploadLatencyBucketCount  = 12
)

const (
	pageToTranscriptBucketStart  = 5.0
	pageToTranscriptBucketFactor = 2.0
	pageToTranscriptBucketCount  = 10
)

var ProcessMessageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "process_message_duration_seconds",
		Help: "Time taken to process one queue message",
		Buckets: prometheus.ExponentialBuckets(
			messageDurationBucketStart,
			messageDurationBucketFactor,
			messageDurationBucketCount,
		),
	},
	[]string{"topic"},
)

var CallsIngested = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "calls_ingested_total",
		Help: "Call records written from object-store create events",
	},
)

var UploadLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "upload_latency_seconds",
		Help: "Delay between a transmission ending and its recording landing in the object store",
		Buckets: prometheus.ExponentialBuckets(
			uploadLatencyBucketStart,
			uploadLatencyBucketFactor,
			uploadLatencyBucketCount,
		),
	},
)

var PageToTranscriptLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "page_to_transcript_latency_seconds",
		Help: "Delay between a page going out and its transcript arriving",
		Buckets: prometheus.ExponentialBuckets(
			pageToTranscriptBucketStart,
			pageToTranscriptBucketFactor,
			pageToTranscriptBucketCount,
		),
	},
)

var DuplicatesResolved = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "duplicates_resolved_total",
		Help: "Superseded call records deleted by the duplicate resolver",
	},
)

var MessagesDispatched = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "messages_dispatched_total",
		Help: "Outbound notification messages created, by type",
	},
	[]string{"type"},
)

var MinioOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "minio_operation_duration_seconds",
		Help:    "Time taken by object store operations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

func init() {
	prometheus.MustRegister(ProcessMessageDuration)
	prometheus.MustRegister(CallsIngested)
	prometheus.MustRegister(UploadLatency)
	prometheus.MustRegister(PageToTranscriptLatency)
	prometheus.MustRegister(DuplicatesResolved)
	prometheus.MustRegister(MessagesDispatched)
	prometheus.MustRegister(MinioOperationDuration)
}
