package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campusinfo_crawler_pages_fetched_total",
		Help: "Total number of pages successfully fetched",
	})
	BytesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campusinfo_crawler_bytes_fetched_total",
		Help: "Total bytes downloaded",
	})
	FetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campusinfo_crawler_fetch_failures_total",
		Help: "Pages that could not be fetched",
	})
	DocumentsStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusinfo_documents_stored_total",
		Help: "Documents inserted, by source type",
	}, []string{"source_type"})
	CrawlRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusinfo_crawl_runs_total",
		Help: "Crawl runs by trigger kind and outcome",
	}, []string{"kind", "outcome"})
	CrawlRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campusinfo_crawl_running",
		Help: "1 while a crawl run is in progress",
	})
	ChatRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusinfo_chat_requests_total",
		Help: "Chat questions answered, by whether context was used",
	}, []string{"context"})
	AnswerFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campusinfo_chat_answer_fallbacks_total",
		Help: "Answers replaced by the apology message",
	})
	ChatLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campusinfo_chat_duration_seconds",
		Help:    "Time to answer one chat question",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		PagesFetched, BytesFetched, FetchFailures, DocumentsStored,
		CrawlRuns, CrawlRunning,
		ChatRequests, AnswerFallbacks, ChatLatency,
	)
}
