package server

import (
	"sync"

	"github.com/opentracing/opentracing-go"
	zipkinot "github.com/openzipkin-contrib/zipkin-go-opentracing"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter"
	zipkinhttp "github.com/openzipkin/zipkin-go/reporter/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var tracerOnce sync.Once

// setTracer installs the global OpenTracing tracer. Spans always feed the
// Prometheus reporter; when a Zipkin collector URL is configured they are
// shipped there as well. Only the first call takes effect.
func setTracer(ownURL string, zipkinURL string) {
	tracerOnce.Do(func() { initTracer(ownURL, zipkinURL) })
}

func initTracer(ownURL string, zipkinURL string) {
	var rep reporter.Reporter = newPrometheusReporter()

	if zipkinURL != "" {
		// ex: "http://zipkin:9411/api/v2/spans"
		rep = multiReporter{zipkinhttp.NewReporter(zipkinURL), rep}
	}

	endpoint, err := zipkin.NewEndpoint("io-service", ownURL)
	if err != nil {
		logrus.WithError(err).Fatalln("couldn't create tracer endpoint")
	}

	nativeTracer, err := zipkin.NewTracer(rep,
		zipkin.WithLocalEndpoint(endpoint),
		zipkin.WithTraceID128Bit(true),
	)
	if err != nil {
		logrus.WithError(err).Fatalln("couldn't start tracer")
	}

	opentracing.SetGlobalTracer(zipkinot.Wrap(nativeTracer))
	logrus.WithFields(logrus.Fields{"url": zipkinURL}).Info("started tracer")
}

// prometheusReporter publishes span durations to Prometheus. Each span name
// becomes its own histogram metric of the form
// io_span_<span-name>_duration_secs_histogram.
type prometheusReporter struct {
	mu         sync.Mutex
	histograms map[string]prometheus.Histogram
}

func newPrometheusReporter() *prometheusReporter {
	return &prometheusReporter{histograms: make(map[string]prometheus.Histogram)}
}

// Send implements reporter.Reporter.
func (pr *prometheusReporter) Send(span model.SpanModel) {
	if span.Name == "" {
		return
	}

	pr.mu.Lock()
	histogram, found := pr.histograms[span.Name]
	if !found {
		histogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "io_span_" + span.Name + "_duration_secs_histogram",
			Help: "Span " + span.Name + " duration, by span name",
		})
		prometheus.MustRegister(histogram)
		pr.histograms[span.Name] = histogram
	}
	pr.mu.Unlock()

	histogram.Observe(span.Duration.Seconds())
}

// Close implements reporter.Reporter.
func (pr *prometheusReporter) Close() error {
	return nil
}

// multiReporter fans spans out to several reporters.
type multiReporter []reporter.Reporter

func (mr multiReporter) Send(span model.SpanModel) {
	for _, r := range mr {
		r.Send(span)
	}
}

func (mr multiReporter) Close() error {
	var err error
	for _, r := range mr {
		if cerr := r.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}
