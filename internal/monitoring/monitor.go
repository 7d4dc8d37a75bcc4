package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocabreview_answers_total",
			Help: "Answers recorded by study sessions",
		},
		[]string{"mode", "result"},
	)

	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocabreview_sessions_started_total",
			Help: "Study sessions started",
		},
		[]string{"mode"},
	)

	MasterySaveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vocabreview_mastery_save_failures_total",
			Help: "Mastery records that could not be written to durable storage",
		},
	)

	RemindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vocabreview_reminders_sent_total",
			Help: "Review reminders delivered",
		},
	)
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{AnswersTotal, SessionsStarted, MasterySaveFailures, RemindersSent} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ResultLabel turns an answer outcome into a label value.
func ResultLabel(correct bool) string {
	if correct {
		return "correct"
	}
	return "wrong"
}
