package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

type predictCycle struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

type predictRequest struct {
	AsOf   string         `json:"as_of"`
	Cycles []predictCycle `json:"cycles"`
}

type predictResponse struct {
	NextPeriodStart string  `json:"next_period_start"`
	Confidence      float64 `json:"confidence"`
}

// Averages the last three cycle lengths; good enough to exercise the adaptive path locally.
func main() {
	addr := os.Getenv("MOCK_INFERENCE_ADDR")
	if addr == "" {
		addr = ":8090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/predict", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		starts := make([]time.Time, 0, len(req.Cycles))
		for _, c := range req.Cycles {
			start, err := time.Parse(dateLayout, c.Start)
			if err != nil {
				http.Error(w, "invalid cycle start", http.StatusBadRequest)
				return
			}
			starts = append(starts, start)
		}
		if len(starts) == 0 {
			http.Error(w, "no cycles", http.StatusUnprocessableEntity)
			return
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

		length, confidence := 28, 0.4
		if n := len(starts); n > 1 {
			from := n - 4
			if from < 0 {
				from = 0
			}
			total := 0
			for i := from + 1; i < n; i++ {
				total += int(starts[i].Sub(starts[i-1]).Hours() / 24)
			}
			length = total / (n - 1 - from)
			confidence = 0.75
		}
		next := starts[len(starts)-1].AddDate(0, 0, length)
		writeJSON(w, predictResponse{NextPeriodStart: next.Format(dateLayout), Confidence: confidence})
	})

	logger := log.New(log.Writer(), "inference-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
