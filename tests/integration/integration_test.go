package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/oejp/kraken-bridge/internal/handler"
	"github.com/oejp/kraken-bridge/internal/infra/observability"
	"github.com/oejp/kraken-bridge/internal/kraken"
	"github.com/oejp/kraken-bridge/internal/localtime"
	"github.com/oejp/kraken-bridge/internal/sensor"
	"github.com/oejp/kraken-bridge/internal/service"
)

// TestIntegration_FullFlow spins up a fake Kraken endpoint and drives the
// whole pipeline: authenticate, resolve the account, refresh a snapshot and
// read the sensors over HTTP.
func TestIntegration_FullFlow(t *testing.T) {
	now := localtime.Now()
	readingStart := now.Add(-2 * time.Hour).UTC()

	accountJSON := fmt.Sprintf(`{"data":{"account":{
		"number": "A-INT-1",
		"balance": 2500,
		"overdueBalance": 0,
		"bills": {"edges": [{"node": {
			"__typename": "PeriodBasedDocumentType",
			"id": "bill-1",
			"issuedDate": "2026-07-01",
			"totalCharges": {"grossTotal": 8000}
		}}]},
		"properties": [{"electricitySupplyPoints": [{
			"agreements": [{"product": {
				"displayName": "Integration Plan",
				"standingCharges": [{"pricePerUnit": 30}],
				"fuelCostAdjustment": {"pricePerUnit": 1},
				"consumptionCharges": [{"pricePerUnit": 25}]
			}}],
			"halfHourlyReadings": [
				{"startAt": %q, "endAt": %q, "value": 1.5}
			]
		}]}]
	}}}`,
		readingStart.Format(time.RFC3339),
		readingStart.Add(30*time.Minute).Format(time.RFC3339))

	// --- Fake Kraken API ---
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		q := string(body)
		switch {
		case strings.Contains(q, "obtainKrakenToken"):
			io.WriteString(w, `{"data":{"obtainKrakenToken":{"token":"integration-token"}}}`)
		case strings.Contains(q, "accountViewer"):
			io.WriteString(w, `{"data":{"viewer":{"accounts":[{"number":"A-INT-1"}]}}}`)
		case strings.Contains(q, "ComprehensiveAccountQuery"):
			io.WriteString(w, accountJSON)
		default:
			http.Error(w, "unknown operation", http.StatusBadRequest)
		}
	}))
	defer upstream.Close()

	// --- Wiring (as in main) ---
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	client := kraken.NewClient(kraken.Config{
		Email:       "user@example.com",
		Password:    "secret",
		EndpointURL: upstream.URL,
		HTTPClient:  upstream.Client(),
		Metrics:     metrics,
		Logger:      logger,
	})

	coord := service.NewCoordinator(client, metrics, logger, service.CoordinatorConfig{})
	if err := coord.ResolveAccount(context.Background()); err != nil {
		t.Fatalf("resolve account: %v", err)
	}
	metrics.Registry.MustRegister(sensor.NewCollector(coord))

	if err := coord.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	srv := httptest.NewServer(handler.NewRouter(coord, metrics, logger))
	defer srv.Close()

	// --- Sensors ---
	resp, err := http.Get(srv.URL + "/v1/sensors")
	if err != nil {
		t.Fatalf("GET /v1/sensors: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var sensors struct {
		Sensors []struct {
			Key       string `json:"key"`
			Available bool   `json:"available"`
			State     any    `json:"state"`
		} `json:"sensors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sensors); err != nil {
		t.Fatalf("decode sensors: %v", err)
	}
	if len(sensors.Sensors) != 10 {
		t.Fatalf("expected 10 sensors, got %d", len(sensors.Sensors))
	}

	byKey := map[string]any{}
	for _, s := range sensors.Sensors {
		if !s.Available {
			t.Errorf("sensor %s unexpectedly unavailable", s.Key)
		}
		byKey[s.Key] = s.State
	}
	if byKey["balance"] != "2500" {
		t.Errorf("balance = %v, want 2500", byKey["balance"])
	}
	if byKey["last_bill"] != "8000" {
		t.Errorf("last_bill = %v, want 8000", byKey["last_bill"])
	}
	if byKey["tariff_summary"] != "Integration Plan" {
		t.Errorf("tariff_summary = %v, want Integration Plan", byKey["tariff_summary"])
	}

	// --- Account status ---
	resp, err = http.Get(srv.URL + "/v1/account")
	if err != nil {
		t.Fatalf("GET /v1/account: %v", err)
	}
	defer resp.Body.Close()

	var st service.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.AccountNumber != "A-INT-1" {
		t.Errorf("account = %q, want A-INT-1", st.AccountNumber)
	}
	if st.Refresh.TotalRefreshes != 1 {
		t.Errorf("total refreshes = %d, want 1", st.Refresh.TotalRefreshes)
	}

	// --- Prometheus scrape includes recomputed sensor gauges ---
	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	scrape, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(scrape), `oejp_sensor_value{sensor="balance"`) {
		t.Error("expected balance gauge in metrics scrape")
	}
}
