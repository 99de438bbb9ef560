//go:build integration
// +build integration

package degraded

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/crop-advisory-service/internal/client"
	"github.com/kjstillabower/crop-advisory-service/internal/testhelpers"
)

// TestIntegration_InvalidKeyExhaustsRecovery verifies that probing with a bad
// key fails every attempt and reports exhaustion.
func TestIntegration_InvalidKeyExhaustsRecovery(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	bad, err := client.NewWeatherAPIClient("invalid_key_for_recovery_test_0000000", cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}

	var exhausted atomic.Bool
	var lastErr atomic.Value
	validate := func(ctx context.Context) error {
		err := bad.ValidateAPIKey(ctx)
		if err != nil {
			lastErr.Store(err)
		}
		return err
	}
	r := NewRecoverer(validate, 50*time.Millisecond, 100*time.Millisecond, func() { exhausted.Store(true) },
		WithOnRecovered(func() {}))
	r.Run(context.Background())

	if !exhausted.Load() {
		t.Fatal("recovery with invalid key should exhaust")
	}
	if err, _ := lastErr.Load().(error); !errors.Is(err, client.ErrInvalidAPIKey) {
		t.Errorf("probe error = %v, want ErrInvalidAPIKey", err)
	}
}

// TestIntegration_ValidKeyRecovers verifies that a valid key recovers on the first probe.
func TestIntegration_ValidKeyRecovers(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	c := testhelpers.SetupIntegrationClient(t, cfg)

	var recovered atomic.Bool
	r := NewRecoverer(c.ValidateAPIKey, 10*time.Millisecond, 20*time.Millisecond, nil,
		WithOnRecovered(func() { recovered.Store(true) }))
	if !r.Run(context.Background()) || !recovered.Load() {
		t.Fatal("recovery with valid key should succeed")
	}
}
