package callflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/apolloni/dentcall/internal/observability"
	"github.com/apolloni/dentcall/internal/store"
	"github.com/apolloni/dentcall/internal/telephony"
)

// Dialer places outbound calls. Satisfied by telephony.Client.
type Dialer interface {
	MakeCall(ctx context.Context, to, webhookURL string) (*telephony.Call, error)
}

// Dispatcher fans a reminder campaign out over the telephony provider.
type Dispatcher struct {
	dialer     Dialer
	store      store.Store
	metrics    *observability.Metrics
	webhookURL string
}

func NewDispatcher(dialer Dialer, st store.Store, metrics *observability.Metrics, webhookURL string) (*Dispatcher, error) {
	if dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics is required")
	}
	if strings.TrimSpace(webhookURL) == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	return &Dispatcher{dialer: dialer, store: st, metrics: metrics, webhookURL: webhookURL}, nil
}

// DispatchResult summarizes one campaign run.
type DispatchResult struct {
	Initiated     int
	FailedNumbers []string
}

// DispatchCalls places one call per number. A failed dial is recorded and
// skipped; it never aborts the rest of the batch.
func (d *Dispatcher) DispatchCalls(ctx context.Context, numbers []string) DispatchResult {
	var result DispatchResult
	for _, number := range numbers {
		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}

		call, err := d.dialer.MakeCall(ctx, number, d.webhookURL)
		if err != nil {
			log.Printf("callflow: dial %s: %v", number, err)
			d.metrics.CallsDispatched.WithLabelValues("failed").Inc()
			result.FailedNumbers = append(result.FailedNumbers, number)
			if insertErr := d.store.InsertCallError(ctx, store.CallError{
				PhoneNumber: number,
				Error:       err.Error(),
				Timestamp:   time.Now().UTC(),
			}); insertErr != nil {
				log.Printf("callflow: record call error for %s: %v", number, insertErr)
			}
			continue
		}

		d.metrics.CallsDispatched.WithLabelValues("initiated").Inc()
		result.Initiated++
		if err := d.store.InsertCallLog(ctx, store.CallLog{
			CallSID:     call.SID,
			PhoneNumber: number,
			Status:      "initiated",
			Message:     greetingText,
			Timestamp:   time.Now().UTC(),
		}); err != nil {
			log.Printf("callflow: record call log for %s: %v", number, err)
		}
	}
	return result
}

// ResolveNumbers returns the explicit numbers when given, otherwise the
// phone numbers of patients in the pincode area.
func (d *Dispatcher) ResolveNumbers(ctx context.Context, explicit []string, pincode string) ([]string, error) {
	cleaned := make([]string, 0, len(explicit))
	for _, n := range explicit {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) > 0 {
		return cleaned, nil
	}
	if strings.TrimSpace(pincode) == "" {
		return nil, nil
	}

	patients, err := d.store.PatientsByPincode(ctx, pincode)
	if err != nil {
		return nil, fmt.Errorf("look up patients by pincode: %w", err)
	}
	numbers := make([]string, 0, len(patients))
	for _, p := range patients {
		if p.PhoneNumber != "" {
			numbers = append(numbers, p.PhoneNumber)
		}
	}
	return numbers, nil
}
