package join

import (
	"encoding/json"

	"github.com/awmatheson/recoverable-cart-join/diag"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/metric"
)

const decoderComponent = "Decoder"

// Decoder turns one raw line into a decoded event. A rejection consumes
// exactly one line: the decoder reports a diagnostic and the stream
// continues. It never returns a propagating failure.
type Decoder struct {
	reporter diag.Reporter
	metrics  *metric.Metrics
}

// NewDecoder creates a decoder. A nil reporter discards diagnostics.
func NewDecoder(reporter diag.Reporter, metrics *metric.Metrics) *Decoder {
	if reporter == nil {
		reporter = diag.Discard
	}
	return &Decoder{reporter: reporter, metrics: metrics}
}

// Decode parses one raw line into an event. The second return value is
// false when the line was rejected; the rejection has already been
// reported. Missing customer ids are left for ExtractKey so unkeyable
// events are diagnosed as such rather than as incomplete ones.
func (d *Decoder) Decode(raw []byte) (message.EventPayload, bool) {
	var event message.EventPayload
	if err := json.Unmarshal(raw, &event); err != nil {
		d.reject(diag.ReasonMalformedInput, err.Error(), raw, event)
		return message.EventPayload{}, false
	}

	if event.Kind == message.KindUnknown {
		d.reject(diag.ReasonMissingField, "missing or unrecognized event type", raw, event)
		return message.EventPayload{}, false
	}
	if event.OrderID == "" {
		d.reject(diag.ReasonMissingField, "order id is required", raw, event)
		return message.EventPayload{}, false
	}

	return event, true
}

func (d *Decoder) reject(reason diag.Reason, detail string, raw []byte, event message.EventPayload) {
	d.reporter.Report(diag.New(reason, decoderComponent, detail).
		WithInput(raw).
		WithKeys(event.CustomerID, event.OrderID))
	if d.metrics != nil {
		d.metrics.RecordEventRejected(decoderComponent, string(reason))
	}
}

// ExtractKey derives the partition key from a decoded event. An empty
// return means the event is unkeyable and must be dropped.
func ExtractKey(event message.EventPayload) string {
	return event.CustomerID
}
