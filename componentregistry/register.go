// Package componentregistry registers every built-in pipeline component.
package componentregistry

import (
	"errors"

	"github.com/awmatheson/recoverable-cart-join/component"
	pkgerrors "github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/input/fileinput"
	"github.com/awmatheson/recoverable-cart-join/input/kafkainput"
	websocketinput "github.com/awmatheson/recoverable-cart-join/input/websocket"
	fileoutput "github.com/awmatheson/recoverable-cart-join/output/file"
	"github.com/awmatheson/recoverable-cart-join/output/httppost"
	redisoutput "github.com/awmatheson/recoverable-cart-join/output/redis"
	"github.com/awmatheson/recoverable-cart-join/output/stdout"
	"github.com/awmatheson/recoverable-cart-join/processor/cartjoin"
)

// Register registers all built-in component factories with the provided
// registry:
//
// Inputs:
//   - fileinput (newline-delimited events from a file or stdin)
//   - kafka (events from a Kafka topic)
//   - websocket (events from a WebSocket feed)
//
// Processors:
//   - cart_join (order/payment correlation per customer)
//
// Outputs:
//   - stdout (summary lines to standard output)
//   - file (summary lines to a JSONL file)
//   - httppost (summaries POSTed to a webhook)
//   - redis (latest summary per customer in Redis)
func Register(registry *component.Registry) error {
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := fileinput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "file input registration")
	}
	if err := kafkainput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "Kafka input registration")
	}
	if err := websocketinput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "WebSocket input registration")
	}

	if err := cartjoin.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "cart join processor registration")
	}

	if err := stdout.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "stdout output registration")
	}
	if err := fileoutput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "file output registration")
	}
	if err := httppost.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "HTTP POST output registration")
	}
	if err := redisoutput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "Redis output registration")
	}

	return nil
}
