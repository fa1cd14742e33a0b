package engine

import (
	"fmt"
	"strings"

	"github.com/awmatheson/recoverable-cart-join/component"
)

// checkWiring inspects the declared ports of started components and
// returns a warning for every NATS input subject that no component
// publishes to. Dangling inputs usually mean a typo in a subject name;
// the pipeline still runs, it just never receives anything there.
func checkWiring(instances []instance) []string {
	var published []string
	for _, inst := range instances {
		for _, port := range inst.comp.OutputPorts() {
			if np, ok := port.Config.(component.NATSPort); ok && np.Subject != "" {
				published = append(published, np.Subject)
			}
		}
	}

	var warnings []string
	for _, inst := range instances {
		for _, port := range inst.comp.InputPorts() {
			np, ok := port.Config.(component.NATSPort)
			if !ok || np.Subject == "" {
				continue
			}
			if !hasProducer(published, np.Subject) {
				warnings = append(warnings,
					fmt.Sprintf("%s listens on %q but nothing publishes to it",
						inst.name, np.Subject))
			}
		}
	}
	return warnings
}

func hasProducer(published []string, subject string) bool {
	for _, p := range published {
		if subjectMatches(p, subject) {
			return true
		}
	}
	return false
}

// subjectMatches reports whether a published subject would be delivered
// to a subscription subject under NATS wildcard rules. The subscription
// side may use "*" for one token or ">" for the remainder.
func subjectMatches(publish, subscribe string) bool {
	if publish == subscribe {
		return true
	}

	pub := strings.Split(publish, ".")
	sub := strings.Split(subscribe, ".")

	for i, token := range sub {
		if token == ">" {
			return true
		}
		if i >= len(pub) {
			return false
		}
		if token != "*" && token != pub[i] {
			return false
		}
	}
	return len(pub) == len(sub)
}
