package notify

import "unitrader/internal/logger"

// Log writes events to the process log. It is always wired in so no event is
// ever silently dropped, whatever external sinks are configured.
type Log struct{}

func (Log) Publish(event Event) error {
	if event.Priority == PriorityHigh {
		logger.Warnf("notify: %s", event.Summary())
		return nil
	}
	logger.Infof("notify: %s", event.Summary())
	return nil
}
