package infrastructure

import (
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

const (
	httpMethodKey     = "http.method"
	httpPathKey       = "http.path"
	httpStatusCodeKey = "http.status_code"
	statusKey         = "status"
	priorityKey       = "priority"
	exchangeKey       = "messaging.destination.name"
	queueKey          = "messaging.source.name"
	outcomeKey        = "outcome"
	phaseKey          = "task.phase"
	handlerKey        = "handler"
)

func HTTPMethodAttr(method string) attribute.KeyValue {
	return attribute.String(httpMethodKey, method)
}

func HTTPPathAttr(path string) attribute.KeyValue {
	return attribute.String(httpPathKey, path)
}

func HTTPStatusCodeAttr(code int) attribute.KeyValue {
	return attribute.String(httpStatusCodeKey, strconv.Itoa(code))
}

func StatusAttr(status string) attribute.KeyValue {
	return attribute.String(statusKey, status)
}

func PriorityAttr(priority string) attribute.KeyValue {
	return attribute.String(priorityKey, priority)
}

func ExchangeAttr(exchange string) attribute.KeyValue {
	return attribute.String(exchangeKey, exchange)
}

func QueueAttr(queue string) attribute.KeyValue {
	return attribute.String(queueKey, queue)
}

// OutcomeAttr is one of ack, nack or reject.
func OutcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(outcomeKey, outcome)
}

func PhaseAttr(phase string) attribute.KeyValue {
	return attribute.String(phaseKey, phase)
}

func HandlerAttr(handler string) attribute.KeyValue {
	return attribute.String(handlerKey, handler)
}
