// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package router

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pkg/errors"
)

const (
	queueName          = "webhook.all.events"
	deadLetterExchange = "dead.letter"
	deadLetterKey      = "webhook.events"
	consumerTag        = "webhook-dispatcher"

	// retryCountHeader carries the broker-side redelivery count consulted
	// before a failed message is requeued or dead-lettered.
	retryCountHeader = "x-retry-count"
)

// upstreamBindings lists the producer exchanges the dispatch queue consumes
// from, with the wildcard routing key used for each.
var upstreamBindings = []struct {
	exchange   string
	routingKey string
}{
	{"link.events", "link.#"},
	{"click.events", "click.#"},
	{"campaign.events", "campaign.#"},
	{"user.events", "user.#"},
}

// declareTopology declares the dispatch queue, the upstream and dead-letter
// exchanges, and the bindings between them. Declarations are idempotent, so
// this runs on every (re)connect.
func declareTopology(channel *amqp.Channel, prefetch int) error {
	err := channel.ExchangeDeclare(deadLetterExchange, "topic", true, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to declare exchange %s", deadLetterExchange)
	}

	for _, binding := range upstreamBindings {
		err = channel.ExchangeDeclare(binding.exchange, "topic", true, false, false, false, nil)
		if err != nil {
			return errors.Wrapf(err, "failed to declare exchange %s", binding.exchange)
		}
	}

	_, err = channel.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": deadLetterKey,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to declare queue %s", queueName)
	}

	for _, binding := range upstreamBindings {
		err = channel.QueueBind(queueName, binding.routingKey, binding.exchange, false, nil)
		if err != nil {
			return errors.Wrapf(err, "failed to bind %s to %s", queueName, binding.exchange)
		}
	}

	err = channel.Qos(prefetch, 0, false)
	if err != nil {
		return errors.Wrap(err, "failed to set consumer prefetch")
	}

	return nil
}
