// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package kafkasink is a payment.LedgerSink backed by Shopify/sarama, the
// production profile for settlement delivery. It is grounded on
// datasync/chaindatafetcher/event/kafka/kafka.go's KafkaBroker
// (WaitForLocal acks, snappy compression, one topic per event kind), but
// swaps that file's fire-and-forget AsyncProducer for a SyncProducer:
// payment.Engine.FlushOutbox only marks an event delivered once Record
// returns nil, so Record must not return until the broker has actually
// acked the message.
package kafkasink

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/model"
)

var logger = log.NewModuleLogger("payment.kafkasink")

// Sink publishes PaymentEvents to a single Kafka topic.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
}

// New dials brokers and starts a sync producer publishing to topic.
func New(brokers []string, topic string) (*Sink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Sink{producer: producer, topic: topic}, nil
}

// Record publishes e to the configured topic, keyed by payment id so a
// downstream consumer can dedupe repeat deliveries, and blocks until the
// broker acks the message. A non-nil return means the event was not
// delivered and FlushOutbox must retry it later.
func (s *Sink) Record(e *model.PaymentEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(e.PaymentID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		logger.Error("kafka produce failed", "payment_id", e.PaymentID, "err", err)
		return err
	}
	return nil
}

// Close stops the producer, flushing any buffered messages first.
func (s *Sink) Close() error {
	return s.producer.Close()
}
