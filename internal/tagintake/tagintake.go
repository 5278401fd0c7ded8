// Package tagintake implements the Sparkplug-B tag intake: a
// per-characteristic subgroup buffer that accumulates sensor readings off
// an MQTT topic under a configurable trigger policy (flush on buffer-full,
// flush on an external trigger message, or flush on a dwell timeout) and
// hands each completed subgroup to the sample pipeline through a
// configured callback. The transport's callback goroutines only mutate
// their own buffer and enqueue completed subgroups onto a bounded
// channel; a consumer goroutine started with Run drains the queue and
// invokes the pipeline, so the receive loop is never blocked by storage
// writes or rule evaluation.
package tagintake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/logging"
	"github.com/openspc/engine/internal/mqtt"
	"github.com/openspc/engine/internal/sparkplug"
)

// TriggerStrategy selects how a characteristic's subgroup buffer
// flushes.
type TriggerStrategy string

const (
	// OnChange flushes as soon as the buffer reaches SubgroupSize.
	OnChange TriggerStrategy = "ON_CHANGE"
	// OnTrigger never flushes on data alone; only an external trigger
	// message (or the dwell timeout) flushes the buffer.
	OnTrigger TriggerStrategy = "ON_TRIGGER"
)

// CharacteristicConfig binds one characteristic to its Sparkplug carrier
// topic and buffering policy.
type CharacteristicConfig struct {
	CharacteristicID string
	Topic            string
	MetricName       string
	SubgroupSize     int
	TriggerStrategy  TriggerStrategy
	TriggerTag       string // topic carrying the trigger signal; required when TriggerStrategy == OnTrigger
	BufferTimeout    time.Duration
}

// SampleEvent is the completed subgroup handed to the pipeline
// callback.
type SampleEvent struct {
	CharacteristicID string
	Measurements     []float64
	Timestamp        time.Time
}

// PipelineFunc hands a completed subgroup to the sample pipeline. Any
// error it returns is logged and does not stop the intake.
type PipelineFunc func(ctx context.Context, event SampleEvent) error

// eventQueueDepth bounds the hand-off queue between the transport's
// receive goroutine and the pipeline consumer.
const eventQueueDepth = 64

// subgroupBuffer holds one characteristic's in-flight readings.
type subgroupBuffer struct {
	mu               sync.Mutex
	values           []float64
	firstReadingTime time.Time
}

func (b *subgroupBuffer) append(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.values) == 0 {
		b.firstReadingTime = time.Now()
	}
	b.values = append(b.values, v)
}

// drain empties the buffer and returns what it held, or (nil, false) if it
// was already empty.
func (b *subgroupBuffer) drain() ([]float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.values) == 0 {
		return nil, false
	}
	values := b.values
	b.values = nil
	return values, true
}

func (b *subgroupBuffer) age() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.values) == 0 {
		return 0, false
	}
	return time.Since(b.firstReadingTime), true
}

// Intake binds an MQTT transport and a Sparkplug payload format to a set
// of per-characteristic buffering configurations, and flushes completed
// subgroups into pipeline.
type Intake struct {
	transport *mqtt.Transport
	format    sparkplug.Format
	pipeline  PipelineFunc
	log       *logging.Logger

	mu      sync.Mutex
	configs map[string]CharacteristicConfig // by characteristic id
	buffers map[string]*subgroupBuffer      // by characteristic id

	events chan SampleEvent
}

// New builds an Intake. format selects the Sparkplug payload wire encoding
// expected on incoming messages.
func New(transport *mqtt.Transport, format sparkplug.Format, pipeline PipelineFunc, log *logging.Logger) *Intake {
	if log == nil {
		log = logging.Nop()
	}
	return &Intake{
		transport: transport,
		format:    format,
		pipeline:  pipeline,
		log:       log,
		configs:   make(map[string]CharacteristicConfig),
		buffers:   make(map[string]*subgroupBuffer),
		events:    make(chan SampleEvent, eventQueueDepth),
	}
}

// RegisterCharacteristic subscribes to cfg's data topic (and trigger topic,
// if OnTrigger) and begins buffering its readings.
func (in *Intake) RegisterCharacteristic(cfg CharacteristicConfig) error {
	if cfg.SubgroupSize <= 0 {
		return fmt.Errorf("tagintake: characteristic %s: subgroup size must be positive: %w", cfg.CharacteristicID, errs.ErrValidation)
	}
	if cfg.TriggerStrategy == OnTrigger && cfg.TriggerTag == "" {
		return fmt.Errorf("tagintake: characteristic %s: ON_TRIGGER strategy requires a trigger tag: %w", cfg.CharacteristicID, errs.ErrValidation)
	}
	if cfg.BufferTimeout <= 0 {
		cfg.BufferTimeout = 5 * time.Minute
	}

	in.mu.Lock()
	in.configs[cfg.CharacteristicID] = cfg
	in.buffers[cfg.CharacteristicID] = &subgroupBuffer{}
	in.mu.Unlock()

	if err := in.transport.Subscribe(cfg.Topic, in.onData(cfg.CharacteristicID)); err != nil {
		return fmt.Errorf("tagintake: subscribe data topic for %s: %w", cfg.CharacteristicID, err)
	}
	if cfg.TriggerStrategy == OnTrigger {
		if err := in.transport.Subscribe(cfg.TriggerTag, in.onTrigger(cfg.CharacteristicID)); err != nil {
			return fmt.Errorf("tagintake: subscribe trigger topic for %s: %w", cfg.CharacteristicID, err)
		}
	}
	return nil
}

// onData decodes an incoming Sparkplug data message, extracts the
// configured carrier metric, and appends it to charID's buffer, flushing
// immediately if the OnChange strategy just reached subgroup size.
func (in *Intake) onData(charID string) mqtt.MessageHandler {
	return func(topic string, payload []byte) {
		in.mu.Lock()
		cfg, ok := in.configs[charID]
		buf := in.buffers[charID]
		in.mu.Unlock()
		if !ok {
			return
		}

		msg, err := sparkplug.DecodeMessage(topic, payload, in.format)
		if err != nil {
			in.log.Error("tagintake: decode data message failed", "characteristic_id", charID, "topic", topic, "error", err)
			return
		}
		value, ok := msg.MetricValue(cfg.MetricName)
		if !ok {
			in.log.Warn("tagintake: carrier metric missing from message", "characteristic_id", charID, "metric", cfg.MetricName)
			return
		}

		buf.append(value)

		if cfg.TriggerStrategy == OnChange {
			if values, full := in.drainIfFull(charID, cfg.SubgroupSize); full {
				in.flush(charID, values)
			}
		}
	}
}

func (in *Intake) drainIfFull(charID string, subgroupSize int) ([]float64, bool) {
	in.mu.Lock()
	buf := in.buffers[charID]
	in.mu.Unlock()

	buf.mu.Lock()
	defer buf.mu.Unlock()
	if len(buf.values) < subgroupSize {
		return nil, false
	}
	values := buf.values
	buf.values = nil
	return values, true
}

// onTrigger flushes charID's buffer (if non-empty) whenever a trigger
// message arrives; the trigger payload itself is ignored — presence is the
// signal.
func (in *Intake) onTrigger(charID string) mqtt.MessageHandler {
	return func(_ string, _ []byte) {
		in.mu.Lock()
		buf := in.buffers[charID]
		in.mu.Unlock()
		if buf == nil {
			return
		}
		if values, ok := buf.drain(); ok {
			in.flush(charID, values)
		}
	}
}

// flush builds the SampleEvent for a completed subgroup and enqueues it
// for the pipeline consumer. The send never blocks the transport's
// receive goroutine: a full queue drops the subgroup with a logged
// error.
func (in *Intake) flush(charID string, values []float64) {
	event := SampleEvent{
		CharacteristicID: charID,
		Measurements:     values,
		Timestamp:        time.Now(),
	}
	select {
	case in.events <- event:
	default:
		in.log.Error("tagintake: event queue full, dropping subgroup", "characteristic_id", charID, "measurements", len(values))
	}
}

// Run drains the event queue, handing each completed subgroup to the
// pipeline callback. Any error or panic from the callback is logged and
// the loop continues. It blocks until ctx is canceled.
func (in *Intake) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-in.events:
			in.dispatch(ctx, event)
		}
	}
}

func (in *Intake) dispatch(ctx context.Context, event SampleEvent) {
	defer func() {
		if r := recover(); r != nil {
			in.log.Error("tagintake: pipeline callback panicked", "characteristic_id", event.CharacteristicID, "panic", r)
		}
	}()
	if err := in.pipeline(ctx, event); err != nil {
		in.log.Error("tagintake: pipeline callback failed", "characteristic_id", event.CharacteristicID, "error", err)
	}
}

// RunTimeoutSweeper periodically flushes any non-empty buffer whose oldest
// reading is older than its characteristic's BufferTimeout. It blocks
// until ctx is canceled.
func (in *Intake) RunTimeoutSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.sweepOnce()
		}
	}
}

func (in *Intake) sweepOnce() {
	in.mu.Lock()
	type target struct {
		charID  string
		buf     *subgroupBuffer
		timeout time.Duration
	}
	targets := make([]target, 0, len(in.buffers))
	for charID, buf := range in.buffers {
		targets = append(targets, target{charID: charID, buf: buf, timeout: in.configs[charID].BufferTimeout})
	}
	in.mu.Unlock()

	for _, tg := range targets {
		age, nonEmpty := tg.buf.age()
		if !nonEmpty || age < tg.timeout {
			continue
		}
		if values, ok := tg.buf.drain(); ok {
			in.flush(tg.charID, values)
		}
	}
}
