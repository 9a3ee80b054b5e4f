// Package mqtt identifies sensor readings published over MQTT and publishes
// the results back to the broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dravya-labs/dravya/pkg/config"
	"github.com/dravya-labs/dravya/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DeviceIDPlaceholder is expanded in the results topic.
const DeviceIDPlaceholder = "{device_id}"

// UnknownDevice is used when neither payload nor topic names a device.
const UnknownDevice = "unknown"

const (
	queueSize = 64
	workers   = 4
)

// Bus is the broker surface the ingester needs.
type Bus interface {
	Subscribe(topic string, qos byte, handle func(topic string, payload []byte)) error
	Publish(topic string, qos byte, payload []byte) error
}

// Identifier runs the identification pipeline.
type Identifier interface {
	Identify(ctx context.Context, in models.SensorInput) (models.IdentifyResponse, error)
}

// Reading is the JSON payload a device publishes.
type Reading struct {
	DeviceID string `json:"device_id,omitempty"`
	models.SensorInput
}

// Result is published for every identified reading.
type Result struct {
	DeviceID    string  `json:"device_id"`
	Dravya      string  `json:"dravya"`
	Description string  `json:"description"`
	ImageBase64 *string `json:"image_base64"`
}

type message struct {
	topic   string
	payload []byte
}

// Ingester consumes readings from the bus.
type Ingester struct {
	bus   Bus
	svc   Identifier
	cfg   config.MQTTConfig
	log   *zap.Logger
	queue chan message
}

// New creates an Ingester.
func New(bus Bus, svc Identifier, cfg config.MQTTConfig, log *zap.Logger) *Ingester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{
		bus:   bus,
		svc:   svc,
		cfg:   cfg,
		log:   log,
		queue: make(chan message, queueSize),
	}
}

// Run subscribes to the readings topic and processes messages until ctx is
// cancelled. In-flight identifications finish before Run returns.
func (i *Ingester) Run(ctx context.Context) error {
	if err := i.bus.Subscribe(i.cfg.ReadingsTopic, i.cfg.QoS, i.enqueue); err != nil {
		return err
	}
	i.log.Info("mqtt ingestion started",
		zap.String("readings", i.cfg.ReadingsTopic),
		zap.String("results", i.cfg.ResultsTopic))

	var g errgroup.Group
	g.SetLimit(workers)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return nil
		case m := <-i.queue:
			g.Go(func() error {
				if err := i.Handle(ctx, m.topic, m.payload); err != nil {
					i.log.Warn("mqtt reading dropped", zap.String("topic", m.topic), zap.Error(err))
				}
				return nil
			})
		}
	}
}

func (i *Ingester) enqueue(topic string, payload []byte) {
	select {
	case i.queue <- message{topic: topic, payload: payload}:
	default:
		i.log.Warn("mqtt queue full, dropping reading", zap.String("topic", topic))
	}
}

// Handle decodes one payload, identifies it and publishes the result.
func (i *Ingester) Handle(ctx context.Context, topic string, payload []byte) error {
	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("decoding reading: %w", err)
	}

	device := r.DeviceID
	if device == "" {
		device = DeviceFromTopic(i.cfg.ReadingsTopic, topic)
	}

	resp, err := i.svc.Identify(ctx, r.SensorInput)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		return fmt.Errorf("identifying reading from %s: %w", device, err)
	}

	out, err := json.Marshal(Result{
		DeviceID:    device,
		Dravya:      resp.Dravya,
		Description: resp.Description,
		ImageBase64: resp.ImageBase64,
	})
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	dest := ResultTopic(i.cfg.ResultsTopic, device)
	if err := i.bus.Publish(dest, i.cfg.QoS, out); err != nil {
		return err
	}
	i.log.Info("mqtt result published",
		zap.String("device_id", device),
		zap.String("dravya", resp.Dravya),
		zap.String("topic", dest))
	return nil
}

// DeviceFromTopic returns the topic segment matched by the first single-level
// wildcard in pattern.
func DeviceFromTopic(pattern, topic string) string {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for idx, p := range pp {
		if p == "+" && idx < len(tp) && tp[idx] != "" {
			return tp[idx]
		}
	}
	return UnknownDevice
}

// ResultTopic expands the device placeholder in pattern.
func ResultTopic(pattern, device string) string {
	return strings.ReplaceAll(pattern, DeviceIDPlaceholder, device)
}
