// Package storage publishes decoded readings to Redis, for consumers that chart or archive
// them while an acquisition is running.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// historyLen is how many records are kept in each device's Redis list.
const historyLen = 1000

const (
	breakerMaxFailures uint32 = 5
	breakerTimeout            = 30 * time.Second
)

// Record is one published reading.
type Record struct {
	Acquisition string    `json:"acquisition" msgpack:"acquisition"`
	Device      string    `json:"device" msgpack:"device"`
	Service     string    `json:"service" msgpack:"service"`
	Index       int       `json:"index,omitempty" msgpack:"index,omitempty"`
	Value       float64   `json:"value" msgpack:"value"`
	Unit        string    `json:"unit" msgpack:"unit"`
	Range       string    `json:"range" msgpack:"range"`
	Mode        string    `json:"mode" msgpack:"mode"`
	Time        time.Time `json:"time" msgpack:"time"`
}

// Encoding selects the wire format of published records.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// Encode serializes r in the given encoding.
func Encode(r Record, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingJSON, "":
		return json.Marshal(r)
	case EncodingMsgpack:
		return msgpack.Marshal(r)
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

// Decode is the inverse of Encode.
func Decode(data []byte, enc Encoding) (Record, error) {
	var r Record
	var err error
	switch enc {
	case EncodingJSON, "":
		err = json.Unmarshal(data, &r)
	case EncodingMsgpack:
		err = msgpack.Unmarshal(data, &r)
	default:
		err = fmt.Errorf("unknown encoding %q", enc)
	}
	return r, err
}

// Publisher sends records to a Redis Pub/Sub channel and keeps the most recent ones in a
// per-device list. After repeated failures it stops contacting Redis for a while and
// Publish fails immediately with gobreaker.ErrOpenState.
type Publisher struct {
	client   *redis.Client
	channel  string
	encoding Encoding
	breaker  *gobreaker.CircuitBreaker[struct{}]
	log      logrus.FieldLogger
}

// Options configures NewPublisher.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Encoding Encoding
}

// NewPublisher connects to Redis and checks the connection.
func NewPublisher(ctx context.Context, opts Options, log logrus.FieldLogger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	log.Infof("connected to redis at %s", opts.Addr)

	return newPublisher(client, opts, log.WithField("component", "publisher")), nil
}

func newPublisher(client *redis.Client, opts Options, log logrus.FieldLogger) *Publisher {
	p := &Publisher{
		client:   client,
		channel:  opts.Channel,
		encoding: opts.Encoding,
		log:      log,
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "redis:" + opts.Addr,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("publisher %s: %s -> %s", name, from, to)
		},
	})
	return p
}

// ListKey is the Redis list holding a device's recent records.
func ListKey(device string) string {
	return fmt.Sprintf("pokit:%s:readings", device)
}

// Publish sends one record.
func (p *Publisher) Publish(ctx context.Context, r Record) error {
	data, err := Encode(r, p.encoding)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.client.Publish(ctx, p.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}

	listKey := ListKey(r.Device)
	if err := p.client.LPush(ctx, listKey, data).Err(); err != nil {
		p.log.Warnf("failed to save record to %s: %v", listKey, err)
		return nil
	}
	p.client.LTrim(ctx, listKey, 0, historyLen-1)
	return nil
}

// State reports whether the publisher is currently contacting Redis.
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
