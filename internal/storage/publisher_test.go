package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	r := Record{
		Acquisition: "6f1c0c2e-3b1a-4d0e-9a53-0c6c2f4f1f8b",
		Device:      "PokitPro",
		Service:     "DSO",
		Index:       3,
		Value:       1.25,
		Unit:        "Vdc",
		Range:       "2V to 6V",
		Mode:        "DC voltage",
		Time:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	for _, enc := range []Encoding{EncodingJSON, EncodingMsgpack} {
		t.Run(string(enc), func(t *testing.T) {
			data, err := Encode(r, enc)
			require.NoError(t, err)
			got, err := Decode(data, enc)
			require.NoError(t, err)
			assert.Equal(t, r.Device, got.Device)
			assert.Equal(t, r.Index, got.Index)
			assert.Equal(t, r.Value, got.Value)
			assert.True(t, r.Time.Equal(got.Time))
		})
	}

	_, err := Encode(r, "xml")
	assert.Error(t, err)
}

func TestJSONFieldNames(t *testing.T) {
	data, err := Encode(Record{Device: "MOCK", Unit: "Aac"}, EncodingJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"device":"MOCK"`)
	assert.Contains(t, string(data), `"unit":"Aac"`)
	assert.NotContains(t, string(data), `"index"`)
}

func TestNewPublisherUnreachable(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewPublisher(ctx, Options{Addr: "127.0.0.1:1", Channel: "test"}, log)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestListKey(t *testing.T) {
	assert.Equal(t, "pokit:MOCK:readings", ListKey("MOCK"))
}

func TestPublisherOpensAfterFailures(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	p := newPublisher(client, Options{Addr: "127.0.0.1:1", Channel: "test"}, log)

	ctx := context.Background()
	for i := 0; i < int(breakerMaxFailures); i++ {
		err := p.Publish(ctx, Record{Device: "MOCK"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Publish(ctx, Record{Device: "MOCK"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
