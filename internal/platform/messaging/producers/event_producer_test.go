package producers

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKafkaWriter mocks KafkaWriter interface
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestEventProducer_Publish(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	topic := "test-circulation-events"
	ctx := context.Background()

	t.Run("SuccessfulPublish", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &EventProducer{
			logger: logger,
			writer: mockWriter,
			topic:  topic,
		}

		key := "5b8e7c5e-4a35-4d0f-9d0e-3f1f7c1b2a11"
		value := []byte(`{"type":"loan.approved"}`)

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			msg := msgs[0]
			return string(msg.Key) == key &&
				string(msg.Value) == string(value) &&
				len(msg.Headers) == 2 &&
				msg.Headers[0].Key == "correlation-id" &&
				msg.Headers[1].Key == "event-type" &&
				string(msg.Headers[1].Value) == "loan.approved"
		})).Return(nil).Once()

		err := producer.Publish(ctx, key, value, map[string]string{
			"event-type":     "loan.approved",
			"correlation-id": "req-1",
		})
		require.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("EmptyHeadersAreDropped", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &EventProducer{logger: logger, writer: mockWriter, topic: topic}

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			return len(msgs) == 1 && len(msgs[0].Headers) == 1
		})).Return(nil).Once()

		err := producer.Publish(ctx, "k", []byte(`{}`), map[string]string{"event-type": "fine.paid", "correlation-id": ""})
		require.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("PublishReturnsErrorOnWriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &EventProducer{logger: logger, writer: mockWriter, topic: topic}
		writerError := errors.New("kafka write error")

		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerError).Once()

		err := producer.Publish(ctx, "test-key-fail", []byte(`{}`), nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, writerError) || strings.Contains(err.Error(), writerError.Error()))
		mockWriter.AssertExpectations(t)
	})
}

func TestEventProducer_Close(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	t.Run("SuccessfulClose", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &EventProducer{logger: logger, writer: mockWriter, topic: "events"}
		mockWriter.On("Close").Return(nil).Once()

		require.NoError(t, producer.Close())
		mockWriter.AssertExpectations(t)
	})

	t.Run("CloseReturnsErrorOnWriterCloseError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &EventProducer{logger: logger, writer: mockWriter, topic: "events"}
		closeError := errors.New("kafka close error")
		mockWriter.On("Close").Return(closeError).Once()

		err := producer.Close()
		require.Error(t, err)
		assert.ErrorIs(t, err, closeError)
		mockWriter.AssertExpectations(t)
	})
}

var _ KafkaWriter = (*MockKafkaWriter)(nil)
var _ MessagePublisher = (*EventProducer)(nil)
