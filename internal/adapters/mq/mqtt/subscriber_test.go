package mqtt_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/okian/motionscore/internal/adapters/mq/mqtt"
	"github.com/okian/motionscore/internal/adapters/mq/queue"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeMessage struct {
	topic   string
	id      uint16
	dup     bool
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return m.dup }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return m.id }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingQueue struct {
	mu   sync.Mutex
	full bool
	jobs []queue.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, j queue.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, j)
	return true
}

func payload(p mqtt.Payload) []byte {
	b, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return b
}

func TestSubscriberHandleMessage(t *testing.T) {
	Convey("Given a subscriber that is not connected", t, func() {
		q := &recordingQueue{}
		sub, err := mqtt.New(q, mqtt.WithBroker("tcp://127.0.0.1:1883"), mqtt.WithTopic("motionscore/recordings/#"))
		So(err, ShouldBeNil)

		msg := fakeMessage{
			topic: "motionscore/recordings/squat",
			id:    7,
			payload: payload(mqtt.Payload{
				ScoreCategory: "reference",
				SensorData:    model.FramesFromMatrix(model.Matrix{{0, 0}, {1, 1}}),
			}),
		}

		Convey("When a message arrives", func() {
			sub.HandleMessage(nil, msg)

			Convey("Then it is queued with the motion taken from the topic", func() {
				So(q.jobs, ShouldHaveLength, 1)
				j := q.jobs[0]
				So(j.MessageID, ShouldEqual, "motionscore/recordings/squat#7")
				So(j.Request.MotionName, ShouldEqual, "squat")
				So(j.Request.Category, ShouldEqual, "reference")
				So(j.Request.Frames, ShouldHaveLength, 2)
				So(j.Request.RecordingKey, ShouldStartWith, "sha256:")
			})

			Convey("Then a redelivery is queued again under the same key", func() {
				dup := msg
				dup.dup = true
				sub.HandleMessage(nil, dup)
				So(q.jobs, ShouldHaveLength, 2)
				So(q.jobs[1].Request.RecordingKey, ShouldEqual, q.jobs[0].Request.RecordingKey)
			})
		})

		Convey("When the payload names the motion and a key", func() {
			sub.HandleMessage(nil, fakeMessage{
				topic:   "motionscore/recordings",
				payload: payload(mqtt.Payload{MotionName: "lift_extinguisher", ScoreCategory: "zero_score", RecordingKey: "dev-1/0042"}),
			})
			So(q.jobs, ShouldHaveLength, 1)
			So(q.jobs[0].Request.MotionName, ShouldEqual, "lift_extinguisher")
			So(q.jobs[0].Request.RecordingKey, ShouldEqual, "dev-1/0042")
		})

		Convey("When the payload is not JSON", func() {
			sub.HandleMessage(nil, fakeMessage{topic: "motionscore/recordings/squat", payload: []byte("{")})
			So(q.jobs, ShouldBeEmpty)
		})

		Convey("When the queue is full", func() {
			q.full = true
			sub.HandleMessage(nil, msg)
			So(q.jobs, ShouldBeEmpty)

			Convey("Then the next delivery is queued once there is room", func() {
				q.full = false
				sub.HandleMessage(nil, msg)
				So(q.jobs, ShouldHaveLength, 1)
			})
		})
	})
}

func TestNewRequiresBroker(t *testing.T) {
	Convey("Given no broker", t, func() {
		_, err := mqtt.New(&recordingQueue{})
		So(errors.Is(err, mqtt.ErrNoBroker), ShouldBeTrue)
	})
}
