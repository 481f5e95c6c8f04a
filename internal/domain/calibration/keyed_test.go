package calibration

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestKeyedMutex(t *testing.T) {
	Convey("Given a keyed mutex", t, func() {
		k := newKeyedMutex()

		Convey("When the same key is locked concurrently", func() {
			var inside, peak atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release := k.Lock("squat")
					n := inside.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					inside.Add(-1)
					release()
				}()
			}
			wg.Wait()

			Convey("Then only one holder runs at a time and entries are released", func() {
				So(peak.Load(), ShouldEqual, 1)
				So(k.locks, ShouldBeEmpty)
			})
		})

		Convey("When different keys are locked", func() {
			releaseA := k.Lock("a")
			done := make(chan struct{})
			go func() {
				release := k.Lock("b")
				release()
				close(done)
			}()

			Convey("Then they do not block each other", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("lock on b blocked behind a")
				}
				releaseA()
			})
		})
	})
}
