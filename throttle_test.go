package repseq

import (
	"fmt"
	"strings"
	"sync/atomic"

	"gopkg.in/check.v1"
)

type throttleSuite struct{}

var _ = check.Suite(&throttleSuite{})

func (s *throttleSuite) TestThrottleCollectsAllErrors(c *check.C) {
	th := throttle{Max: 2}
	for i := 0; i < 10; i++ {
		i := i
		th.Acquire()
		go func() {
			defer th.Release()
			if i%3 == 0 {
				th.Report(fmt.Errorf("task %d failed", i))
			}
		}()
	}
	err := th.Wait()
	c.Assert(err, check.NotNil)
	for _, i := range []int{0, 3, 6, 9} {
		c.Check(strings.Contains(err.Error(), fmt.Sprintf("task %d failed", i)), check.Equals, true)
	}
}

func (s *throttleSuite) TestThrottleNoErrors(c *check.C) {
	th := throttle{Max: 1}
	var n int64
	for i := 0; i < 5; i++ {
		th.Acquire()
		go func() {
			defer th.Release()
			atomic.AddInt64(&n, 1)
		}()
	}
	c.Check(th.Wait(), check.IsNil)
	c.Check(atomic.LoadInt64(&n), check.Equals, int64(5))
	c.Check(th.Err(), check.IsNil)
}
