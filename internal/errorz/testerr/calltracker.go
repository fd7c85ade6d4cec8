package testerr

import "errors"

// Err is the error returned by failing dependencies.
var Err = errors.New("test error")

// Calltracker simulates a failing dependency by tracking the calls made to it.
// The zero value is ready to use and will never fail.
type Calltracker struct {
	// Calls is the number of calls made so far, failed ones included.
	Calls int

	callIndex         int
	shouldFail        bool
	err               error
	failAllAfterIndex bool
	failAtIndex       int
}

// Failing returns a Calltracker that fails every call with err.
func Failing(err error) *Calltracker {
	return &Calltracker{
		callIndex:         -1,
		shouldFail:        true,
		err:               err,
		failAllAfterIndex: true,
		failAtIndex:       0,
	}
}

// NewFailingDeps creates calltrackers that will fail at different points
// in a call sequence of expectCalls calls.
//
// Dependencies will fail in two ways:
// - A single failure, then all calls after succesful.
// - All calls will fail after a number of succesful calls.
func NewFailingDeps(err error, expectCalls int) []*Calltracker {
	trackers := make([]*Calltracker, 0, expectCalls*2)
	for i := 0; i < expectCalls; i++ {
		trackers = append(trackers, &Calltracker{
			callIndex:         -1,
			shouldFail:        true,
			err:               err,
			failAllAfterIndex: true,
			failAtIndex:       i,
		}, &Calltracker{
			callIndex:         -1,
			shouldFail:        true,
			err:               err,
			failAllAfterIndex: false,
			failAtIndex:       i,
		})
	}

	return trackers
}

func (ct *Calltracker) fail() error {
	ct.Calls++
	if !ct.shouldFail {
		return nil
	}

	ct.callIndex++

	if ct.failAtIndex == ct.callIndex {
		return ct.err
	}

	if ct.failAllAfterIndex && ct.callIndex > ct.failAtIndex {
		return ct.err
	}

	return nil
}

// MaybeFailErrFunc fails the call or calls f.
// A nil tracker never fails.
func MaybeFailErrFunc(ct *Calltracker, f func() error) error {
	if ct != nil {
		if err := ct.fail(); err != nil {
			return err
		}
	}

	return f()
}

// MaybeFail fails the call or calls f.
// A nil tracker never fails.
func MaybeFail[T any](ct *Calltracker, f func() (T, error)) (T, error) {
	if ct != nil {
		if err := ct.fail(); err != nil {
			var zero T
			return zero, err
		}
	}

	return f()
}
