// Package testing holds helpers shared by the airq tests: goroutine checks
// that report through errors instead of t.Fatal, polling and assertion
// helpers, and fixtures for sensor files and batch writers.
package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Goroutine Checks
// =============================================================================

// GoroutineTest runs checks in goroutines and reports their errors on Wait.
//
// t.Fatal in a goroutine other than the test's own only exits that
// goroutine, so checks return an error instead:
//
//	gt := testutil.NewGoroutineTest(t, 5*time.Second)
//	defer gt.Wait()
//
//	gt.GoWithContext(func(ctx context.Context) error {
//	    report, err := pipeline.Ingest(ctx, input)
//	    if err != nil {
//	        return err
//	    }
//	    return testutil.AssertEqual(report.Inserted, int64(3), "inserted")
//	})
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a helper whose context expires after timeout.
func NewGoroutineTest(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// Go runs fn in a goroutine.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.GoWithContext(func(context.Context) error { return fn() })
}

// GoWithContext runs fn in a goroutine with the helper's context.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			gt.mu.Lock()
			gt.errs = append(gt.errs, err)
			gt.mu.Unlock()
		}
	}()
}

// Wait blocks until every goroutine has returned, then fails the test with
// the collected errors.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()

	gt.wg.Wait()
	gt.cancel()

	if len(gt.errs) == 0 {
		return
	}
	for _, err := range gt.errs {
		gt.t.Error(err)
	}
	gt.t.FailNow()
}

// Context returns the context passed to GoWithContext.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// =============================================================================
// Assertions
// =============================================================================

// AssertEqual returns an error if got != want.
func AssertEqual[T comparable](got, want T, msg string) error {
	if got != want {
		return fmt.Errorf("%s: expected %v, got %v", msg, want, got)
	}
	return nil
}

// AssertNoError returns an error if err is not nil.
func AssertNoError(err error, msg string) error {
	if err != nil {
		return fmt.Errorf("%s: unexpected error: %w", msg, err)
	}
	return nil
}

// AssertErrorIs returns an error unless err matches target.
func AssertErrorIs(err, target error, msg string) error {
	if !errors.Is(err, target) {
		return fmt.Errorf("%s: expected %v, got %v", msg, target, err)
	}
	return nil
}

// Eventually polls condition every interval until it holds or timeout
// passes.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %v", timeout)
		}
		time.Sleep(interval)
	}
}
