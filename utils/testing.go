package utils

import (
	"errors"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func getParentInfo() (string, int) {
	parent, _, _, _ := runtime.Caller(2)
	info := runtime.FuncForPC(parent)
	file, line := info.FileLine(parent)
	return file, line
}

// Test helper
func Assert(t *testing.T, predicate bool, msg string) {
	if !predicate {
		file, line := getParentInfo()
		t.Errorf(msg+" in %s:%d", file, line)
	}
}

func AssertEqual[T comparable](t *testing.T, a T, b T) {
	if a != b {
		file, line := getParentInfo()
		t.Errorf("Expected %v == %v (%T) in %s:%d", a, b, a, file, line)
	}
}

// Assert that err is nil. Stops the test, since what follows usually
// depends on the call having succeeded.
func AssertNoError(t *testing.T, err error) {
	if err != nil {
		file, line := getParentInfo()
		t.Fatalf("Expected no error, got '%v' in %s:%d", err, file, line)
	}
}

// Assert that err matches target with errors.Is
func AssertErrorIs(t *testing.T, err error, target error) {
	if !errors.Is(err, target) {
		file, line := getParentInfo()
		t.Errorf("Expected error matching '%v', got '%v' in %s:%d", target, err, file, line)
	}
}

// Assert that err can be unwrapped into a T, and return it
func AssertErrorAs[T error](t *testing.T, err error) T {
	var target T
	if !errors.As(err, &target) {
		file, line := getParentInfo()
		t.Fatalf("Expected error of type %T, got '%v' in %s:%d", target, err, file, line)
	}
	return target
}

// Deep comparison for values that are not comparable, such as trees
func AssertDeepEqual(t *testing.T, want any, got any) {
	if diff := cmp.Diff(want, got); diff != "" {
		file, line := getParentInfo()
		t.Errorf("Mismatch (-want +got) in %s:%d:\n%s", file, line, diff)
	}
}

func AssertEqualArrays[T comparable](t *testing.T, a []T, b []T) {
	if !CompareArrays(a, b) {
		file, line := getParentInfo()
		t.Errorf("Expected %v == %v (%T) in %s:%d", a, b, a, file, line)
	}
}

// Assert that f panics, and return the recovered value
func AssertPanics(t *testing.T, f func()) (recovered any) {
	file, line := getParentInfo()
	defer func() {
		recovered = recover()
		if recovered == nil {
			t.Errorf("Expected a panic in %s:%d", file, line)
		}
	}()
	f()
	return nil
}

func CompareArrays[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
