package anoa

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestOf(t *testing.T) {
	t.Run("Get Returns Value", func(t *testing.T) {
		v := Of(42, "m1", "m2")
		if got := v.Get(); got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
		if !v.IsPresent() {
			t.Error("expected present value")
		}
	})

	t.Run("Lookup Returns Value", func(t *testing.T) {
		got, ok := Of[int, string](7).Lookup()
		if !ok || got != 7 {
			t.Errorf("expected (7, true), got (%d, %v)", got, ok)
		}
	})

	t.Run("Metadata Kept In Order", func(t *testing.T) {
		v := Of(1, "a", "b", "c")
		if got := slices.Collect(v.Meta()); !slices.Equal(got, []string{"a", "b", "c"}) {
			t.Errorf("unexpected metadata %v", got)
		}
	})

	t.Run("Input Slice Not Aliased", func(t *testing.T) {
		meta := []string{"a", "b"}
		v := Of(1, meta...)
		meta[0] = "changed"
		if got := v.Metadata(); got[0] != "a" {
			t.Errorf("value observed caller mutation: %v", got)
		}
	})

	t.Run("Metadata Returns Copy", func(t *testing.T) {
		v := Of(1, "a")
		got := v.Metadata()
		got[0] = "changed"
		if v.Metadata()[0] != "a" {
			t.Error("Metadata exposed internal slice")
		}
	})
}

func TestEmpty(t *testing.T) {
	t.Run("Get Panics With ErrNoSuchElement", func(t *testing.T) {
		defer func() {
			r := recover()
			err, ok := r.(error)
			if !ok || !errors.Is(err, ErrNoSuchElement) {
				t.Errorf("expected ErrNoSuchElement panic, got %v", r)
			}
		}()
		Empty[int]("cause").Get()
		t.Error("Get should panic")
	})

	t.Run("Lookup Reports Absent", func(t *testing.T) {
		got, ok := Empty[int, string]().Lookup()
		if ok || got != 0 {
			t.Errorf("expected (0, false), got (%d, %v)", got, ok)
		}
	})

	t.Run("Zero Value Is Absent", func(t *testing.T) {
		var v Value[string, string]
		if v.IsPresent() {
			t.Error("zero value should be absent")
		}
		if len(v.Metadata()) != 0 {
			t.Error("zero value should carry no metadata")
		}
	})

	t.Run("Keeps Metadata", func(t *testing.T) {
		v := Empty[int]("x", "y")
		if got := v.Metadata(); !slices.Equal(got, []string{"x", "y"}) {
			t.Errorf("unexpected metadata %v", got)
		}
	})
}

func TestValueAccessors(t *testing.T) {
	t.Run("All Yields Once When Present", func(t *testing.T) {
		if got := slices.Collect(Of[int, string](3).All()); !slices.Equal(got, []int{3}) {
			t.Errorf("expected [3], got %v", got)
		}
		if got := slices.Collect(Empty[int, string]().All()); len(got) != 0 {
			t.Errorf("expected nothing, got %v", got)
		}
	})

	t.Run("All Can Be Restarted", func(t *testing.T) {
		seq := Of[int, string](3).All()
		first := slices.Collect(seq)
		second := slices.Collect(seq)
		if !slices.Equal(first, second) {
			t.Errorf("expected identical iterations, got %v and %v", first, second)
		}
	})

	t.Run("IfPresent", func(t *testing.T) {
		calls := 0
		Of[int, string](1).IfPresent(func(int) { calls++ })
		Empty[int, string]().IfPresent(func(int) { calls++ })
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("OrElse", func(t *testing.T) {
		if got := Of[int, string](1).OrElse(9); got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
		if got := Empty[int, string]().OrElse(9); got != 9 {
			t.Errorf("expected 9, got %d", got)
		}
	})

	t.Run("OrElseGet Calls Supplier Only When Absent", func(t *testing.T) {
		calls := 0
		supplier := func() int { calls++; return 9 }
		if got := Of[int, string](1).OrElseGet(supplier); got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
		if calls != 0 {
			t.Error("supplier called for present value")
		}
		if got := Empty[int, string]().OrElseGet(supplier); got != 9 {
			t.Errorf("expected 9, got %d", got)
		}
		if calls != 1 {
			t.Errorf("expected 1 supplier call, got %d", calls)
		}
	})

	t.Run("OrElseErr Calls Factory Only When Absent", func(t *testing.T) {
		errMissing := errors.New("missing")
		calls := 0
		factory := func() error { calls++; return errMissing }

		got, err := Of[int, string](1).OrElseErr(factory)
		if err != nil || got != 1 {
			t.Errorf("expected (1, nil), got (%d, %v)", got, err)
		}
		if calls != 0 {
			t.Error("factory called for present value")
		}

		_, err = Empty[int, string]().OrElseErr(factory)
		if !errors.Is(err, errMissing) {
			t.Errorf("expected factory error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 factory call, got %d", calls)
		}
	})

	t.Run("String", func(t *testing.T) {
		if got := Of(1, "m").String(); got != "Of(1)[m]" {
			t.Errorf("unexpected %q", got)
		}
		if got := Empty[int]("m").String(); got != "Empty[m]" {
			t.Errorf("unexpected %q", got)
		}
	})
}

func TestFilter(t *testing.T) {
	t.Run("Passing Predicate Keeps Value", func(t *testing.T) {
		v := Of(4, "m").Filter(func(n int) bool { return n%2 == 0 })
		if got, ok := v.Lookup(); !ok || got != 4 {
			t.Errorf("expected 4, got %v", v)
		}
	})

	t.Run("Rejecting Predicate Keeps Metadata", func(t *testing.T) {
		a := Of(3, "m1", "m2")
		v := a.Filter(func(n int) bool { return n%2 == 0 })
		if v.IsPresent() {
			t.Error("expected absent value")
		}
		if !slices.Equal(v.Metadata(), a.Metadata()) {
			t.Errorf("metadata changed: %v", v.Metadata())
		}
	})

	t.Run("Absent Value Not Evaluated", func(t *testing.T) {
		called := false
		v := Empty[int]("m").Filter(func(int) bool { called = true; return true })
		if called {
			t.Error("predicate called for absent value")
		}
		if v.IsPresent() || !slices.Equal(v.Metadata(), []string{"m"}) {
			t.Errorf("absent value changed: %v", v)
		}
	})
}

func TestMap(t *testing.T) {
	t.Run("Present", func(t *testing.T) {
		v := Map(Of(3, "m"), func(n int) string { return strings.Repeat("x", n) })
		if got := v.Get(); got != "xxx" {
			t.Errorf("expected xxx, got %q", got)
		}
		if !slices.Equal(v.Metadata(), []string{"m"}) {
			t.Errorf("metadata changed: %v", v.Metadata())
		}
	})

	t.Run("Absent Not Invoked", func(t *testing.T) {
		called := false
		v := Map(Empty[int]("m"), func(int) string { called = true; return "" })
		if called {
			t.Error("fn called for absent value")
		}
		if v.IsPresent() || !slices.Equal(v.Metadata(), []string{"m"}) {
			t.Errorf("absent value changed: %v", v)
		}
	})
}

func TestFlatMap(t *testing.T) {
	t.Run("Concatenates Metadata", func(t *testing.T) {
		a := Of(1, "m1", "m2")
		v := FlatMap(a, func(int) Value[string, string] { return Of("y", "m3") })
		if got := v.Get(); got != "y" {
			t.Errorf("expected y, got %q", got)
		}
		if got := v.Metadata(); !slices.Equal(got, []string{"m1", "m2", "m3"}) {
			t.Errorf("expected [m1 m2 m3], got %v", got)
		}
	})

	t.Run("Takes Presence Of Result", func(t *testing.T) {
		v := FlatMap(Of(1, "m1"), func(int) Value[string, string] { return Empty[string]("m2") })
		if v.IsPresent() {
			t.Error("expected absent value")
		}
		if got := v.Metadata(); !slices.Equal(got, []string{"m1", "m2"}) {
			t.Errorf("expected [m1 m2], got %v", got)
		}
	})

	t.Run("Absent Not Invoked", func(t *testing.T) {
		called := false
		v := FlatMap(Empty[int]("m"), func(int) Value[int, string] { called = true; return Of[int, string](1) })
		if called {
			t.Error("fn called for absent value")
		}
		if v.IsPresent() || !slices.Equal(v.Metadata(), []string{"m"}) {
			t.Errorf("absent value changed: %v", v)
		}
	})

	t.Run("Siblings Do Not Share Metadata", func(t *testing.T) {
		parent := Of(1, make([]string, 1, 8)...)
		left := FlatMap(parent, func(int) Value[int, string] { return Of(1, "left") })
		right := FlatMap(parent, func(int) Value[int, string] { return Of(2, "right") })
		if got := left.Metadata(); got[1] != "left" {
			t.Errorf("left metadata overwritten: %v", got)
		}
		if got := right.Metadata(); got[1] != "right" {
			t.Errorf("right metadata overwritten: %v", got)
		}
		if len(parent.Metadata()) != 1 {
			t.Errorf("parent metadata grew: %v", parent.Metadata())
		}
	})
}
