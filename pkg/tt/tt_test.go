package tt

import (
	"testing"
)

// testT records errors instead of reporting them.
type testT struct {
	errors []string
}

func (t *testT) Helper() {}

func (t *testT) Errorf(format string, args ...any) {
	t.errors = append(t.errors, format)
}

func add(x, y int) int { return x + y }

func divmod(x, y int) (int, int) { return x / y, x % y }

func TestPass(t *testing.T) {
	var rec testT
	Test(&rec, "add", add, Table{
		Args(1, 2).Rets(3),
		Args(-1, 1).Rets(0),
	})
	if len(rec.errors) > 0 {
		t.Errorf("matching table reported errors: %v", rec.errors)
	}
}

func TestFail(t *testing.T) {
	var rec testT
	Test(&rec, "add", add, Table{
		Args(1, 2).Rets(4),
	})
	if len(rec.errors) != 1 {
		t.Errorf("mismatching table reported %d errors, want 1", len(rec.errors))
	}
}

func TestMultipleReturns(t *testing.T) {
	var rec testT
	Test(&rec, "divmod", divmod, Table{
		Args(7, 3).Rets(2, 1),
	})
	if len(rec.errors) > 0 {
		t.Errorf("matching table reported errors: %v", rec.errors)
	}
}

func TestAnyMatcher(t *testing.T) {
	var rec testT
	Test(&rec, "divmod", divmod, Table{
		Args(7, 3).Rets(Any, 1),
	})
	if len(rec.errors) > 0 {
		t.Errorf("Any matcher reported errors: %v", rec.errors)
	}
}

func TestRetsString(t *testing.T) {
	if got := RetsString(1); got != "1" {
		t.Errorf("RetsString(1) = %q, want 1", got)
	}
	if got := RetsString(1, 2); got != "(1, 2)" {
		t.Errorf("RetsString(1, 2) = %q, want (1, 2)", got)
	}
}
