package result

import "testing"

func TestSetupFailure(t *testing.T) {
	r := SetupFailure(RootRequired)
	if r.Result != RootRequired {
		t.Errorf("Result = %v, want %v", r.Result, RootRequired)
	}
	if r.CPUTimeMs != 0 || r.RealTimeMs != 0 || r.MemoryBytes != 0 {
		t.Error("SetupFailure should leave accounting fields zeroed")
	}
}

func TestWithMessage(t *testing.T) {
	r := RunResult{CPUTimeMs: 5, Result: Success}
	got := r.WithMessage(WrongAnswer, "expected 30, found -10")

	if got.Result != WrongAnswer {
		t.Errorf("Result = %v, want %v", got.Result, WrongAnswer)
	}
	if got.Message != "expected 30, found -10" {
		t.Errorf("Message = %q, want %q", got.Message, "expected 30, found -10")
	}
	if got.CPUTimeMs != 5 {
		t.Error("WithMessage should preserve other fields")
	}
	if r.Result != Success {
		t.Error("WithMessage should not mutate the receiver")
	}
}

func TestString(t *testing.T) {
	r := RunResult{Result: Success, CPUTimeMs: 10, RealTimeMs: 20, MemoryBytes: 4096}
	if s := r.String(); s == "" {
		t.Error("String() should not be empty")
	}

	wa := RunResult{Result: WrongAnswer, Message: "bad output"}
	s := wa.String()
	if s == "" {
		t.Error("String() should not be empty")
	}
}
