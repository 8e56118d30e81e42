package guest

import "testing"

func TestIsReexec(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{"reexec marker present", []string{"/judger", reexecArg}, true},
		{"normal invocation", []string{"/judger", "--exe-path", "/bin/true"}, false},
		{"no args", []string{"/judger"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReexec(tt.args); got != tt.want {
				t.Errorf("IsReexec(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}
